package errsink

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "pulse/pkg/domain-errors"
)

func TestSlogSinkDeduplicates(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlog(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := dErrors.New(dErrors.CodeConsentPersistence, "store write failed")
	sink.Report(err)
	sink.Report(err)
	sink.Report(err)

	assert.Equal(t, 1, strings.Count(buf.String(), "store write failed"), "identical failures must log once")
	assert.Equal(t, 3, sink.Occurrences(dErrors.CodeConsentPersistence, "store write failed"))
}

func TestSlogSinkDistinctMessagesBothLog(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlog(slog.New(slog.NewJSONHandler(&buf, nil)))

	sink.Report(dErrors.New(dErrors.CodeTransportFailure, "got 500"))
	sink.Report(dErrors.New(dErrors.CodeTransportFailure, "got 503"))

	out := buf.String()
	assert.Contains(t, out, "got 500")
	assert.Contains(t, out, "got 503")
}

func TestSlogSinkNilError(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlog(slog.New(slog.NewJSONHandler(&buf, nil)))
	sink.Report(nil)
	assert.Empty(t, buf.String())
}

func TestFuncSink(t *testing.T) {
	var got error
	sink := Func(func(err error) { got = err })
	want := dErrors.New(dErrors.CodeInternal, "boom")
	sink.Report(want)
	assert.Equal(t, want, got)
}
