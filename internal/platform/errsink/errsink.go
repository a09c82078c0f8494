package errsink

import (
	"log/slog"
	"sync"

	dErrors "pulse/pkg/domain-errors"
)

// Sink receives errors that components cannot surface to their callers
// (listener panics, fire-and-forget persistence failures, terminal delivery
// failures). A sink must never panic.
type Sink interface {
	Report(err error)
}

// Func adapts a plain function to the Sink interface.
type Func func(err error)

func (f Func) Report(err error) {
	f(err)
}

// SlogSink is the default sink: it logs each distinct failure once and
// suppresses repeats of the same code+message pair so a flapping store or
// endpoint cannot flood the log.
type SlogSink struct {
	mu     sync.Mutex
	logger *slog.Logger
	seen   map[string]int
}

// NewSlog constructs the default de-duplicating sink.
func NewSlog(logger *slog.Logger) *SlogSink {
	return &SlogSink{
		logger: logger,
		seen:   make(map[string]int),
	}
}

func (s *SlogSink) Report(err error) {
	if err == nil {
		return
	}
	code := dErrors.CodeOf(err)
	key := string(code) + "|" + err.Error()

	s.mu.Lock()
	s.seen[key]++
	count := s.seen[key]
	s.mu.Unlock()

	if count > 1 {
		return
	}
	s.logger.Error("component error",
		"code", code,
		"error", err.Error(),
	)
}

// Occurrences returns how many times a given code+message pair has been
// reported, including suppressed repeats.
func (s *SlogSink) Occurrences(code dErrors.Code, msg string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[string(code)+"|"+msg]
}
