package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name       string
		categories map[Category]bool
		want       Status
	}{
		{
			name:       "all non-necessary true is granted",
			categories: map[Category]bool{CategoryNecessary: true, CategoryAnalytics: true, CategoryMarketing: true, CategoryPreferences: true},
			want:       StatusGranted,
		},
		{
			name:       "none true is denied",
			categories: map[Category]bool{CategoryNecessary: true},
			want:       StatusDenied,
		},
		{
			name:       "some true is partial",
			categories: map[Category]bool{CategoryNecessary: true, CategoryAnalytics: true},
			want:       StatusPartial,
		},
		{
			name:       "necessary flag does not count toward granted",
			categories: map[Category]bool{CategoryNecessary: true, CategoryAnalytics: true, CategoryMarketing: true, CategoryPreferences: false},
			want:       StatusPartial,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.categories))
		})
	}
}

func TestRecordAllows(t *testing.T) {
	t.Run("denied short-circuits false regardless of flags", func(t *testing.T) {
		rec := Record{Status: StatusDenied, Categories: map[Category]bool{CategoryAnalytics: true}}
		assert.False(t, rec.Allows(CategoryAnalytics))
	})

	t.Run("granted short-circuits true regardless of flags", func(t *testing.T) {
		rec := Record{Status: StatusGranted, Categories: map[Category]bool{CategoryAnalytics: false}}
		assert.True(t, rec.Allows(CategoryAnalytics))
	})

	t.Run("partial consults the explicit flag", func(t *testing.T) {
		rec := Record{Status: StatusPartial, Categories: map[Category]bool{CategoryAnalytics: true, CategoryMarketing: false}}
		assert.True(t, rec.Allows(CategoryAnalytics))
		assert.False(t, rec.Allows(CategoryMarketing))
	})

	t.Run("absent category defaults to false", func(t *testing.T) {
		rec := Record{Status: StatusPartial, Categories: map[Category]bool{}}
		assert.False(t, rec.Allows(CategoryPreferences))
	})
}

func TestRecordClone(t *testing.T) {
	rec := DefaultRecord(time.Now())
	clone := rec.Clone()
	clone.Categories[CategoryAnalytics] = true

	assert.False(t, rec.Categories[CategoryAnalytics], "mutating a clone must not affect the original")
}

func TestRecordNormalize(t *testing.T) {
	t.Run("forces necessary on and re-derives status", func(t *testing.T) {
		rec := Record{
			Status:     StatusGranted, // lies about the flags
			Categories: map[Category]bool{CategoryAnalytics: true},
		}
		fixed := rec.Normalize()
		assert.True(t, fixed.Categories[CategoryNecessary])
		assert.Equal(t, StatusPartial, fixed.Status)
	})

	t.Run("pending is preserved as-is", func(t *testing.T) {
		rec := DefaultRecord(time.Now())
		fixed := rec.Normalize()
		assert.Equal(t, StatusPending, fixed.Status)
	})

	t.Run("nil categories map is repaired", func(t *testing.T) {
		rec := Record{Status: StatusPending}
		fixed := rec.Normalize()
		require.NotNil(t, fixed.Categories)
		assert.True(t, fixed.Categories[CategoryNecessary])
	})
}

func TestGrantEventConstructor(t *testing.T) {
	t.Run("no categories means all", func(t *testing.T) {
		ev := Grant()
		assert.Equal(t, EventGrant, ev.Kind)
		assert.Nil(t, ev.Categories)
	})

	t.Run("named categories become flags", func(t *testing.T) {
		ev := Grant(CategoryAnalytics)
		assert.True(t, ev.Categories[CategoryAnalytics])
		assert.False(t, ev.Categories[CategoryMarketing])
	})
}

func TestEventKindIsValid(t *testing.T) {
	for _, kind := range []EventKind{EventGrant, EventDeny, EventWithdraw, EventUpdate, EventReset} {
		assert.True(t, kind.IsValid(), string(kind))
	}
	assert.False(t, EventKind("revoke").IsValid())
}
