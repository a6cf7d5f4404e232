package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	none := parseSince("", now)
	assert.True(t, none.IsAbsent())

	rfc, ok := parseSince("2026-03-01T11:00:00.123456Z", now).Get()
	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 123456000, time.UTC), rfc.UTC())

	naive, ok := parseSince("2026-03-01T11:00:00.5", now).Get()
	assert.True(t, ok)
	assert.Equal(t, time.Local, naive.Location())
	assert.Equal(t, 500*time.Millisecond, time.Duration(naive.Nanosecond()))

	fallback, ok := parseSince("yesterday-ish", now).Get()
	assert.True(t, ok)
	assert.Equal(t, now.Add(-5*time.Minute), fallback)
}
