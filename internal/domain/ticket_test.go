package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTicket_MergeDynamicFields(t *testing.T) {
	ticket := &Ticket{}

	ticket.MergeDynamicFields(map[string]any{"a": 1})
	got := ticket.MergeDynamicFields(map[string]any{"b": 2})
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, got)

	got = ticket.MergeDynamicFields(map[string]any{"a": "host-1"})
	assert.Equal(t, map[string]any{"a": "host-1", "b": 2}, got)
}

func TestTicket_MergeDynamicFields_Idempotent(t *testing.T) {
	ticket := &Ticket{DynamicFields: map[string]any{"x": true}}

	first := copyMap(ticket.MergeDynamicFields(map[string]any{"a": 1}))
	second := ticket.MergeDynamicFields(map[string]any{"a": 1})
	assert.Equal(t, first, second)
}

func TestTicket_TouchIsStrictlyIncreasing(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ticket := &Ticket{UpdatedAt: now}

	ticket.Touch(now)
	assert.Equal(t, now.Add(time.Microsecond), ticket.UpdatedAt)

	ticket.Touch(now.Add(-time.Hour))
	assert.Equal(t, now.Add(2*time.Microsecond), ticket.UpdatedAt)

	later := now.Add(time.Second)
	ticket.Touch(later)
	assert.Equal(t, later, ticket.UpdatedAt)
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(time.Minute)))
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
