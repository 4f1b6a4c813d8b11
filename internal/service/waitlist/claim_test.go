package waitlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClaimWindow_IsOpen(t *testing.T) {
	w := NewClaimWindow(DefaultClaimWindow)
	notified := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"right after notification", notified, true},
		{"one millisecond before deadline", notified.Add(time.Hour - time.Millisecond), true},
		{"exactly at deadline", notified.Add(time.Hour), false},
		{"after deadline", notified.Add(2 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.IsOpen(&notified, tt.now))
		})
	}

	t.Run("never notified", func(t *testing.T) {
		assert.True(t, w.IsOpen(nil, notified.Add(100*time.Hour)))
	})
}

func TestNewClaimWindow_Default(t *testing.T) {
	assert.Equal(t, DefaultClaimWindow, NewClaimWindow(0).Duration)
	assert.Equal(t, 5*time.Minute, NewClaimWindow(5*time.Minute).Duration)
}
