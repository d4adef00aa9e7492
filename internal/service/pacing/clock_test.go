package pacing

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestClock_Cutoff(t *testing.T) {
	tests := []struct {
		name    string
		delay   time.Duration
		elapsed time.Duration
		want    time.Duration
	}{
		{"no delay", 0, ms(1500), ms(1500)},
		{"positive delay holds back", ms(500), ms(1500), ms(1000)},
		{"negative delay pulls forward", -ms(500), ms(1500), ms(2000)},
		{"before delay elapsed", ms(500), ms(100), -ms(400)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := clockwork.NewFakeClockAt(epoch)
			c := NewClock(fc, tt.delay)
			fc.Advance(tt.elapsed)

			if got := c.Cutoff(); got != tt.want {
				t.Errorf("Cutoff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClock_WakeAfter(t *testing.T) {
	tests := []struct {
		name    string
		delay   time.Duration
		elapsed time.Duration
		due     time.Duration
		want    time.Duration
	}{
		{"no delay", 0, 0, ms(1000), ms(1000)},
		{"positive delay", ms(200), 0, ms(1000), ms(1200)},
		{"negative delay", -ms(500), 0, ms(1000), ms(500)},
		{"measured from session start", 0, ms(350), ms(1000), ms(650)},
		{"already due", 0, ms(1200), ms(1000), -ms(200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := clockwork.NewFakeClockAt(epoch)
			c := NewClock(fc, tt.delay)
			fc.Advance(tt.elapsed)

			got := c.WakeAfter(tt.due)
			if got != tt.want {
				t.Fatalf("WakeAfter(%v) = %v, want %v", tt.due, got, tt.want)
			}

			if got <= 0 {
				return
			}
			// Waking after the returned duration makes the word exactly due.
			fc.Advance(got)
			if c.Cutoff() != tt.due {
				t.Errorf("cutoff after wake = %v, want %v", c.Cutoff(), tt.due)
			}
		})
	}
}
