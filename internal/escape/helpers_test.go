package escape

import (
	"time"

	"github.com/ppiankov/hookwarden/internal/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newFakeClock() *clock.Fake {
	return clock.NewFake(epoch)
}
