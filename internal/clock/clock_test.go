package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)

	f.Advance(90 * time.Second)
	if got := f.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("after Advance: %v", got)
	}

	f.Set(start)
	if got := f.Now(); !got.Equal(start) {
		t.Errorf("after Set: %v", got)
	}
}

func TestOrReal(t *testing.T) {
	if _, ok := OrReal(nil).(Real); !ok {
		t.Error("nil clock should fall back to Real")
	}
	f := NewFake(time.Time{})
	if OrReal(f) != Clock(f) {
		t.Error("non-nil clock should be returned as is")
	}
	if loc := (Real{}).Now().Location(); loc != time.UTC {
		t.Errorf("Real should report UTC, got %v", loc)
	}
}
