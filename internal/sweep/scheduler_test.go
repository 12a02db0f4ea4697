package sweep

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRegisterRunsPeriodically(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()

	var runs atomic.Int32
	s.Register("test", 5*time.Millisecond, func() int {
		runs.Add(1)
		return 0
	})

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() < 2 {
		t.Fatalf("expected at least 2 runs, got %d", runs.Load())
	}
}

func TestCloseStopsSweeps(t *testing.T) {
	s := NewScheduler(nil)

	var runs atomic.Int32
	s.Register("test", time.Millisecond, func() int {
		runs.Add(1)
		return 1
	})
	time.Sleep(20 * time.Millisecond)
	s.Close()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != after {
		t.Errorf("sweep ran after Close: %d -> %d", after, runs.Load())
	}
}

func TestRegisterAfterCloseIgnored(t *testing.T) {
	s := NewScheduler(nil)
	s.Close()
	s.Close()

	var runs atomic.Int32
	s.Register("late", time.Millisecond, func() int {
		runs.Add(1)
		return 0
	})
	time.Sleep(10 * time.Millisecond)
	if runs.Load() != 0 {
		t.Errorf("expected no runs after Close, got %d", runs.Load())
	}
}

func TestRegisterIgnoresZeroInterval(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Close()
	s.Register("zero", 0, func() int { return 0 })
}
