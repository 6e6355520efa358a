// ABOUTME: Tests for event primitives
// ABOUTME: Tests manual-reset persistence and auto-reset consumption
package signal

import (
	"testing"
	"time"
)

func TestFlagStaysSet(t *testing.T) {
	f := NewFlag()
	if f.IsSet() {
		t.Fatal("new flag should be clear")
	}

	f.Set()
	f.Set()
	for i := 0; i < 3; i++ {
		if !f.IsSet() {
			t.Fatalf("flag should stay set on read %d", i)
		}
	}
	select {
	case <-f.Done():
	default:
		t.Fatal("Done should be closed after Set")
	}

	cont := f.Continue()
	if cont() {
		t.Error("Continue should be false while set")
	}

	f.Clear()
	if f.IsSet() {
		t.Error("flag should be clear after Clear")
	}
	if !cont() {
		t.Error("Continue should be true after Clear")
	}
	select {
	case <-f.Done():
		t.Fatal("Done should not be closed after Clear")
	default:
	}
}

func TestWakeIsConsumed(t *testing.T) {
	w := NewWake()
	w.Notify()
	w.Notify()

	select {
	case <-w.C():
	case <-time.After(time.Second):
		t.Fatal("expected wake")
	}

	select {
	case <-w.C():
		t.Fatal("repeated notifications should collapse into one")
	default:
	}
}
