package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresDueTimers(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	var fired []string
	f.AfterFunc(5*time.Second, func() { fired = append(fired, "a") })
	f.AfterFunc(10*time.Second, func() { fired = append(fired, "b") })

	f.Advance(5 * time.Second)
	if len(fired) != 1 || fired[0] != "a" {
		t.Fatalf("expected only a to fire, got %v", fired)
	}

	f.Advance(5 * time.Second)
	if len(fired) != 2 || fired[1] != "b" {
		t.Fatalf("expected b to fire next, got %v", fired)
	}
}

func TestFakeCancelPreventsFire(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	fired := false
	cancel := f.AfterFunc(5*time.Second, func() { fired = true })
	cancel()

	f.Advance(10 * time.Second)
	if fired {
		t.Fatal("expected canceled timer not to fire")
	}
}
