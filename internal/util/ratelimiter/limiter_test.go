package ratelimiter

import (
	"context"
	"testing"
	"time"
)

func TestAllow(t *testing.T) {
	l := New(50 * time.Millisecond)

	ok, _ := l.Allow()
	if !ok {
		t.Fatal("first Allow() = false, want true")
	}

	ok, wait := l.Allow()
	if ok {
		t.Fatal("immediate second Allow() = true, want false")
	}
	if wait <= 0 || wait > 50*time.Millisecond {
		t.Errorf("wait = %v, want within (0, 50ms]", wait)
	}

	time.Sleep(60 * time.Millisecond)
	if ok, _ := l.Allow(); !ok {
		t.Error("Allow() after interval = false, want true")
	}
}

func TestAllow_ZeroIntervalDisables(t *testing.T) {
	l := New(0)
	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow(); !ok {
			t.Fatal("zero-interval limiter should always allow")
		}
	}
}

func TestWait_Blocks(t *testing.T) {
	l := New(30 * time.Millisecond)
	ctx := context.Background()

	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("Wait returned after %v, want ~30ms", elapsed)
	}
}

func TestWait_Cancelled(t *testing.T) {
	l := New(time.Hour)
	l.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait() error = %v, want context.DeadlineExceeded", err)
	}
}
