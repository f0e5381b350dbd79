package netif

import (
	"errors"
	"sync"
	"testing"
)

func TestHandleCloseRunsOnce(t *testing.T) {
	calls := 0
	h := NewHandle("tun0", 7, func() error {
		calls++
		return nil
	})

	if h.Name() != "tun0" || h.Fd() != 7 {
		t.Errorf("handle = %s/%d", h.Name(), h.Fd())
	}
	for i := 0; i < 3; i++ {
		if err := h.Close(); err != nil {
			t.Errorf("Close #%d: %v", i+1, err)
		}
	}
	if calls != 1 {
		t.Errorf("release ran %d times, want 1", calls)
	}
}

func TestHandleCloseStickyError(t *testing.T) {
	want := errors.New("device busy")
	calls := 0
	h := NewHandle("tun0", 7, func() error {
		calls++
		return want
	})

	if err := h.Close(); !errors.Is(err, want) {
		t.Errorf("first Close = %v", err)
	}
	// Repeat calls return the first result without re-running the release.
	if err := h.Close(); !errors.Is(err, want) {
		t.Errorf("second Close = %v", err)
	}
	if calls != 1 {
		t.Errorf("release ran %d times, want 1", calls)
	}
}

func TestHandleCloseConcurrent(t *testing.T) {
	calls := 0
	h := NewHandle("tun0", 7, func() error {
		calls++
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Close()
		}()
	}
	wg.Wait()
	if calls != 1 {
		t.Errorf("release ran %d times under contention, want 1", calls)
	}
}

func TestHandleNilCloseFn(t *testing.T) {
	h := NewHandle("tun0", 7, nil)
	if err := h.Close(); err != nil {
		t.Errorf("Close with nil release = %v", err)
	}
}
