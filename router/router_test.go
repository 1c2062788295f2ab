// router/router_test.go
package router

import (
	"testing"
	"time"
)

func TestExactDelivery(t *testing.T) {
	r := New()
	sub := r.Subscribe(T("resp", 7), 1)

	if n := r.Publish(T("resp", 7), "hello"); n != 1 {
		t.Fatalf("receivers = %d, want 1", n)
	}
	expectPayload(t, sub, "hello")

	if n := r.Publish(T("resp", 8), "other"); n != 0 {
		t.Fatalf("receivers = %d, want 0", n)
	}
	expectNothing(t, sub)
}

func TestMailboxSingleShot(t *testing.T) {
	r := New()
	sub := r.Subscribe(T("resp", 1), 1)

	// A second publish into a full single-slot mailbox evicts the first:
	// only the latest payload is held for the waiter.
	r.Publish(T("resp", 1), "first")
	r.Publish(T("resp", 1), "second")
	expectPayload(t, sub, "second")
	expectNothing(t, sub)
}

func TestCancelRemovesSubscription(t *testing.T) {
	r := New()
	sub := r.Subscribe(T("resp", 3), 1)
	sub.Cancel()

	if n := r.Publish(T("resp", 3), "late"); n != 0 {
		t.Fatalf("receivers after cancel = %d, want 0", n)
	}
	if _, ok := <-sub.ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
}

func TestSingleWildcard(t *testing.T) {
	r := New()
	sub := r.Subscribe(T("frame", SingleWild), 4)

	r.Publish(T("frame", 0x08), "batt")
	r.Publish(T("frame", 0xAB), "fw")
	expectPayload(t, sub, "batt")
	expectPayload(t, sub, "fw")

	if n := r.Publish(T("frame"), "short"); n != 0 {
		t.Fatalf("'+' must not match zero tokens, receivers = %d", n)
	}
}

func TestMultiWildcard(t *testing.T) {
	r := New()
	all := r.Subscribe(T(MultiWild), 8)
	frames := r.Subscribe(T("frame", MultiWild), 8)

	r.Publish(T("frame", 1), "a")
	r.Publish(T("resp", 2), "b")
	r.Publish(T("frame"), "c") // '#' matches zero remaining tokens

	expectPayload(t, all, "a")
	expectPayload(t, all, "b")
	expectPayload(t, all, "c")
	expectPayload(t, frames, "a")
	expectPayload(t, frames, "c")
	expectNothing(t, frames)
}

func TestOverflowDropsOldest(t *testing.T) {
	r := New()
	sub := r.Subscribe(T("tap"), 2)

	for i := 0; i < 5; i++ {
		r.Publish(T("tap"), i)
	}
	expectPayload(t, sub, 3)
	expectPayload(t, sub, 4)
	expectNothing(t, sub)
}

func TestPublishNeverBlocks(t *testing.T) {
	r := New()
	_ = r.Subscribe(T("tap"), 1) // nobody reading

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			r.Publish(T("tap"), i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full, unread subscription")
	}
}

func expectPayload(t *testing.T, sub *Sub, want any) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		if got != want {
			t.Fatalf("payload = %v, want %v", got, want)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for %v", want)
	}
}

func expectNothing(t *testing.T, sub *Sub) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected payload %v", got)
	case <-time.After(20 * time.Millisecond):
	}
}
