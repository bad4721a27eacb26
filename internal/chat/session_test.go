package chat

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSession_WriteFailureClosesOnlyRecipient(t *testing.T) {
	r := NewRoster()
	sender, _ := newPipeSession(t, r)
	recipient, recipientPeer := newPipeSession(t, r)
	mustAdd(t, r, "Client-1", sender)
	mustAdd(t, r, "Client-2", recipient)

	failures := testutil.ToFloat64(WriteFailuresTotal)
	recipientPeer.Close()

	recipient.Send("Client-1: hello")

	if recipient.State() != StateClosed {
		t.Fatalf("recipient state = %v, want closed", recipient.State())
	}
	if sender.State() != StateConnected {
		t.Fatalf("sender state = %v, want connected", sender.State())
	}
	if _, ok := r.Get("Client-2"); ok {
		t.Fatal("failed recipient still in roster")
	}
	if got := testutil.ToFloat64(WriteFailuresTotal); got != failures+1 {
		t.Fatalf("write failures = %v, want %v", got, failures+1)
	}
}

func TestSession_SendAfterCloseIsDropped(t *testing.T) {
	r := NewRoster()
	s, peer := newPipeSession(t, r)
	mustAdd(t, r, "Client-1", s)

	s.Close()
	s.Close()

	if r.Len() != 0 {
		t.Fatalf("closed session still registered: %v", r.Snapshot())
	}

	done := make(chan struct{})
	go func() {
		s.Send("dropped")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send on a closed session blocked")
	}

	buf := make([]byte, 1)
	if n, err := peer.Read(buf); err == nil {
		t.Fatalf("peer read %d bytes after close", n)
	}
}

func TestSession_WriteTimeoutClosesStalledPeer(t *testing.T) {
	r := NewRoster()
	s, _ := newPipeSession(t, r)
	s.writeTimeout = 50 * time.Millisecond
	mustAdd(t, r, "Client-1", s)

	// nobody reads the pipe, so the write stalls until the deadline
	s.Send("anyone there?")

	if s.State() != StateClosed {
		t.Fatalf("state = %v, want closed", s.State())
	}
	if r.Len() != 0 {
		t.Fatalf("stalled session still registered: %v", r.Snapshot())
	}
}
