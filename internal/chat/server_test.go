package chat

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/andy6609/linechat/internal/lineio"
)

func TestServer_Broadcast(t *testing.T) {
	srv, addr := startServer(t, Options{})
	c1 := dial(t, srv, addr)
	c2 := dial(t, srv, addr)

	c1.send(t, "hello world")
	c2.expect(t, "Client-1: hello world")

	// the next line C1 sees is its own anon echo, so the broadcast skipped it
	c1.send(t, "/anon marker")
	c1.expect(t, "~marker")
	c2.expect(t, "~marker")
}

func TestServer_Whisper(t *testing.T) {
	srv, addr := startServer(t, Options{})
	c1 := dial(t, srv, addr)
	c2 := dial(t, srv, addr)

	c1.send(t, "/whisper Client-2 psst")
	c2.expect(t, "@Client-1: psst")

	c1.send(t, "/whisper Nobody hi")
	c1.expect(t, ReplyNoSuchClient)

	c1.send(t, "/anon marker")
	c1.expect(t, "~marker")
	c2.expect(t, "~marker")
}

func TestServer_WhisperToSelf(t *testing.T) {
	srv, addr := startServer(t, Options{})
	c1 := dial(t, srv, addr)

	c1.send(t, "/whisper Client-1 note to self")
	c1.expect(t, "@Client-1: note to self")
}

func TestServer_AnonOmitsSender(t *testing.T) {
	srv, addr := startServer(t, Options{})
	c1 := dial(t, srv, addr)
	c2 := dial(t, srv, addr)

	c1.send(t, "/anon surprise")
	for _, c := range []*testClient{c1, c2} {
		line := c.read(t)
		if line != "~surprise" {
			t.Fatalf("unexpected anon line: %q", line)
		}
		if strings.Contains(line, "Client-1") {
			t.Fatalf("anon line leaks sender: %q", line)
		}
	}
}

func TestServer_RenameThenBroadcastAndList(t *testing.T) {
	srv, addr := startServer(t, Options{})
	c1 := dial(t, srv, addr)
	c2 := dial(t, srv, addr)

	c1.send(t, "/user alice")
	c1.send(t, "hi")
	c2.expect(t, "alice: hi")

	c2.send(t, "/list")
	c2.expect(t, ReplyListHeader)
	c2.expect(t, "alice")
	c2.expect(t, "Client-2")
}

func TestServer_RenameRejections(t *testing.T) {
	srv, addr := startServer(t, Options{})
	c1 := dial(t, srv, addr)
	dial(t, srv, addr)

	c1.send(t, "/user Client-2")
	c1.expect(t, ReplyNameInUse)

	c1.send(t, "/user /root")
	c1.expect(t, ReplyUnknownCommand)

	// renaming to the current name produces no output
	c1.send(t, "/user Client-1")
	c1.send(t, "/list")
	c1.expect(t, ReplyListHeader)
	c1.expect(t, "Client-1")
	c1.expect(t, "Client-2")
}

func TestServer_Quit(t *testing.T) {
	srv, addr := startServer(t, Options{})
	c1 := dial(t, srv, addr)
	c2 := dial(t, srv, addr)

	c1.send(t, "/user alice")
	c1.send(t, "/quit")
	c1.expectClosed(t)
	eventually(t, func() bool { return srv.Roster().Len() == 1 })

	c2.send(t, "/list")
	c2.expect(t, ReplyListHeader)
	c2.expect(t, "Client-2")

	c2.send(t, "/anon marker")
	c2.expect(t, "~marker")
}

func TestServer_EOFDeregisters(t *testing.T) {
	srv, addr := startServer(t, Options{})
	c1 := dial(t, srv, addr)
	dial(t, srv, addr)

	c1.conn.Close()
	eventually(t, func() bool { return srv.Roster().Len() == 1 })

	if _, ok := srv.Roster().Get("Client-1"); ok {
		t.Fatal("disconnected client still registered")
	}
}

func TestServer_DefaultNamesAreNotRecycled(t *testing.T) {
	srv, addr := startServer(t, Options{})
	c1 := dial(t, srv, addr)
	c1.send(t, "/quit")
	c1.expectClosed(t)
	eventually(t, func() bool { return srv.Roster().Len() == 0 })

	c2 := dial(t, srv, addr)
	c2.send(t, "/list")
	c2.expect(t, ReplyListHeader)
	c2.expect(t, "Client-2")
}

func TestServer_SkipsDefaultNameTakenByRename(t *testing.T) {
	srv, addr := startServer(t, Options{})
	c1 := dial(t, srv, addr)
	c1.send(t, "/user Client-2")
	eventually(t, func() bool {
		_, ok := srv.Roster().Get("Client-2")
		return ok
	})

	c2 := dial(t, srv, addr)
	c2.send(t, "/list")
	c2.expect(t, ReplyListHeader)
	c2.expect(t, "Client-2")
	c2.expect(t, "Client-3")
}

func TestServer_MalformedAndEmptyLines(t *testing.T) {
	srv, addr := startServer(t, Options{})
	c1 := dial(t, srv, addr)
	c2 := dial(t, srv, addr)

	c1.send(t, "/shout hi")
	c1.expect(t, ReplyUnknownCommand)

	c1.send(t, "")
	c1.send(t, "   ")
	c1.send(t, "/anon marker")
	c2.expect(t, "~marker")
}

func TestServer_OversizedLineDisconnects(t *testing.T) {
	srv, addr := startServer(t, Options{MaxLineBytes: 16})
	c1 := dial(t, srv, addr)
	dial(t, srv, addr)

	// one byte over the limit; the whole line is consumed so the close is clean
	c1.send(t, strings.Repeat("x", 17))
	c1.expect(t, ReplyUnknownCommand)
	c1.expectClosed(t)
	eventually(t, func() bool { return srv.Roster().Len() == 1 })
}

func TestServer_CountsMessagesByTag(t *testing.T) {
	srv, addr := startServer(t, Options{})
	c1 := dial(t, srv, addr)

	whispers := testutil.ToFloat64(MessagesTotal.WithLabelValues("whisper"))
	c1.send(t, "/whisper Nobody hi")
	c1.expect(t, ReplyNoSuchClient)
	eventually(t, func() bool {
		return testutil.ToFloat64(MessagesTotal.WithLabelValues("whisper")) == whispers+1
	})
}

func TestServer_ShutdownClosesSessions(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(Options{Logger: zerolog.Nop()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	addr := ln.Addr().String()
	c1 := dial(t, srv, addr)
	c2 := dial(t, srv, addr)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}

	c1.expectClosed(t)
	c2.expectClosed(t)
	if srv.Roster().Len() != 0 {
		t.Fatalf("roster not drained: %v", srv.Roster().Snapshot())
	}
	if _, err := net.Dial("tcp", addr); err == nil {
		t.Fatal("listener still accepting")
	}
}

func TestServer_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	srv := NewServer(Options{Logger: zerolog.Nop()})
	err = srv.ListenAndServe(context.Background(), ln.Addr().String())
	if !IsBindError(err) {
		t.Fatalf("expected bind error, got %v", err)
	}
}

func TestServer_ListenerClosedExternallyIsFatal(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(Options{Logger: zerolog.Nop()})
	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), ln) }()

	ln.Close()
	select {
	case err := <-done:
		if !errors.Is(err, net.ErrClosed) {
			t.Fatalf("expected net.ErrClosed, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return")
	}
}

type testClient struct {
	conn net.Conn
	r    *lineio.Reader
	w    *lineio.Writer
}

func startServer(t *testing.T, opts Options) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	opts.Logger = zerolog.Nop()
	srv := NewServer(opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve returned %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv, ln.Addr().String()
}

// dial connects and waits until the server has registered the connection,
// so default names follow dial order.
func dial(t *testing.T, srv *Server, addr string) *testClient {
	t.Helper()
	before := srv.Roster().Len()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	eventually(t, func() bool { return srv.Roster().Len() > before })
	return &testClient{conn: conn, r: lineio.NewReader(conn, 0), w: lineio.NewWriter(conn)}
}

func (c *testClient) send(t *testing.T, line string) {
	t.Helper()
	if err := c.w.WriteLine(line); err != nil {
		t.Fatalf("send %q: %v", line, err)
	}
}

func (c *testClient) read(t *testing.T) string {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadLine()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return line
}

func (c *testClient) expect(t *testing.T, want string) {
	t.Helper()
	if got := c.read(t); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func (c *testClient) expectClosed(t *testing.T) {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadLine()
	if err == nil {
		t.Fatalf("expected closed connection, read %q", line)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		t.Fatal("timeout waiting for the server to close the connection")
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// flakyListener fails the first fails calls to Accept with a plain error.
type flakyListener struct {
	net.Listener
	mu    sync.Mutex
	fails int
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.fails > 0 {
		l.fails--
		l.mu.Unlock()
		return nil, errors.New("accept: too many open files")
	}
	l.mu.Unlock()
	return l.Listener.Accept()
}

func TestServer_TransientAcceptErrorsAreRetried(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(Options{Logger: zerolog.Nop()})
	before := testutil.ToFloat64(AcceptErrorsTotal)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, &flakyListener{Listener: ln, fails: 3}) }()

	c1 := dial(t, srv, ln.Addr().String())
	c1.send(t, "/list")
	c1.expect(t, ReplyListHeader)
	c1.expect(t, "Client-1")

	if got := testutil.ToFloat64(AcceptErrorsTotal); got != before+3 {
		t.Fatalf("accept errors = %v, want %v", got, before+3)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
