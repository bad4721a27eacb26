package chat

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/andy6609/linechat/internal/lineio"
)

// State is the lifecycle stage of a Session.
type State int32

const (
	StateConnected State = iota
	StateClosing
	StateClosed
)

func (st State) String() string {
	switch st {
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler routes parsed commands. Router is the production implementation.
type Handler interface {
	Dispatch(from *Session, cmd Command)
}

// SessionOptions tune a Session's transport.
type SessionOptions struct {
	// MaxLineBytes bounds inbound lines; zero selects lineio.DefaultMaxLine.
	MaxLineBytes int
	// WriteTimeout bounds each outbound write; zero disables the deadline.
	WriteTimeout time.Duration
	Logger       zerolog.Logger
}

// Session is the server side of one connected peer.
type Session struct {
	ID   string
	Addr string

	conn   net.Conn
	reader *lineio.Reader // used only by Run

	wmu          sync.Mutex
	writer       *lineio.Writer
	writeTimeout time.Duration

	nameMu sync.RWMutex
	name   string

	state  atomic.Int32
	roster *Roster
	log    zerolog.Logger
}

// NewSession wraps conn. The session is not visible to anyone until it is
// added to roster.
func NewSession(conn net.Conn, name string, roster *Roster, opts SessionOptions) *Session {
	id := uuid.NewString()
	addr := ""
	if ra := conn.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	return &Session{
		ID:           id,
		Addr:         addr,
		conn:         conn,
		reader:       lineio.NewReader(conn, opts.MaxLineBytes),
		writer:       lineio.NewWriter(conn),
		writeTimeout: opts.WriteTimeout,
		name:         name,
		roster:       roster,
		log:          opts.Logger.With().Str("session", id).Str("addr", addr).Logger(),
	}
}

// Name returns the current display name.
func (s *Session) Name() string {
	s.nameMu.RLock()
	defer s.nameMu.RUnlock()
	return s.name
}

// rename is called by the Roster once the new key is in place.
func (s *Session) rename(name string) {
	s.nameMu.Lock()
	s.name = name
	s.nameMu.Unlock()
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Run reads lines until QUIT, end of stream or a read error, handing each
// parsed line to h. It closes the session before returning.
func (s *Session) Run(h Handler) {
	reason := "eof"
	defer func() { s.close(reason) }()

	for s.State() == StateConnected {
		line, err := s.reader.ReadLine()
		if err != nil {
			switch {
			case errors.Is(err, lineio.ErrLineTooLong):
				MessagesTotal.WithLabelValues(TagMalformed.String()).Inc()
				s.Send(ReplyUnknownCommand)
				reason = "line too long"
			case s.State() != StateConnected:
				reason = "closed"
			case !errors.Is(err, io.EOF):
				reason = "read error"
				s.log.Debug().Err(err).Msg("read failed")
			}
			return
		}

		cmd := Parse(line)
		h.Dispatch(s, cmd)
		if cmd.Tag == TagQuit {
			reason = "quit"
			return
		}
	}
	reason = "closed"
}

// Close deregisters the session and releases its socket. It is idempotent.
func (s *Session) Close() {
	s.close("closed")
}

func (s *Session) close(reason string) {
	if !s.state.CompareAndSwap(int32(StateConnected), int32(StateClosing)) {
		return
	}
	if s.roster != nil {
		s.roster.Remove(s)
	}
	// closing the socket also unblocks an in-flight write or read
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Debug().Err(err).Msg("close failed")
	}
	s.state.Store(int32(StateClosed))
	s.log.Info().Str("name", s.Name()).Str("reason", reason).Msg("session closed")
}
