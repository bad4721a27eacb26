package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tevino/abool"
)

// DefaultNamePrefix prefixes the server-assigned name of each new connection.
const DefaultNamePrefix = "Client-"

// Options configure a Server.
type Options struct {
	MaxLineBytes int
	WriteTimeout time.Duration
	Logger       zerolog.Logger
}

// Server accepts TCP connections, registers a session for each and routes
// their lines.
type Server struct {
	opts   Options
	log    zerolog.Logger
	roster *Roster
	router *Router

	closing  abool.AtomicBool
	sessions sync.WaitGroup

	// next is the last default name number handed out; owned by the accept loop.
	next uint64
}

func NewServer(opts Options) *Server {
	roster := NewRoster()
	return &Server{
		opts:   opts,
		log:    opts.Logger,
		roster: roster,
		router: NewRouter(roster, opts.Logger),
	}
}

// Roster exposes the live roster.
func (s *Server) Roster() *Roster {
	return s.roster
}

// ListenAndServe binds addr and serves until ctx is cancelled. A bind
// failure is reported as ErrBind.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBind, addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is cancelled or the listener fails for good.
// Before returning it closes every session and waits for their read loops.
// It returns nil after a cancellation.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("server started")

	stop := context.AfterFunc(ctx, func() {
		s.closing.Set()
		_ = ln.Close()
	})
	defer stop()

	err := s.acceptLoop(ln)
	s.shutdown(ln)
	return err
}

func (s *Server) acceptLoop(ln net.Listener) error {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.IsSet() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}

			AcceptErrorsTotal.Inc()
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > time.Second {
				delay = time.Second
			}
			s.log.Warn().Err(err).Dur("retry_in", delay).Msg("accept failed")
			time.Sleep(delay)
			continue
		}
		delay = 0
		s.register(conn)
	}
}

func (s *Server) register(conn net.Conn) {
	sess := NewSession(conn, "", s.roster, SessionOptions{
		MaxLineBytes: s.opts.MaxLineBytes,
		WriteTimeout: s.opts.WriteTimeout,
		Logger:       s.log,
	})

	// a peer may already have renamed itself to the next default name
	for {
		s.next++
		name := DefaultNamePrefix + strconv.FormatUint(s.next, 10)
		if err := s.roster.Add(name, sess); err == nil {
			break
		}
	}

	s.log.Info().Str("session", sess.ID).Str("addr", sess.Addr).Str("name", sess.Name()).Msg("client connected")

	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()
		sess.Run(s.router)
	}()
}

func (s *Server) shutdown(ln net.Listener) {
	s.log.Info().Msg("shutting down")

	s.closing.Set()
	_ = ln.Close()

	s.roster.ForEach(func(sess *Session) {
		sess.Close()
	})
	s.sessions.Wait()

	s.log.Info().Msg("shutdown complete")
}
