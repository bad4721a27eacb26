package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Router formats outbound lines for a parsed command and writes them to the
// sessions that should receive them. Fan-out is sequential.
type Router struct {
	roster *Roster
	log    zerolog.Logger
}

func NewRouter(roster *Roster, logger zerolog.Logger) *Router {
	return &Router{roster: roster, log: logger}
}

// Dispatch handles one command from one session.
func (r *Router) Dispatch(from *Session, cmd Command) {
	start := time.Now()
	defer func() {
		tag := cmd.Tag.String()
		MessagesTotal.WithLabelValues(tag).Inc()
		DispatchDuration.WithLabelValues(tag).Observe(time.Since(start).Seconds())
	}()

	switch cmd.Tag {
	case TagBroadcast:
		r.broadcast(from, cmd.Text)
	case TagWhisper:
		r.whisper(from, cmd.Target, cmd.Text)
	case TagAnon:
		line := "~" + cmd.Text
		r.roster.ForEach(func(s *Session) {
			s.Send(line)
		})
	case TagRename:
		r.rename(from, cmd.Name)
	case TagList:
		lines := append([]string{ReplyListHeader}, r.roster.Snapshot()...)
		from.SendLines(lines...)
	case TagQuit:
		from.close("quit")
	default:
		from.Send(ReplyUnknownCommand)
	}
}

func (r *Router) broadcast(from *Session, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	line := from.Name() + ": " + text
	r.roster.ForEach(func(s *Session) {
		if s != from {
			s.Send(line)
		}
	})
}

func (r *Router) whisper(from *Session, target, text string) {
	to, ok := r.roster.Get(target)
	if !ok {
		r.log.Debug().Str("from", from.Name()).Str("to", target).Msg("whisper target not found")
		from.Send(ReplyNoSuchClient)
		return
	}
	to.Send("@" + from.Name() + ": " + text)
}

func (r *Router) rename(from *Session, name string) {
	old := from.Name()
	if old == name {
		return
	}

	err := r.roster.Rename(from, name)
	switch {
	case err == nil:
		r.log.Info().Str("session", from.ID).Str("from", old).Str("to", name).Msg("client renamed")
	case errors.Is(err, ErrNameTaken):
		from.Send(ReplyNameInUse)
	case errors.Is(err, ErrNameInvalid):
		from.Send(ReplyUnknownCommand)
	default:
		// the session was removed concurrently
		r.log.Debug().Err(err).Str("session", from.ID).Msg("rename dropped")
	}
}
