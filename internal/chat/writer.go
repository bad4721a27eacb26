package chat

import "time"

// Send writes one line to the peer. It is safe for concurrent use; writes to a
// closed session are dropped. A failed write closes this session only.
func (s *Session) Send(line string) {
	s.SendLines(line)
}

// SendLines writes lines back to back under one hold of the write lock.
func (s *Session) SendLines(lines ...string) {
	if err := s.write(lines); err != nil {
		WriteFailuresTotal.Inc()
		s.log.Warn().Err(err).Str("name", s.Name()).Msg("write failed, closing recipient")
		s.close("write failed")
	}
}

func (s *Session) write(lines []string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if s.State() != StateConnected {
		return nil
	}
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	if err := s.writer.WriteLines(lines...); err != nil {
		if s.State() != StateConnected {
			// closed while the write was in flight
			return nil
		}
		return err
	}
	return nil
}
