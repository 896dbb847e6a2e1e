package conversation

import (
	"time"

	"github.com/sandevgo/ctxkeeper/internal/core"
)

type Stats struct {
	SessionID         string
	TotalMessages     int
	UserMessages      int
	AssistantMessages int
	MemoryItems       int
	ContextFiles      int
	CreatedAt         time.Time
	Duration          time.Duration
}

func SessionStats(sess *core.Session) Stats {
	st := Stats{
		SessionID:     sess.ID,
		TotalMessages: len(sess.Messages),
		MemoryItems:   len(sess.MemoryItems),
		ContextFiles:  len(sess.ContextFiles),
		CreatedAt:     sess.CreatedAt,
		Duration:      sess.UpdatedAt.Sub(sess.CreatedAt),
	}
	for _, m := range sess.Messages {
		switch m.Role {
		case core.RoleUser:
			st.UserMessages++
		case core.RoleAssistant:
			st.AssistantMessages++
		}
	}
	return st
}

// Stats reports counters for the current session. ok is false when none exists.
func (s *Store) Stats() (Stats, bool) {
	sess := s.Session()
	if sess == nil {
		return Stats{}, false
	}
	return SessionStats(sess), true
}
