package telegram

import (
	"sync"

	"equityLens/internal/analytics"
	"equityLens/internal/portfolio"
)

// Session is the per-chat analysis state. Commands hold mu for their whole
// run so a chat's registry and view are never used concurrently.
type Session struct {
	mu         sync.Mutex
	Portfolios *portfolio.Registry
	Viewport   *analytics.Bounds // nil until /view or /home
	Filter     analytics.FilterRanges
}

func newSession() *Session {
	return &Session{
		Portfolios: portfolio.NewRegistry(),
		Filter:     analytics.DefaultFilter(),
	}
}

type sessions struct {
	mu    sync.Mutex
	chats map[int64]*Session
}

func (s *sessions) get(chatID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chats == nil {
		s.chats = map[int64]*Session{}
	}
	sess, ok := s.chats[chatID]
	if !ok {
		sess = newSession()
		s.chats[chatID] = sess
	}
	return sess
}
