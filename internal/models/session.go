package models

// Session is one persisted conversation.
type Session struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	History []Turn `json:"history"`
	Pinned  bool   `json:"pinned"`
}

// Clone returns a deep copy so callers never share history slices with the store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.History = make([]Turn, len(s.History))
	for i, t := range s.History {
		c.History[i] = t.Clone()
	}
	return &c
}
