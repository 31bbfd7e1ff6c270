package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sort"
	"strings"
	"sync"

	"zonewatch/internal/apperr"
	"zonewatch/internal/logger"
	"zonewatch/internal/models"
	"zonewatch/internal/storage"
)

// storedSession is the on-disk shape; the id is the enclosing map key.
type storedSession struct {
	Title   string        `json:"title"`
	History []models.Turn `json:"history"`
	Pinned  bool          `json:"pinned"`
}

// SessionStore owns every conversation in memory and rewrites the whole
// sessions document after each mutation.
type SessionStore struct {
	docs storage.Documents
	log  logger.Logger

	mu       sync.Mutex
	sessions map[string]*models.Session
	notifier Notifier
	observe  WriteObserver
}

// NewSessionStore loads all sessions, falling back to an empty store.
func NewSessionStore(ctx context.Context, docs storage.Documents, log logger.Logger) *SessionStore {
	if log == nil {
		log = logger.NewNop()
	}
	s := &SessionStore{docs: docs, log: log, sessions: make(map[string]*models.Session)}
	s.Reload(ctx)
	return s
}

func (s *SessionStore) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

func (s *SessionStore) SetWriteObserver(fn WriteObserver) {
	s.mu.Lock()
	s.observe = fn
	s.mu.Unlock()
}

// Reload replaces the in-memory sessions with the backing document.
// Missing or corrupt data yields an empty store.
func (s *SessionStore) Reload(ctx context.Context) {
	loaded := make(map[string]*models.Session)
	data, err := s.docs.Read(ctx, storage.DocumentSessions)
	switch {
	case errors.Is(err, storage.ErrNoDocument):
	case err != nil:
		s.log.Warn("sessions", "read sessions failed, starting empty", map[string]any{"error": err.Error()})
	default:
		var stored map[string]storedSession
		if err := json.Unmarshal(data, &stored); err != nil {
			s.log.Warn("sessions", "decode sessions failed, starting empty", map[string]any{"error": err.Error()})
			break
		}
		for id, rec := range stored {
			loaded[id] = &models.Session{ID: id, Title: rec.Title, History: rec.History, Pinned: rec.Pinned}
		}
	}

	s.mu.Lock()
	s.sessions = loaded
	s.mu.Unlock()
}

// List returns pinned sessions first, then by id, both descending.
func (s *SessionStore) List() []*models.Session {
	s.mu.Lock()
	out := make([]*models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Pinned != out[j].Pinned {
			return out[i].Pinned
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *SessionStore) Get(id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperr.NotFound("session not found")
	}
	return sess.Clone(), nil
}

// history returns a copy of the transcript, empty for unknown ids.
func (s *SessionStore) history(id string) []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return sess.Clone().History
}

func (s *SessionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	prev, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return apperr.NotFound("session not found")
	}
	delete(s.sessions, id)
	if err := s.persistLocked(ctx); err != nil {
		s.sessions[id] = prev
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.publish(ctx, id)
	return nil
}

func (s *SessionStore) Rename(ctx context.Context, id, title string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return apperr.NotFound("session not found")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		s.mu.Unlock()
		return apperr.Validation("title must not be empty")
	}
	prev := sess.Title
	sess.Title = title
	if err := s.persistLocked(ctx); err != nil {
		sess.Title = prev
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.publish(ctx, id)
	return nil
}

// TogglePin flips the pinned flag and returns the new value.
func (s *SessionStore) TogglePin(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return false, apperr.NotFound("session not found")
	}
	sess.Pinned = !sess.Pinned
	if err := s.persistLocked(ctx); err != nil {
		sess.Pinned = !sess.Pinned
		s.mu.Unlock()
		return false, err
	}
	pinned := sess.Pinned
	s.mu.Unlock()

	s.publish(ctx, id)
	return pinned, nil
}

// UpsertAfterExchange appends one user and one model turn, creating the
// session when needed and setting its title only if it has none.
func (s *SessionStore) UpsertAfterExchange(ctx context.Context, id string, user, reply models.Turn, derivedTitle string) (*models.Session, error) {
	s.mu.Lock()
	sess, existed := s.sessions[id]
	if !existed {
		sess = &models.Session{ID: id, History: []models.Turn{}}
		s.sessions[id] = sess
	}
	prevTitle := sess.Title
	prevLen := len(sess.History)

	sess.History = append(sess.History, user.Clone(), reply.Clone())
	if sess.Title == "" {
		sess.Title = derivedTitle
	}
	if err := s.persistLocked(ctx); err != nil {
		if existed {
			sess.Title = prevTitle
			sess.History = sess.History[:prevLen]
		} else {
			delete(s.sessions, id)
		}
		s.mu.Unlock()
		return nil, err
	}
	out := sess.Clone()
	s.mu.Unlock()

	s.publish(ctx, id)
	return out, nil
}

// ReferencedAssets returns the base names of every uploaded asset still in some history.
func (s *SessionStore) ReferencedAssets() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make(map[string]struct{})
	for _, sess := range s.sessions {
		for _, turn := range sess.History {
			for _, p := range turn.Parts {
				if p.Kind == models.PartImage {
					refs[path.Base(p.Path)] = struct{}{}
				}
			}
		}
	}
	return refs
}

func (s *SessionStore) persistLocked(ctx context.Context) error {
	stored := make(map[string]storedSession, len(s.sessions))
	for id, sess := range s.sessions {
		history := sess.History
		if history == nil {
			history = []models.Turn{}
		}
		stored[id] = storedSession{Title: sess.Title, History: history, Pinned: sess.Pinned}
	}
	body, err := encodeDocument(stored)
	if err != nil {
		return apperr.Persistence("failed to encode sessions", err)
	}
	err = s.docs.Write(ctx, storage.DocumentSessions, body)
	if s.observe != nil {
		s.observe(storage.DocumentSessions, err)
	}
	if err != nil {
		s.log.Error("sessions", "write sessions failed", map[string]any{"error": err})
		return apperr.Persistence("failed to save sessions", err)
	}
	return nil
}

func (s *SessionStore) publish(ctx context.Context, id string) {
	s.mu.Lock()
	n := s.notifier
	s.mu.Unlock()
	if n != nil {
		n.Publish(ctx, ScopeSessions, id)
	}
}
