package assistant

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"zonewatch/internal/models"
	"zonewatch/internal/storage"
)

func newFileDocs(t *testing.T) (*storage.FileDocuments, string, string) {
	t.Helper()
	dir := t.TempDir()
	personality := filepath.Join(dir, "personality.json")
	sessions := filepath.Join(dir, "chat_sessions.json")
	docs := storage.NewFileDocuments(map[string]string{
		storage.DocumentPersonality: personality,
		storage.DocumentSessions:    sessions,
	})
	return docs, personality, sessions
}

// flakyDocs wraps a backend and fails writes while failing is set.
type flakyDocs struct {
	storage.Documents
	mu      sync.Mutex
	failing bool
	writes  int
}

func (f *flakyDocs) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *flakyDocs) Write(ctx context.Context, name string, body []byte) error {
	f.mu.Lock()
	f.writes++
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return errors.New("disk full")
	}
	return f.Documents.Write(ctx, name, body)
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []string
}

func (r *recordingNotifier) Publish(_ context.Context, scope, id string) {
	r.mu.Lock()
	r.changes = append(r.changes, scope+":"+id)
	r.mu.Unlock()
}

type stubGenerator struct {
	mu          sync.Mutex
	reply       string
	err         error
	instruction string
	turns       []models.Turn
	calls       int
}

func (s *stubGenerator) Generate(_ context.Context, instruction string, turns []models.Turn) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.instruction = instruction
	s.turns = turns
	return s.reply, s.err
}

func userTurn(text string) models.Turn {
	return models.Turn{Role: models.RoleUser, Parts: []models.Part{models.TextPart(text)}}
}

func modelTurn(text string) models.Turn {
	return models.Turn{Role: models.RoleModel, Parts: []models.Part{models.TextPart(text)}}
}

// chartRef has the shape AssetStore.Save produces.
const chartRef = "/uploads/0b7d3a52-95c1-4f0e-8e2a-6d4c1f9b7e30.png"

// pngBytes is enough of a PNG header for content sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
