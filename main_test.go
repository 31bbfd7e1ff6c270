package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSessionsCommandListsPinnedFirst(t *testing.T) {
	dir := t.TempDir()
	sessions := `{
  "session-1": {"title": "older", "history": [{"role": "user", "parts": ["hi"]}, {"role": "model", "parts": ["hello"]}], "pinned": true},
  "session-2": {"title": "newer", "history": [], "pinned": false}
}`
	if err := os.WriteFile(filepath.Join(dir, "sessions.json"), []byte(sessions), 0o644); err != nil {
		t.Fatalf("write sessions: %v", err)
	}
	cfgPath := filepath.Join(dir, "config.json")
	cfg := `{"basic_config": {"sessions_file": "sessions.json", "personality_file": "personality.json", "uploads_dir": "uploads"}}`
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"sessions", "--config", cfgPath})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", out.String())
	}
	if lines[0] != "* session-1\t2\tolder" || lines[1] != "  session-2\t0\tnewer" {
		t.Fatalf("unexpected output: %q", lines)
	}
}

func TestSessionsCommandMissingConfig(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"sessions", "--config", filepath.Join(t.TempDir(), "nope.json")})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}
