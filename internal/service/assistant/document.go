package assistant

import (
	"bytes"
	"encoding/json"

	"zonewatch/internal/redis"
)

// Change feed scopes published by the stores.
const (
	ScopePersonality = redis.ScopePersonality
	ScopeSessions    = redis.ScopeSessions
)

// encodeDocument renders the indented UTF-8 JSON used for every persisted document.
func encodeDocument(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
