package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// AssetURLPrefix marks a persisted part as a reference to an uploaded image.
const AssetURLPrefix = "/uploads/"

// maxAssetExt bounds the extension kept on stored uploads, dot included.
const maxAssetExt = 10

// AssetName returns the file name of an upload stored under a uuid with an
// optional short extension, as "<uuid><ext>".
func AssetName(id uuid.UUID, ext string) string {
	if !ValidAssetExt(ext) {
		ext = ""
	}
	return id.String() + ext
}

// ValidAssetExt reports whether ext may follow the uuid of a stored upload.
func ValidAssetExt(ext string) bool {
	if ext == "" {
		return true
	}
	if len(ext) < 2 || len(ext) > maxAssetExt || ext[0] != '.' || strings.Count(ext, ".") != 1 {
		return false
	}
	return !strings.ContainsAny(ext, "/\\ \t\r\n")
}

// IsAssetRef reports whether s is exactly a stored upload reference:
// the asset prefix, a canonical uuid, then an optional short extension.
func IsAssetRef(s string) bool {
	name, ok := strings.CutPrefix(s, AssetURLPrefix)
	if !ok || len(name) < 36 {
		return false
	}
	id, ext := name[:36], name[36:]
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return false
	}
	return ValidAssetExt(ext)
}

// Turn is one message of a conversation.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

func (t Turn) Clone() Turn {
	parts := make([]Part, len(t.Parts))
	copy(parts, t.Parts)
	return Turn{Role: t.Role, Parts: parts}
}

// Text joins the text parts of the turn with a space, skipping images.
func (t Turn) Text() string {
	var texts []string
	for _, p := range t.Parts {
		if p.Kind == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

type PartKind int

const (
	PartText PartKind = iota
	// PartImage references a stored asset by its URL path.
	PartImage
	// PartInlineImage carries decoded image bytes for an outgoing prompt. Never persisted.
	PartInlineImage
)

// Part is a single content item of a turn.
type Part struct {
	Kind     PartKind
	Text     string
	Path     string
	Data     []byte
	MIMEType string
}

var ErrInlinePart = errors.New("inline image parts cannot be persisted")

func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

func ImagePart(path string) Part {
	return Part{Kind: PartImage, Path: path}
}

func InlineImagePart(data []byte, mimeType string) Part {
	return Part{Kind: PartInlineImage, Data: data, MIMEType: mimeType}
}

// MarshalJSON stores text and image references as plain strings.
func (p Part) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PartText:
		return marshalString(p.Text)
	case PartImage:
		return marshalString(p.Path)
	default:
		return nil, ErrInlinePart
	}
}

func (p *Part) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if IsAssetRef(s) {
		*p = ImagePart(s)
		return nil
	}
	*p = TextPart(s)
	return nil
}

func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
