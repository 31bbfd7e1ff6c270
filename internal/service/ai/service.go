package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"zonewatch/internal/config"
	"zonewatch/internal/models"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// ErrEmptyReply is returned when the model answers with no text.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Generator is the external model collaborator.
type Generator interface {
	Generate(ctx context.Context, instruction string, turns []models.Turn) (string, error)
}

// NewGenerator builds the generator for the configured provider.
func NewGenerator(ctx context.Context, cfg config.ProviderConfig) (Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key for provider %s not configured", cfg.Name)
	}

	switch cfg.Name {
	case "gemini":
		clientCfg := &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
		if cfg.BaseURL != "" {
			clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
		}
		client, err := genai.NewClient(ctx, clientCfg)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return &geminiGenerator{models: client.Models, model: cfg.Model}, nil
	case "openai":
		chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return NewEinoGenerator(chatModel), nil
	case "claude":
		var baseURLPtr *string
		if cfg.BaseURL != "" {
			baseURLPtr = &cfg.BaseURL
		}
		chatModel, err := claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 4096,
		})
		if err != nil {
			return nil, fmt.Errorf("create claude model: %w", err)
		}
		return NewEinoGenerator(chatModel), nil
	default:
		return nil, fmt.Errorf("invalid provider: %s", cfg.Name)
	}
}

type geminiGenerator struct {
	models *genai.Models
	model  string
}

func (g *geminiGenerator) Generate(ctx context.Context, instruction string, turns []models.Turn) (string, error) {
	genCfg := &genai.GenerateContentConfig{}
	if instruction != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(instruction, genai.RoleUser)
	}
	resp, err := g.models.GenerateContent(ctx, g.model, toGenaiContents(turns), genCfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func toGenaiContents(turns []models.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		parts := make([]*genai.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			switch p.Kind {
			case models.PartInlineImage:
				parts = append(parts, genai.NewPartFromBytes(p.Data, p.MIMEType))
			case models.PartImage:
				// stored assets are replayed by reference, never re-uploaded
				parts = append(parts, genai.NewPartFromText(p.Path))
			default:
				parts = append(parts, genai.NewPartFromText(p.Text))
			}
		}
		if len(parts) == 0 {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if turn.Role == models.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents
}

type einoGenerator struct {
	chatModel model.BaseChatModel
}

// NewEinoGenerator adapts any eino chat model.
func NewEinoGenerator(chatModel model.BaseChatModel) Generator {
	return &einoGenerator{chatModel: chatModel}
}

func (g *einoGenerator) Generate(ctx context.Context, instruction string, turns []models.Turn) (string, error) {
	resp, err := g.chatModel.Generate(ctx, toEinoMessages(instruction, turns))
	if err != nil {
		return "", fmt.Errorf("generate ai reply failed: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyReply
	}
	return resp.Content, nil
}

func toEinoMessages(instruction string, turns []models.Turn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(turns)+1)
	if instruction != "" {
		messages = append(messages, schema.SystemMessage(instruction))
	}
	for _, turn := range turns {
		role := schema.User
		if turn.Role == models.RoleModel {
			role = schema.Assistant
		}

		if !hasInlineImage(turn) {
			messages = append(messages, &schema.Message{Role: role, Content: einoText(turn)})
			continue
		}

		parts := make([]schema.ChatMessagePart, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			switch p.Kind {
			case models.PartInlineImage:
				parts = append(parts, schema.ChatMessagePart{
					Type: schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{
						URL:      dataURL(p.MIMEType, p.Data),
						MIMEType: p.MIMEType,
					},
				})
			case models.PartImage:
				parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: p.Path})
			default:
				parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: p.Text})
			}
		}
		messages = append(messages, &schema.Message{Role: role, MultiContent: parts})
	}
	return messages
}

func hasInlineImage(turn models.Turn) bool {
	for _, p := range turn.Parts {
		if p.Kind == models.PartInlineImage {
			return true
		}
	}
	return false
}

// einoText flattens a turn: its text first, then stored image references, one per line.
func einoText(turn models.Turn) string {
	lines := make([]string, 0, len(turn.Parts))
	if text := turn.Text(); text != "" {
		lines = append(lines, text)
	}
	for _, p := range turn.Parts {
		if p.Kind == models.PartImage {
			lines = append(lines, p.Path)
		}
	}
	return strings.Join(lines, "\n")
}

func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
