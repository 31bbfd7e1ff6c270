package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zonewatch/internal/config"
	"zonewatch/internal/models"
)

type fakeChatModel struct {
	reply    string
	err      error
	received []*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.received = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func sampleTurns() []models.Turn {
	return []models.Turn{
		{Role: models.RoleUser, Parts: []models.Part{models.TextPart("look"), models.ImagePart("/uploads/a.png")}},
		{Role: models.RoleModel, Parts: []models.Part{models.TextPart("a cat")}},
		{Role: models.RoleUser, Parts: []models.Part{models.TextPart("and this?"), models.InlineImagePart([]byte{0x89, 'P', 'N', 'G'}, "image/png")}},
	}
}

func TestEinoGeneratorBuildsMessages(t *testing.T) {
	fake := &fakeChatModel{reply: "a dog"}
	gen := NewEinoGenerator(fake)

	reply, err := gen.Generate(context.Background(), "be helpful", sampleTurns())
	require.NoError(t, err)
	assert.Equal(t, "a dog", reply)

	require.Len(t, fake.received, 4)
	assert.Equal(t, schema.System, fake.received[0].Role)
	assert.Equal(t, "be helpful", fake.received[0].Content)

	assert.Equal(t, schema.User, fake.received[1].Role)
	assert.Equal(t, "look\n/uploads/a.png", fake.received[1].Content)

	assert.Equal(t, schema.Assistant, fake.received[2].Role)
	assert.Equal(t, "a cat", fake.received[2].Content)

	last := fake.received[3]
	require.Len(t, last.MultiContent, 2)
	assert.Equal(t, schema.ChatMessagePartTypeText, last.MultiContent[0].Type)
	assert.Equal(t, "and this?", last.MultiContent[0].Text)
	assert.Equal(t, schema.ChatMessagePartTypeImageURL, last.MultiContent[1].Type)
	assert.True(t, strings.HasPrefix(last.MultiContent[1].ImageURL.URL, "data:image/png;base64,"))
}

func TestEinoTextPutsTextBeforeImageRefs(t *testing.T) {
	mixed := models.Turn{Role: models.RoleUser, Parts: []models.Part{
		models.TextPart("look"), models.ImagePart("/uploads/a.png"), models.TextPart("here"),
	}}
	assert.Equal(t, "look here\n/uploads/a.png", einoText(mixed))

	imageOnly := models.Turn{Role: models.RoleUser, Parts: []models.Part{models.ImagePart("/uploads/a.png")}}
	assert.Equal(t, "/uploads/a.png", einoText(imageOnly))
}

func TestEinoGeneratorEmptyReply(t *testing.T) {
	gen := NewEinoGenerator(&fakeChatModel{reply: "  "})
	_, err := gen.Generate(context.Background(), "", sampleTurns())
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestEinoGeneratorWrapsError(t *testing.T) {
	boom := errors.New("rate limited")
	gen := NewEinoGenerator(&fakeChatModel{err: boom})
	_, err := gen.Generate(context.Background(), "", sampleTurns())
	assert.ErrorIs(t, err, boom)
}

func TestToGenaiContents(t *testing.T) {
	contents := toGenaiContents(sampleTurns())
	require.Len(t, contents, 3)

	assert.Equal(t, string(models.RoleUser), contents[0].Role)
	require.Len(t, contents[0].Parts, 2)
	assert.Equal(t, "look", contents[0].Parts[0].Text)
	assert.Equal(t, "/uploads/a.png", contents[0].Parts[1].Text)

	assert.Equal(t, "model", contents[1].Role)

	img := contents[2].Parts[1]
	require.NotNil(t, img.InlineData)
	assert.Equal(t, "image/png", img.InlineData.MIMEType)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, img.InlineData.Data)
}

func TestToGenaiContentsSkipsEmptyTurns(t *testing.T) {
	contents := toGenaiContents([]models.Turn{{Role: models.RoleUser}})
	assert.Empty(t, contents)
}

func TestNewGeneratorRequiresAPIKey(t *testing.T) {
	_, err := NewGenerator(context.Background(), config.ProviderConfig{Name: "gemini", Model: "gemini-2.5-pro"})
	require.Error(t, err)
}

func TestNewGeneratorUnknownProvider(t *testing.T) {
	_, err := NewGenerator(context.Background(), config.ProviderConfig{Name: "llama", Model: "x", APIKey: "k"})
	require.Error(t, err)
}
