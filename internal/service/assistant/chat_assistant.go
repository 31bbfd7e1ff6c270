package assistant

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"zonewatch/internal/apperr"
	"zonewatch/internal/logger"
	"zonewatch/internal/models"
	"zonewatch/internal/observability"
	"zonewatch/internal/service/ai"
	"zonewatch/internal/worker"
)

const (
	// UntitledSession is the title of a session started with an upload that has no filename.
	UntitledSession = "新しいチャット"
	titleMaxRunes   = 40
)

type ExchangeRequest struct {
	SessionID string
	Text      string
	Upload    *models.Upload
}

type ExchangeResult struct {
	Reply string `json:"reply"`
	Title string `json:"title"`
}

// ChatService runs one exchange: ask the model, store the upload, append both turns.
type ChatService struct {
	personality *PersonalityStore
	sessions    *SessionStore
	assets      *AssetStore
	generator   ai.Generator
	dispatcher  *worker.Dispatcher
	timeout     time.Duration
	metrics     *observability.Metrics
	log         logger.Logger
}

type ChatDeps struct {
	Personality *PersonalityStore
	Sessions    *SessionStore
	Assets      *AssetStore
	Generator   ai.Generator
	Dispatcher  *worker.Dispatcher // optional, generate inline when nil
	Timeout     time.Duration      // optional
	Metrics     *observability.Metrics
	Logger      logger.Logger
}

func NewChatService(deps ChatDeps) *ChatService {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &ChatService{
		personality: deps.Personality,
		sessions:    deps.Sessions,
		assets:      deps.Assets,
		generator:   deps.Generator,
		dispatcher:  deps.Dispatcher,
		timeout:     deps.Timeout,
		metrics:     deps.Metrics,
		log:         log,
	}
}

// Exchange sends the prior transcript plus a new user turn to the model and
// records the exchange. Nothing is stored unless the model call and the upload
// write both succeed.
func (c *ChatService) Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	result, err := c.exchange(ctx, req)
	c.countOutcome(err)
	return result, err
}

func (c *ChatService) exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, apperr.Validation("session_id is required")
	}
	text := strings.TrimSpace(req.Text)
	upload := req.Upload
	if upload != nil && len(upload.Data) == 0 {
		upload = nil
	}
	if text == "" && upload == nil {
		return nil, apperr.Validation("message or file is required")
	}

	var mimeType string
	if upload != nil {
		mimeType = http.DetectContentType(upload.Data)
		if !strings.HasPrefix(mimeType, "image/") {
			return nil, apperr.Validation("file must be an image")
		}
	}

	instruction := c.personality.EffectiveInstruction()
	prompt := c.sessions.history(sessionID)
	outgoing := models.Turn{Role: models.RoleUser}
	if text != "" {
		outgoing.Parts = append(outgoing.Parts, models.TextPart(text))
	}
	if upload != nil {
		outgoing.Parts = append(outgoing.Parts, models.InlineImagePart(upload.Data, mimeType))
	}
	prompt = append(prompt, outgoing)

	reply, err := c.generate(ctx, sessionID, instruction, prompt)
	if err != nil {
		return nil, err
	}

	stored := models.Turn{Role: models.RoleUser}
	if text != "" {
		stored.Parts = append(stored.Parts, models.TextPart(text))
	}
	var assetRef string
	if upload != nil {
		assetRef, err = c.assets.Save(upload)
		if err != nil {
			c.log.Error("chat", "store upload failed", map[string]any{"session_id": sessionID, "error": err})
			return nil, apperr.Upstream("failed to store upload", err)
		}
		stored.Parts = append(stored.Parts, models.ImagePart(assetRef))
	}
	if stored.Parts == nil {
		stored.Parts = []models.Part{}
	}
	modelTurn := models.Turn{Role: models.RoleModel, Parts: []models.Part{models.TextPart(reply)}}

	session, err := c.sessions.UpsertAfterExchange(ctx, sessionID, stored, modelTurn, deriveTitle(text, upload))
	if err != nil {
		if assetRef != "" {
			if rmErr := c.assets.Remove(assetRef); rmErr != nil {
				c.log.Warn("chat", "remove upload after failed save", map[string]any{"asset": assetRef, "error": rmErr.Error()})
			}
		}
		return nil, err
	}

	c.log.Info("chat", "exchange completed", map[string]any{
		"session_id": sessionID,
		"turns":      len(session.History),
		"with_image": upload != nil,
	})
	return &ExchangeResult{Reply: reply, Title: session.Title}, nil
}

// generate runs the model call on the dispatcher, keyed by session so one
// session never has two calls in flight.
func (c *ChatService) generate(ctx context.Context, sessionID, instruction string, prompt []models.Turn) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reply string
	call := func(ctx context.Context) error {
		start := time.Now()
		out, err := c.generator.Generate(ctx, instruction, prompt)
		if c.metrics != nil {
			c.metrics.ObserveUpstreamLatency(time.Since(start))
		}
		if err != nil {
			return err
		}
		reply = out
		return nil
	}

	var err error
	if c.dispatcher != nil {
		err = c.dispatcher.Submit(ctx, sessionID, call)
	} else {
		err = call(ctx)
	}
	if err == nil {
		return reply, nil
	}

	if errors.Is(err, worker.ErrDispatcherBusy) {
		c.log.Warn("chat", "dispatcher queue full", map[string]any{"session_id": sessionID})
		return "", apperr.Busy("too many chats in progress, try again shortly", err)
	}
	c.log.Error("chat", "model call failed", map[string]any{"session_id": sessionID, "error": err})
	return "", apperr.Upstream("the AI service could not produce a reply", err)
}

func (c *ChatService) countOutcome(err error) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	c.metrics.Exchanges.WithLabelValues(outcome).Inc()
}

// deriveTitle uses the first 40 characters of the text, else the upload's filename.
func deriveTitle(text string, upload *models.Upload) string {
	if text != "" {
		runes := []rune(text)
		if len(runes) > titleMaxRunes {
			runes = runes[:titleMaxRunes]
		}
		return string(runes)
	}
	if upload != nil && upload.Filename != "" {
		return upload.Filename
	}
	return UntitledSession
}
