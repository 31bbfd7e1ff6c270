package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"zonewatch/internal/apperr"
	"zonewatch/internal/logger"
	"zonewatch/internal/models"
	"zonewatch/internal/storage"
)

// DefaultPersonality is always sent ahead of the user override.
const DefaultPersonality = `あなたはZONEWATCHのAIです。グラフやデータの説明が得意で、必ずChain-of-Thought（思考の連鎖）を使って、段階的に推論・説明を行います。
【制約条件】
- 必ず「ステップバイステップ」で考え、推論の過程を明示してください。
- 問題を分解し、各ステップで何を考えているかを説明してください。
- 計算や根拠がある場合は必ず示してください。
- 最終的な答えの前に、思考の流れを箇条書きや文章で整理してください。
- 途中で分からないことがあれば、仮定や追加情報を述べてください。
- 回答例：
    1. まず○○について考えます。
    2. 次に△△を確認します。
    3. 以上より、□□と判断できます。
- 必ず「Chain-of-Thought（思考の連鎖）」を意識して、推論の過程を丁寧に説明してください。`

// Notifier announces persisted changes to other processes.
type Notifier interface {
	Publish(ctx context.Context, scope, id string)
}

// WriteObserver counts document writes by result.
type WriteObserver func(document string, err error)

// PersonalityStore holds the override appended to DefaultPersonality.
type PersonalityStore struct {
	docs storage.Documents
	log  logger.Logger

	mu          sync.RWMutex
	override    string
	instruction string
	notifier    Notifier
	observe     WriteObserver
}

// NewPersonalityStore loads the persisted override, falling back to none.
func NewPersonalityStore(ctx context.Context, docs storage.Documents, log logger.Logger) *PersonalityStore {
	if log == nil {
		log = logger.NewNop()
	}
	p := &PersonalityStore{docs: docs, log: log, instruction: composeInstruction("")}
	p.Reload(ctx)
	return p
}

func (p *PersonalityStore) SetNotifier(n Notifier) {
	p.mu.Lock()
	p.notifier = n
	p.mu.Unlock()
}

func (p *PersonalityStore) SetWriteObserver(fn WriteObserver) {
	p.mu.Lock()
	p.observe = fn
	p.mu.Unlock()
}

// Reload re-reads the backing document. Missing or corrupt data means no override.
func (p *PersonalityStore) Reload(ctx context.Context) {
	override := ""
	data, err := p.docs.Read(ctx, storage.DocumentPersonality)
	switch {
	case errors.Is(err, storage.ErrNoDocument):
	case err != nil:
		p.log.Warn("personality", "read personality failed, using default", map[string]any{"error": err.Error()})
	default:
		var cfg models.Personality
		if err := json.Unmarshal(data, &cfg); err != nil {
			p.log.Warn("personality", "decode personality failed, using default", map[string]any{"error": err.Error()})
		} else {
			override = strings.TrimSpace(cfg.Override)
		}
	}

	p.mu.Lock()
	p.override = override
	p.instruction = composeInstruction(override)
	p.mu.Unlock()
}

func (p *PersonalityStore) Override() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.override
}

func (p *PersonalityStore) EffectiveInstruction() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.instruction
}

// Save trims and persists the override; an empty result clears it.
func (p *PersonalityStore) Save(ctx context.Context, override string) error {
	override = strings.TrimSpace(override)
	body, err := encodeDocument(models.Personality{Override: override})
	if err != nil {
		return apperr.Persistence("failed to encode personality", err)
	}

	p.mu.Lock()
	err = p.docs.Write(ctx, storage.DocumentPersonality, body)
	if p.observe != nil {
		p.observe(storage.DocumentPersonality, err)
	}
	if err != nil {
		p.mu.Unlock()
		p.log.Error("personality", "write personality failed", map[string]any{"error": err})
		return apperr.Persistence("failed to save personality", err)
	}
	p.override = override
	p.instruction = composeInstruction(override)
	notifier := p.notifier
	p.mu.Unlock()

	if notifier != nil {
		notifier.Publish(ctx, ScopePersonality, "")
	}
	return nil
}

func composeInstruction(override string) string {
	if override == "" {
		return DefaultPersonality
	}
	return DefaultPersonality + "\n" + override
}
