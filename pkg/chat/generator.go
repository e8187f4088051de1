package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aichat/pkg/ai"
	"aichat/pkg/generation"
	"aichat/pkg/logging"
)

// Generator runs generations. All failures are absorbed: they are written
// into the target message and returned as rendered text.
type Generator struct {
	catalog    *ai.Catalog
	adapter    *ai.Adapter
	controller *generation.Controller
	messages   MessageUpdater
	keys       KeyStore
	normalizer *Normalizer
	maxSteps   int
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxSteps bounds the tool loop of a single generation.
func WithMaxSteps(n int) Option {
	return func(g *Generator) {
		g.maxSteps = n
	}
}

// NewGenerator wires a Generator from its collaborators.
func NewGenerator(catalog *ai.Catalog, adapter *ai.Adapter, controller *generation.Controller, messages MessageUpdater, keys KeyStore, opts ...Option) *Generator {
	g := &Generator{
		catalog:    catalog,
		adapter:    adapter,
		controller: controller,
		messages:   messages,
		keys:       keys,
		normalizer: NewNormalizer(catalog),
		maxSteps:   ai.DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Controller returns the lifecycle controller used for cancel and status.
func (g *Generator) Controller() *generation.Controller {
	return g.controller
}

// Generate runs one generation to a terminal state.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	start := time.Now()
	log := slog.With(
		"chat_id", req.ChatID,
		"message_id", req.MessageID,
		"model", req.ModelID,
	)
	log.Info("generation_start", "web_search", req.EnableWebSearch, "history", len(req.History))

	if err := g.controller.Create(ctx, req.MessageID, req.UserID); err != nil {
		if errors.Is(err, generation.ErrGenerationExists) {
			// Another run owns the message; leave its content alone.
			log.Warn("generation_already_running", "error", err)
			return Result{Content: g.normalizer.Render(err, "")}
		}
		return g.fail(ctx, req, "", err, log)
	}

	res, provider, outcome := g.run(ctx, req, log)
	switch o := outcome.(type) {
	case stepCancelled:
		g.controller.Cleanup(ctx, req.MessageID)
		log.Info("generation_cancelled", "duration_ms", time.Since(start).Milliseconds())
		text := g.normalizer.Render(ai.ErrGenerationCancelled, provider)
		g.writeError(ctx, req, text, log)
		return Result{Content: text}
	case stepFailed:
		return g.fail(ctx, req, provider, o.err, log)
	default:
		g.controller.Cleanup(ctx, req.MessageID)
		log.Info("generation_complete",
			"duration_ms", time.Since(start).Milliseconds(),
			"content_chars", len(res.Content),
			"thinking_chars", len(res.Thinking),
			"sources", len(res.Sources),
		)
		return res
	}
}

func (g *Generator) run(ctx context.Context, req Request, log *slog.Logger) (res Result, provider ai.ProviderID, outcome stepResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("generation_panic", "panic", r)
			res, outcome = Result{}, stepFailed{err: fmt.Errorf("generation panic: %v", r)}
		}
	}()

	model, err := g.catalog.Model(req.ModelID)
	if err != nil {
		return Result{}, "", stepFailed{err: err}
	}
	provider = model.Provider

	info, err := g.catalog.Provider(provider)
	if err != nil {
		return Result{}, provider, stepFailed{err: err}
	}

	// Read once per generation and never logged.
	keys, err := g.keys.GetAPIKeys(ctx, req.UserID)
	if err != nil {
		return Result{}, provider, stepFailed{err: fmt.Errorf("load api keys: %w", err)}
	}
	apiKey := strings.TrimSpace(keys[provider])
	if apiKey == "" {
		return Result{}, provider, stepFailed{err: &ai.EmptyAPIKeyError{Provider: provider}}
	}

	hasToolSupport := model.Capabilities.Tool && req.EnableWebSearch
	tagReasoning := model.Capabilities.Thinking && !info.NativeReasoning

	messages := ai.ComposeMessages(ai.PromptInput{
		Prompt:                   req.Prompt,
		History:                  toAIMessages(req.History),
		Provider:                 info,
		Model:                    model,
		HasToolSupport:           hasToolSupport,
		AddReasoningInstructions: tagReasoning,
	})
	logging.Trace("generation_prompt", "message_id", req.MessageID, "messages", messages)

	tools := g.adapter.ConfigureTools(provider, model.ID, hasToolSupport)
	handle, err := g.adapter.CreateModel(provider, apiKey, model, hasToolSupport, req.EnableWebSearch)
	if err != nil {
		return Result{}, provider, stepFailed{err: err}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := ai.StreamText(streamCtx, handle, ai.StreamOptions{
		Messages: messages,
		Tools:    tools,
		MaxSteps: g.maxSteps,
	})
	if err != nil {
		return Result{}, provider, stepFailed{err: err}
	}
	defer stream.Close()

	log.Debug("generation_stream_open", "provider", provider, "tools", len(tools), "tag_reasoning", tagReasoning)
	p := newProcessor(req.ChatID, req.MessageID, model, tagReasoning, g.messages, g.controller, log)
	res, outcome = p.consume(ctx, stream)
	return res, provider, outcome
}

// fail records, cleans up once and writes the rendered error.
func (g *Generator) fail(ctx context.Context, req Request, provider ai.ProviderID, err error, log *slog.Logger) Result {
	name := g.normalizer.Name(err)
	log.Error("generation_failed", "error_name", name, "error", err)

	g.controller.RecordError(ctx, req.MessageID, name)
	g.controller.Cleanup(ctx, req.MessageID)

	text := g.normalizer.Render(err, provider)
	g.writeError(ctx, req, text, log)
	return Result{Content: text}
}

func (g *Generator) writeError(ctx context.Context, req Request, text string, log *slog.Logger) {
	patch := MessagePatch{Content: strPtr(text), Sources: []ai.Source{}, Type: MessageTypeError}
	if err := g.messages.UpdateMessage(ctx, req.ChatID, req.MessageID, patch); err != nil {
		log.Error("generation_error_write_failed", "error", err)
	}
}

func toAIMessages(history []HistoryMessage) []ai.Message {
	if len(history) == 0 {
		return nil
	}
	out := make([]ai.Message, 0, len(history))
	for _, h := range history {
		out = append(out, ai.Message{Role: h.Role, Content: h.Content})
	}
	return out
}
