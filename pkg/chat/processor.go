package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"aichat/pkg/ai"
	"aichat/pkg/generation"
)

// stepResult is the outcome of handling one event, and of the whole
// consumption loop. stepOK means keep going (or, for the loop, completed).
type stepResult interface {
	isStepResult()
}

type stepOK struct{}

type stepCancelled struct{}

type stepFailed struct {
	err error
}

func (stepOK) isStepResult()        {}
func (stepCancelled) isStepResult() {}
func (stepFailed) isStepResult()    {}

// eventStream is the part of ai.TextStream the processor consumes.
type eventStream interface {
	Next() bool
	Event() ai.Event
	Err() error
	Sources() []ai.Source
}

// processor consumes one stream and persists its state to one message.
type processor struct {
	chatID     string
	messageID  string
	model      ai.Model
	messages   MessageUpdater
	controller *generation.Controller
	log        *slog.Logger

	// tagReasoning is set when reasoning arrives inside <think> tags in
	// the text rather than on a native channel.
	tagReasoning bool

	fullText     strings.Builder
	fullThinking strings.Builder
	collected    []ai.Source

	wrote        bool
	lastContent  string
	lastThinking string
}

func newProcessor(chatID, messageID string, model ai.Model, tagReasoning bool, messages MessageUpdater, controller *generation.Controller, log *slog.Logger) *processor {
	return &processor{
		chatID:       chatID,
		messageID:    messageID,
		model:        model,
		messages:     messages,
		controller:   controller,
		log:          log,
		tagReasoning: tagReasoning,
	}
}

// consume drives the stream until it ends, fails, or a cancel is observed.
// On completion it issues the final write and returns the result.
func (p *processor) consume(ctx context.Context, stream eventStream) (Result, stepResult) {
	for {
		if p.controller.IsCancelled(ctx, p.messageID) {
			p.log.Info("generation_cancel_observed")
			return Result{}, stepCancelled{}
		}
		if !stream.Next() {
			break
		}
		if res, ok := p.handle(ctx, stream.Event()).(stepFailed); ok {
			return Result{}, res
		}
	}

	if err := stream.Err(); err != nil {
		if errors.Is(err, context.Canceled) && p.controller.IsCancelled(ctx, p.messageID) {
			return Result{}, stepCancelled{}
		}
		return Result{}, stepFailed{err: err}
	}

	return p.finalize(ctx, stream.Sources())
}

func (p *processor) handle(ctx context.Context, ev ai.Event) stepResult {
	switch e := ev.(type) {
	case ai.TextDelta:
		return p.onText(ctx, e.Text)
	case ai.ReasoningDelta:
		return p.onReasoning(ctx, e.Text)
	case ai.StepFinish:
		return p.onStepFinish(ctx, e)
	case ai.ToolCallEvent:
		p.log.Info("stream_tool_call", "tool", e.Call.Name, "call_id", e.Call.ID)
		if e.Call.Name == ai.WebSearchToolName {
			p.controller.SetSearching(ctx, p.messageID, true)
		}
	case ai.ToolResultEvent:
		p.log.Info("stream_tool_result", "tool", e.ToolName, "call_id", e.CallID)
		if e.ToolName == ai.WebSearchToolName {
			p.controller.SetSearching(ctx, p.messageID, false)
			p.collected = append(p.collected, extractSources(e.Raw)...)
		}
	default:
		p.log.Debug("stream_event_ignored", "event", ev)
	}
	return stepOK{}
}

func (p *processor) onText(ctx context.Context, delta string) stepResult {
	p.fullText.WriteString(delta)

	if !p.tagReasoning {
		return p.write(ctx, MessagePatch{Content: strPtr(p.content(true))})
	}

	// Re-scan the whole buffer: a delta may complete or split a tag.
	content, thinking := ai.ExtractThinking(p.fullText.String(), true)
	if p.wrote && content == p.lastContent && thinking == p.lastThinking {
		return stepOK{}
	}
	patch := MessagePatch{Content: strPtr(content)}
	if thinking != "" {
		patch.Thinking = strPtr(thinking)
	}
	p.lastThinking = thinking
	return p.write(ctx, patch)
}

func (p *processor) onReasoning(ctx context.Context, delta string) stepResult {
	if !p.model.Capabilities.Thinking {
		p.log.Debug("stream_reasoning_ignored")
		return stepOK{}
	}
	p.fullThinking.WriteString(delta)
	return p.write(ctx, MessagePatch{
		Content:  strPtr(p.content(true)),
		Thinking: strPtr(ai.StripThinkTags(p.fullThinking.String())),
	})
}

func (p *processor) onStepFinish(ctx context.Context, finish ai.StepFinish) stepResult {
	p.log.Debug("stream_step_finish", "reason", finish.Reason, "tool_calls", len(finish.ToolCalls))
	if !p.model.Capabilities.Thinking {
		return stepOK{}
	}

	switch {
	case finish.ProviderReasoning != "":
		p.fullThinking.Reset()
		p.fullThinking.WriteString(finish.ProviderReasoning)
	case finish.MiddlewareReasoning != "" && p.fullThinking.Len() == 0:
		p.fullThinking.WriteString(finish.MiddlewareReasoning)
	default:
		return stepOK{}
	}

	return p.write(ctx, MessagePatch{
		Content:  strPtr(p.content(true)),
		Thinking: strPtr(p.thinking()),
	})
}

// finalize writes the final state. Sources reported by the stream itself
// replace the ones collected from tool results.
func (p *processor) finalize(ctx context.Context, streamSources []ai.Source) (Result, stepResult) {
	res := Result{Content: p.content(false)}

	if p.model.Capabilities.Thinking {
		res.Thinking = p.thinking()
	}

	if final := urlSources(streamSources); len(final) > 0 {
		res.Sources = final
	} else if len(p.collected) > 0 {
		res.Sources = p.collected
	}

	patch := MessagePatch{Content: strPtr(res.Content), Sources: res.Sources}
	if p.model.Capabilities.Thinking {
		// Always set so a stale partial value never survives.
		patch.Thinking = strPtr(res.Thinking)
	}
	if failed, ok := p.write(ctx, patch).(stepFailed); ok {
		return Result{}, failed
	}
	return res, stepOK{}
}

// thinking is the reasoning so far. With tag reasoning the text holds every
// step's <think> blocks, while middleware payloads only cover one step.
func (p *processor) thinking() string {
	if p.tagReasoning {
		if _, thinking := ai.ExtractThinking(p.fullText.String(), false); thinking != "" {
			return thinking
		}
	}
	return ai.StripThinkTags(p.fullThinking.String())
}

// content is the visible answer so far. While streaming a trailing partial
// tag is withheld.
func (p *processor) content(streaming bool) string {
	if p.tagReasoning {
		answer, _ := ai.ExtractThinking(p.fullText.String(), streaming)
		return answer
	}
	return ai.StripThinkTags(p.fullText.String())
}

func (p *processor) write(ctx context.Context, patch MessagePatch) stepResult {
	if !p.wrote && patch.Sources == nil {
		// Drop sources left over from an earlier run on this message.
		patch.Sources = []ai.Source{}
	}
	if err := p.messages.UpdateMessage(ctx, p.chatID, p.messageID, patch); err != nil {
		return stepFailed{err: err}
	}
	p.wrote = true
	if patch.Content != nil {
		p.lastContent = *patch.Content
	}
	return stepOK{}
}
