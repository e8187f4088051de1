package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// DefaultMaxSteps bounds the number of provider calls in one tool loop.
const DefaultMaxSteps = 5

// StreamOptions configures StreamText.
type StreamOptions struct {
	Messages []Message
	Tools    ToolSet
	MaxSteps int
}

// TextStream drives one or more provider steps. When a step ends with tool
// calls that have executors, the tools run, their results are emitted as
// ToolResultEvent and the next step starts with the extended conversation.
// Provider sources are collected and exposed through Sources.
type TextStream struct {
	ctx      context.Context
	model    LanguageModel
	messages []Message
	tools    ToolSet
	maxSteps int

	step    StepStream
	steps   int
	finish  *StepFinish
	pending []Event
	current Event
	sources []Source
	err     error
	done    bool
}

// StreamText opens the first step. Errors opening it are returned directly.
func StreamText(ctx context.Context, model LanguageModel, opts StreamOptions) (*TextStream, error) {
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	s := &TextStream{
		ctx:      ctx,
		model:    model,
		messages: append([]Message(nil), opts.Messages...),
		tools:    opts.Tools,
		maxSteps: maxSteps,
	}
	if err := s.openStep(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *TextStream) openStep() error {
	step, err := s.model.Stream(s.ctx, Request{Messages: s.messages, Tools: s.tools})
	if err != nil {
		return err
	}
	s.step = step
	s.steps++
	s.finish = nil
	return nil
}

// Next advances to the next event.
func (s *TextStream) Next() bool {
	for {
		if len(s.pending) > 0 {
			s.current = s.pending[0]
			s.pending = s.pending[1:]
			return true
		}
		if s.err != nil || s.done {
			return false
		}
		if s.step == nil {
			if err := s.openStep(); err != nil {
				s.err = err
				return false
			}
		}

		if s.step.Next() {
			ev := s.step.Event()
			switch e := ev.(type) {
			case SourceEvent:
				s.sources = append(s.sources, e.Source)
				continue
			case StepFinish:
				finish := e
				s.finish = &finish
			}
			s.current = ev
			return true
		}

		err := s.step.Err()
		_ = s.step.Close()
		s.step = nil
		if err != nil {
			s.err = err
			return false
		}
		if !s.continueWithTools() {
			s.done = true
		}
	}
}

// continueWithTools runs the tool calls of the finished step and prepares
// the next one. It reports false when the loop is over.
func (s *TextStream) continueWithTools() bool {
	finish := s.finish
	if finish == nil || finish.Reason != FinishToolCalls || len(finish.ToolCalls) == 0 {
		return false
	}
	if s.steps >= s.maxSteps {
		slog.Debug("stream_max_steps_reached", "steps", s.steps)
		return false
	}
	for _, call := range finish.ToolCalls {
		if tool, ok := s.tools[call.Name]; !ok || tool.Execute == nil {
			slog.Debug("stream_tool_not_executable", "tool", call.Name)
			return false
		}
	}

	s.messages = append(s.messages, Message{
		Role:               "assistant",
		Content:            finish.Text,
		ToolCalls:          finish.ToolCalls,
		Reasoning:          finish.ProviderReasoning,
		ReasoningSignature: finish.ReasoningSignature,
	})

	for _, call := range finish.ToolCalls {
		result := s.execute(call)
		s.pending = append(s.pending, result)
		s.messages = append(s.messages, Message{
			Role:       "tool",
			Content:    string(result.Raw),
			ToolCallID: call.ID,
			ToolName:   call.Name,
		})
	}
	return true
}

func (s *TextStream) execute(call ToolCall) ToolResultEvent {
	tool := s.tools[call.Name]
	input := json.RawMessage(call.Input)
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}

	output, err := tool.Execute(s.ctx, input)
	if err != nil {
		slog.Warn("stream_tool_error", "tool", call.Name, "error", err)
		output = map[string]any{"error": err.Error()}
	}

	raw, err := json.Marshal(output)
	if err != nil {
		raw = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		decoded = nil
	}

	return ToolResultEvent{
		CallID:   call.ID,
		ToolName: call.Name,
		Output:   decoded,
		Raw:      raw,
	}
}

// Event returns the current event.
func (s *TextStream) Event() Event {
	return s.current
}

// Err returns the first error that stopped the stream.
func (s *TextStream) Err() error {
	return s.err
}

// Sources returns the sources reported by the provider across all steps.
func (s *TextStream) Sources() []Source {
	return s.sources
}

// Close releases the active step.
func (s *TextStream) Close() error {
	s.done = true
	if s.step == nil {
		return nil
	}
	err := s.step.Close()
	s.step = nil
	return err
}
