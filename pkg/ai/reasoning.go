package ai

import (
	"context"
	"regexp"
	"strings"
	"unicode"
)

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

var thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinkTags removes complete <think>...</think> blocks and then any
// remaining lone tag tokens.
func StripThinkTags(text string) string {
	out := thinkBlockRe.ReplaceAllString(text, "")
	out = strings.ReplaceAll(out, thinkOpenTag, "")
	return strings.ReplaceAll(out, thinkCloseTag, "")
}

// ExtractThinking splits tagged model output into the visible answer and
// the reasoning text. An unclosed <think> block runs to the end of text.
// When streaming is true a trailing partial tag is withheld from both
// halves so the answer never shrinks when the tag completes.
func ExtractThinking(text string, streaming bool) (answer, thinking string) {
	var ans strings.Builder
	var parts []string

	rest := text
	for {
		open := strings.Index(rest, thinkOpenTag)
		if open < 0 {
			if streaming {
				rest = trimPartialTag(rest, thinkOpenTag)
			}
			ans.WriteString(rest)
			break
		}
		ans.WriteString(rest[:open])
		rest = rest[open+len(thinkOpenTag):]

		end := strings.Index(rest, thinkCloseTag)
		if end < 0 {
			if streaming {
				rest = trimPartialTag(rest, thinkCloseTag)
			}
			parts = append(parts, rest)
			break
		}
		parts = append(parts, rest[:end])
		rest = rest[end+len(thinkCloseTag):]
	}

	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}

	answer = strings.ReplaceAll(ans.String(), thinkCloseTag, "")
	answer = strings.TrimLeftFunc(answer, unicode.IsSpace)
	return answer, strings.Join(kept, "\n\n")
}

func trimPartialTag(s, tag string) string {
	for k := len(tag) - 1; k > 0; k-- {
		if strings.HasSuffix(s, tag[:k]) {
			return s[:len(s)-k]
		}
	}
	return s
}

// WithReasoningExtraction wraps a model whose reasoning arrives inside
// <think> tags. Text deltas pass through untouched; on step finish the
// extracted reasoning is attached as MiddlewareReasoning and the step
// text is reduced to the visible answer.
func WithReasoningExtraction(model LanguageModel) LanguageModel {
	return &reasoningModel{LanguageModel: model}
}

type reasoningModel struct {
	LanguageModel
}

func (m *reasoningModel) Stream(ctx context.Context, req Request) (StepStream, error) {
	stream, err := m.LanguageModel.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return &reasoningStream{StepStream: stream}, nil
}

type reasoningStream struct {
	StepStream
	text    strings.Builder
	current Event
}

func (s *reasoningStream) Next() bool {
	if !s.StepStream.Next() {
		return false
	}

	ev := s.StepStream.Event()
	switch e := ev.(type) {
	case TextDelta:
		s.text.WriteString(e.Text)
	case StepFinish:
		answer, thinking := ExtractThinking(s.text.String(), false)
		e.Text = answer
		e.MiddlewareReasoning = thinking
		s.text.Reset()
		ev = e
	}
	s.current = ev
	return true
}

func (s *reasoningStream) Event() Event {
	return s.current
}
