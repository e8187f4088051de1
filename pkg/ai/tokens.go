package ai

import (
	"log/slog"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	tokenCodec     tokenizer.Codec
	tokenCodecErr  error
	tokenCodecOnce sync.Once
)

// EstimateTokens approximates the prompt size with the cl100k encoding.
// It returns 0 when the encoder is unavailable.
func EstimateTokens(messages []Message) int {
	tokenCodecOnce.Do(func() {
		tokenCodec, tokenCodecErr = tokenizer.Get(tokenizer.Cl100kBase)
		if tokenCodecErr != nil {
			slog.Debug("tokenizer_unavailable", "error", tokenCodecErr)
		}
	})
	if tokenCodecErr != nil {
		return 0
	}

	total := 0
	for _, msg := range messages {
		ids, _, err := tokenCodec.Encode(msg.Content)
		if err != nil {
			continue
		}
		// role and separators
		total += len(ids) + 4
	}
	return total
}
