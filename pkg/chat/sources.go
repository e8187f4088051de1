package chat

import (
	"log/slog"

	"aichat/pkg/ai"

	"github.com/tidwall/gjson"
)

// extractSources reads citations out of a web search tool result. Known
// shapes are {"searchResults":[{title,uri,snippet}]}, {"sources":[{title,
// url,excerpt|snippet}]} and a bare array of the latter. Entries without a
// url are skipped.
func extractSources(raw []byte) []ai.Source {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		slog.Debug("tool_result_not_json")
		return nil
	}
	result := gjson.ParseBytes(raw)

	var list gjson.Result
	switch {
	case result.Get("searchResults").IsArray():
		list = result.Get("searchResults")
	case result.Get("sources").IsArray():
		list = result.Get("sources")
	case result.IsArray():
		list = result
	default:
		slog.Debug("tool_result_unknown_shape")
		return nil
	}

	var sources []ai.Source
	skipped := 0
	list.ForEach(func(_, entry gjson.Result) bool {
		if !entry.IsObject() {
			skipped++
			return true
		}
		url := firstString(entry, "url", "uri", "link")
		if url == "" {
			skipped++
			return true
		}
		sources = append(sources, ai.Source{
			Type:    ai.SourceTypeURL,
			Title:   firstString(entry, "title", "name"),
			URL:     url,
			Excerpt: firstString(entry, "excerpt", "snippet", "content"),
		})
		return true
	})
	if skipped > 0 {
		slog.Debug("tool_result_sources_skipped", "skipped", skipped)
	}
	return sources
}

func firstString(entry gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := entry.Get(key); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// urlSources keeps only url-typed sources.
func urlSources(sources []ai.Source) []ai.Source {
	out := make([]ai.Source, 0, len(sources))
	for _, s := range sources {
		if s.Type == ai.SourceTypeURL {
			out = append(out, s)
		}
	}
	return out
}
