package chat

import (
	"testing"

	"aichat/pkg/ai"
)

func TestExtractSources(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []ai.Source
	}{
		{
			name: "search results shape",
			raw:  `{"searchResults":[{"title":"Go","uri":"https://go.dev","snippet":"The Go language"}]}`,
			want: []ai.Source{{Type: ai.SourceTypeURL, Title: "Go", URL: "https://go.dev", Excerpt: "The Go language"}},
		},
		{
			name: "sources shape",
			raw:  `{"query":"go","sources":[{"title":"A","url":"https://a.test","excerpt":"x"},{"title":"B","url":"https://b.test"}]}`,
			want: []ai.Source{
				{Type: ai.SourceTypeURL, Title: "A", URL: "https://a.test", Excerpt: "x"},
				{Type: ai.SourceTypeURL, Title: "B", URL: "https://b.test"},
			},
		},
		{
			name: "bare array",
			raw:  `[{"name":"Link","link":"https://l.test","content":"body"}]`,
			want: []ai.Source{{Type: ai.SourceTypeURL, Title: "Link", URL: "https://l.test", Excerpt: "body"}},
		},
		{
			name: "malformed entries skipped",
			raw:  `{"sources":[{"title":"no url"},"text",{"url":42},{"url":"https://ok.test"}]}`,
			want: []ai.Source{{Type: ai.SourceTypeURL, URL: "https://ok.test"}},
		},
		{
			name: "unknown shape",
			raw:  `{"error":"quota exceeded"}`,
		},
		{
			name: "not json",
			raw:  `search failed`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractSources([]byte(tt.raw))
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d sources, got %d: %#v", len(tt.want), len(got), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("source %d: expected %#v, got %#v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestURLSources(t *testing.T) {
	got := urlSources([]ai.Source{
		{Type: ai.SourceTypeURL, URL: "https://a.test"},
		{Type: "document", Title: "file.pdf"},
	})
	if len(got) != 1 || got[0].URL != "https://a.test" {
		t.Fatalf("Expected only the url source, got %#v", got)
	}
}
