package ai

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
)

// WebSearchToolName is the name of the generic web search tool.
const WebSearchToolName = "web_search"

// ToolExecutor runs a tool with raw JSON input and returns a JSON-encodable
// result.
type ToolExecutor func(ctx context.Context, input json.RawMessage) (any, error)

// Tool is a tool definition offered to a model. Native tools are executed
// by the provider and have no Execute func.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Native      bool
	Execute     ToolExecutor
}

// ToolSet maps tool names to definitions.
type ToolSet map[string]Tool

// Native returns the provider-executed tool, if any.
func (t ToolSet) Native() (Tool, bool) {
	for _, tool := range t {
		if tool.Native {
			return tool, true
		}
	}
	return Tool{}, false
}

// Functions returns the client-executed tools sorted by name.
func (t ToolSet) Functions() []Tool {
	out := make([]Tool, 0, len(t))
	for _, tool := range t {
		if !tool.Native {
			out = append(out, tool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// nativeBrowsingModels lists provider/model pairs that get a native
// browsing tool instead of the generic web search tool. Matching is by
// model id substring.
var nativeBrowsingModels = []struct {
	provider ProviderID
	contains string
	tool     Tool
}{
	{
		provider: ProviderOpenAI,
		contains: "search-preview",
		tool: Tool{
			Name:        "web_search_preview",
			Description: "Native OpenAI web browsing",
			Native:      true,
		},
	},
}

func webSearchTool(exec ToolExecutor) Tool {
	return Tool{
		Name:        WebSearchToolName,
		Description: "Search the web for up-to-date information. Use it for recent events or facts you are unsure about.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query",
				},
			},
			"required": []string{"query"},
		},
		Execute: exec,
	}
}

func matchNativeBrowsing(provider ProviderID, modelID string) (Tool, bool) {
	for _, entry := range nativeBrowsingModels {
		if entry.provider == provider && strings.Contains(modelID, entry.contains) {
			return entry.tool, true
		}
	}
	return Tool{}, false
}
