package ai

const tokens = "tokens"

var textOnly = Modalities{Text: true}
var textImage = Modalities{Text: true, Image: true}

var builtinProviders = []ProviderInfo{
	{
		ID:          ProviderOpenAI,
		Name:        "OpenAI",
		Description: "GPT models from OpenAI",
		KeyURL:      "https://platform.openai.com/api-keys",
	},
	{
		ID:              ProviderAnthropic,
		Name:            "Anthropic",
		Description:     "Claude models from Anthropic",
		KeyURL:          "https://console.anthropic.com/settings/keys",
		NativeReasoning: true,
	},
	{
		ID:              ProviderGoogle,
		Name:            "Google",
		Description:     "Gemini models from Google AI Studio",
		KeyURL:          "https://aistudio.google.com/app/apikey",
		NativeReasoning: true,
		NativeSearch:    true,
	},
	{
		ID:                   ProviderXAI,
		Name:                 "xAI",
		Description:          "Grok models from xAI",
		KeyURL:               "https://console.x.ai",
		NativeReasoning:      true,
		SearchSystemAddendum: true,
	},
	{
		ID:               ProviderGroq,
		Name:             "Groq",
		Description:      "Open models served on Groq LPUs",
		KeyURL:           "https://console.groq.com/keys",
		InlineToolSuffix: true,
	},
}

var builtinModels = []Model{
	{
		Provider:     ProviderOpenAI,
		ID:           "gpt-4.1",
		Name:         "GPT-4.1",
		Description:  "Flagship GPT model for complex tasks",
		Capabilities: Capabilities{Tool: true},
		Input:        textImage,
		Output:       textOnly,
		Context:      ContextWindow{Window: 1047576, Output: 32768, Unit: tokens},
	},
	{
		Provider:     ProviderOpenAI,
		ID:           "gpt-4.1-mini",
		Name:         "GPT-4.1 mini",
		Description:  "Fast, affordable GPT-4.1 variant",
		Capabilities: Capabilities{Tool: true},
		Input:        textImage,
		Output:       textOnly,
		Context:      ContextWindow{Window: 1047576, Output: 32768, Unit: tokens},
	},
	{
		Provider:     ProviderOpenAI,
		ID:           "gpt-4o-search-preview",
		Name:         "GPT-4o Search Preview",
		Description:  "GPT-4o trained to browse the web",
		Capabilities: Capabilities{Tool: true},
		Input:        textOnly,
		Output:       textOnly,
		Context:      ContextWindow{Window: 128000, Output: 16384, Unit: tokens},
	},
	{
		Provider:     ProviderAnthropic,
		ID:           "claude-sonnet-4-20250514",
		Name:         "Claude Sonnet 4",
		Description:  "Balanced Claude model with extended thinking",
		Capabilities: Capabilities{Thinking: true, Tool: true},
		Input:        textImage,
		Output:       textOnly,
		Context:      ContextWindow{Window: 200000, Output: 64000, Unit: tokens},
	},
	{
		Provider:     ProviderAnthropic,
		ID:           "claude-3-5-haiku-20241022",
		Name:         "Claude 3.5 Haiku",
		Description:  "Fastest Claude model",
		Capabilities: Capabilities{Tool: true},
		Input:        textImage,
		Output:       textOnly,
		Context:      ContextWindow{Window: 200000, Output: 8192, Unit: tokens},
	},
	{
		Provider:     ProviderGoogle,
		ID:           "gemini-2.5-flash",
		Name:         "Gemini 2.5 Flash",
		Description:  "Fast thinking model with search grounding",
		Capabilities: Capabilities{Thinking: true, Tool: true},
		Input:        Modalities{Text: true, Image: true, Audio: true, Video: true},
		Output:       textOnly,
		Context:      ContextWindow{Window: 1048576, Output: 65536, Unit: tokens},
	},
	{
		Provider:     ProviderGoogle,
		ID:           "gemini-2.0-flash",
		Name:         "Gemini 2.0 Flash",
		Description:  "Low latency multimodal model",
		Capabilities: Capabilities{Tool: true},
		Input:        Modalities{Text: true, Image: true, Audio: true, Video: true},
		Output:       textOnly,
		Context:      ContextWindow{Window: 1048576, Output: 8192, Unit: tokens},
	},
	{
		Provider:     ProviderXAI,
		ID:           "grok-3-mini",
		Name:         "Grok 3 Mini",
		Description:  "Lightweight Grok that thinks before responding",
		Capabilities: Capabilities{Thinking: true, Tool: true},
		Input:        textOnly,
		Output:       textOnly,
		Context:      ContextWindow{Window: 131072, Unit: tokens},
	},
	{
		Provider:     ProviderXAI,
		ID:           "grok-3",
		Name:         "Grok 3",
		Description:  "Flagship Grok model",
		Capabilities: Capabilities{Tool: true},
		Input:        textOnly,
		Output:       textOnly,
		Context:      ContextWindow{Window: 131072, Unit: tokens},
	},
	{
		Provider:     ProviderGroq,
		ID:           "deepseek-r1-distill-llama-70b",
		Name:         "DeepSeek R1 Distill Llama 70B",
		Description:  "Reasoning model that thinks in <think> tags",
		Capabilities: Capabilities{Thinking: true},
		Input:        textOnly,
		Output:       textOnly,
		Context:      ContextWindow{Window: 131072, Unit: tokens},
	},
	{
		Provider:     ProviderGroq,
		ID:           "qwen-qwq-32b",
		Name:         "Qwen QwQ 32B",
		Description:  "Reasoning model with tool use",
		Capabilities: Capabilities{Thinking: true, Tool: true},
		Input:        textOnly,
		Output:       textOnly,
		Context:      ContextWindow{Window: 131072, Unit: tokens},
	},
	{
		Provider:     ProviderGroq,
		ID:           "llama-3.3-70b-versatile",
		Name:         "Llama 3.3 70B",
		Description:  "General purpose Llama model",
		Capabilities: Capabilities{Tool: true},
		Input:        textOnly,
		Output:       textOnly,
		Context:      ContextWindow{Window: 131072, Output: 32768, Unit: tokens},
	},
}
