package domain

// Message is one chat message sent to an LLM
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMRequest is a provider-neutral completion request. A nil Temperature
// leaves the provider default in place; zero is sent as zero.
type LLMRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
}

// LLMResponse is a provider-neutral completion response
type LLMResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	StopReason   string `json:"stop_reason,omitempty"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}
