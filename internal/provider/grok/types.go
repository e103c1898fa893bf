package grok

// ChatMessage is one message of an OpenAI-compatible chat request
type ChatMessage struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ChatCompletionRequest is the body sent to /chat/completions
type ChatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// ModelList is the body returned by /models
type ModelList struct {
	Object string  `json:"object,omitempty"`
	Data   []Model `json:"data"`
}

// Model is one entry of ModelList
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// SearchRequest is one web search turn
type SearchRequest struct {
	Query    string
	Platform string
	// History is sent between the system prompt and the new user message
	History []ChatMessage
	// SkipDefaultPrompt sends History and the raw query only, without the
	// search system prompt, time context or platform hint
	SkipDefaultPrompt bool
}

// Description is the model's reading of a single URL
type Description struct {
	Title    string `json:"title"`
	Extracts string `json:"extracts"`
	URL      string `json:"url"`
}

// Probe is the result of a /models connection test
type Probe struct {
	Status          string   `json:"status"`
	Message         string   `json:"message"`
	ResponseTimeMS  float64  `json:"response_time_ms"`
	AvailableModels []string `json:"available_models,omitempty"`
}

const (
	ProbeConnected        = "connected"
	ProbeUnexpectedStatus = "unexpected_status"
	ProbeTimeout          = "timeout"
	ProbeNetworkError     = "network_error"
	ProbeConfigError      = "config_error"
	ProbeFailed           = "failed"
)
