package models

const RoleUser = "user"

// ChatMessage represents a single message in a completion request.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the reply from the AI chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CompletionRequest is the upstream chat-completion request body.
type CompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// CompletionResponse holds the parts of the upstream reply we read.
// Upstream errors arrive in the same envelope with Error set.
type CompletionResponse struct {
	Choices []CompletionChoice `json:"choices"`
	Error   *UpstreamError     `json:"error,omitempty"`
}

type CompletionChoice struct {
	Message ChatMessage `json:"message"`
}

type UpstreamError struct {
	Message string `json:"message"`
	Code    any    `json:"code,omitempty"`
}
