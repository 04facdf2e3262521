// Package llm provides the streaming LLM client used by the agent
// orchestrator. The provider is any OpenAI-compatible chat-completions
// endpoint; responses arrive as a channel of typed chunks so callers can
// forward text incrementally and dispatch tool calls as they complete.
package llm

import "context"

// Client is the provider-facing interface. The returned channel is closed
// when the stream completes; provider errors are delivered as ErrorChunk
// values so a consumer never has to select on two failure paths.
type Client interface {
	Generate(ctx context.Context, input *GenerateInput) (<-chan Chunk, error)
	Close() error
}

// GenerateInput is one conversation turn sent to the provider.
type GenerateInput struct {
	Messages    []Message
	Tools       []ToolDefinition // nil = no tools
	Temperature float64
	MaxTokens   int
}

// Message is one conversation message.
type Message struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	ToolCalls  []ToolCall // for assistant messages
	ToolCallID string     // for tool result messages
	ToolName   string     // for tool result messages
}

// ToolDefinition describes a tool available to the model.
type ToolDefinition struct {
	Name             string
	Description      string
	ParametersSchema string // JSON Schema
}

// ToolCall is the model's request to invoke a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}

// Chunk is the interface for all streaming chunk types.
type Chunk interface {
	chunkType() ChunkType
}

// ChunkType identifies the kind of streaming chunk.
type ChunkType string

const (
	ChunkTypeText     ChunkType = "text"
	ChunkTypeToolCall ChunkType = "tool_call"
	ChunkTypeUsage    ChunkType = "usage"
	ChunkTypeError    ChunkType = "error"
)

// TextChunk is a fragment of the model's text response.
type TextChunk struct{ Content string }

// ToolCallChunk signals a completed tool call request.
type ToolCallChunk struct{ CallID, Name, Arguments string }

// UsageChunk reports token consumption for the call.
type UsageChunk struct{ InputTokens, OutputTokens, TotalTokens int }

// ErrorChunk signals a provider error.
type ErrorChunk struct {
	Message   string
	Retryable bool
}

func (c *TextChunk) chunkType() ChunkType     { return ChunkTypeText }
func (c *ToolCallChunk) chunkType() ChunkType { return ChunkTypeToolCall }
func (c *UsageChunk) chunkType() ChunkType    { return ChunkTypeUsage }
func (c *ErrorChunk) chunkType() ChunkType    { return ChunkTypeError }
