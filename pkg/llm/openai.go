package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// OpenAIClient speaks the OpenAI-compatible chat-completions wire format
// over SSE streaming. Works against OpenAI, MiniMax, and most self-hosted
// gateways.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIClient creates a streaming client. baseURL is the API root
// (e.g. "https://api.minimax.io/v1"); model is the provider model id.
func NewOpenAIClient(baseURL, apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		// No hard client timeout: foreground calls are unbounded by design,
		// background callers impose their own context deadline.
		client: &http.Client{},
	}
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type wireDelta struct {
	Content   string `json:"content"`
	ToolCalls []struct {
		Index    int    `json:"index"`
		ID       string `json:"id"`
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

type wireStreamEvent struct {
	Choices []struct {
		Delta        wireDelta `json:"delta"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate streams one completion. Text deltas are forwarded as TextChunks;
// tool calls are accumulated across deltas and emitted once complete.
func (c *OpenAIClient) Generate(ctx context.Context, input *GenerateInput) (<-chan Chunk, error) {
	req := wireRequest{
		Model:       c.model,
		Messages:    toWireMessages(input.Messages),
		Tools:       toWireTools(input.Tools),
		Temperature: input.Temperature,
		MaxTokens:   input.MaxTokens,
		Stream:      true,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("llm: provider returned %d: %s", resp.StatusCode, msg)
	}

	ch := make(chan Chunk, 32)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		c.consumeStream(ctx, resp.Body, ch)
	}()
	return ch, nil
}

// Close is a no-op; connections are pooled by the underlying transport.
func (c *OpenAIClient) Close() error { return nil }

// pendingCall accumulates a tool call streamed across multiple deltas.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

func (c *OpenAIClient) consumeStream(ctx context.Context, body io.Reader, ch chan<- Chunk) {
	filter := &thinkFilter{}
	pending := map[int]*pendingCall{}
	flushCalls := func() {
		indexes := make([]int, 0, len(pending))
		for i := range pending {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		for _, i := range indexes {
			p := pending[i]
			send(ctx, ch, &ToolCallChunk{CallID: p.id, Name: p.name, Arguments: p.args.String()})
		}
		pending = map[int]*pendingCall{}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var event wireStreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		if event.Usage != nil {
			send(ctx, ch, &UsageChunk{
				InputTokens:  event.Usage.PromptTokens,
				OutputTokens: event.Usage.CompletionTokens,
				TotalTokens:  event.Usage.TotalTokens,
			})
		}
		for _, choice := range event.Choices {
			if text := filter.feed(choice.Delta.Content); text != "" {
				if !send(ctx, ch, &TextChunk{Content: text}) {
					return
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				p, ok := pending[tc.Index]
				if !ok {
					p = &pendingCall{}
					pending[tc.Index] = p
				}
				if tc.ID != "" {
					p.id = tc.ID
				}
				if tc.Function.Name != "" {
					p.name = tc.Function.Name
				}
				p.args.WriteString(tc.Function.Arguments)
			}
			if choice.FinishReason == "tool_calls" {
				flushCalls()
			}
		}
	}
	if text := filter.flush(); text != "" {
		if !send(ctx, ch, &TextChunk{Content: text}) {
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		send(ctx, ch, &ErrorChunk{Message: err.Error(), Retryable: true})
		return
	}
	// A stream cut off mid-call still surfaces what the model asked for.
	flushCalls()
}

func send(ctx context.Context, ch chan<- Chunk, chunk Chunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// thinkFilter removes inline reasoning blocks some providers emit. Deltas
// may split a tag anywhere, so a partial tag at the end of one delta is
// carried into the next; flush releases a held-back false partial at
// end of stream.
type thinkFilter struct {
	carry   string
	inThink bool
}

func (f *thinkFilter) feed(delta string) string {
	s := f.carry + delta
	f.carry = ""
	var out strings.Builder
	for {
		if f.inThink {
			i := strings.Index(s, thinkClose)
			if i < 0 {
				f.carry = tagTail(s, thinkClose)
				return out.String()
			}
			s = s[i+len(thinkClose):]
			f.inThink = false
			continue
		}
		i := strings.Index(s, thinkOpen)
		if i < 0 {
			tail := tagTail(s, thinkOpen)
			out.WriteString(s[:len(s)-len(tail)])
			f.carry = tail
			return out.String()
		}
		out.WriteString(s[:i])
		s = s[i+len(thinkOpen):]
		f.inThink = true
	}
}

func (f *thinkFilter) flush() string {
	s := f.carry
	f.carry = ""
	if f.inThink {
		return ""
	}
	return s
}

// tagTail returns the longest suffix of s that is a proper prefix of tag.
func tagTail(s, tag string) string {
	for n := min(len(s), len(tag)-1); n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return tag[:n]
		}
	}
	return ""
}

func toWireMessages(msgs []Message) []wireMessage {
	out := make([]wireMessage, len(msgs))
	for i, m := range msgs {
		wm := wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.ToolName,
		}
		for _, tc := range m.ToolCalls {
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = tc.Arguments
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out[i] = wm
	}
	return out
}

func toWireTools(tools []ToolDefinition) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, len(tools))
	for i, t := range tools {
		wt := wireTool{Type: "function"}
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		schema := t.ParametersSchema
		if schema == "" {
			schema = `{"type":"object","properties":{}}`
		}
		wt.Function.Parameters = json.RawMessage(schema)
		out[i] = wt
	}
	return out
}

// CollectText drains a chunk stream into its concatenated text, returning
// the first provider error encountered.
func CollectText(ctx context.Context, ch <-chan Chunk) (string, []ToolCall, error) {
	var sb strings.Builder
	var calls []ToolCall
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return sb.String(), calls, nil
			}
			switch c := chunk.(type) {
			case *TextChunk:
				sb.WriteString(c.Content)
			case *ToolCallChunk:
				calls = append(calls, ToolCall{ID: c.CallID, Name: c.Name, Arguments: c.Arguments})
			case *ErrorChunk:
				return sb.String(), calls, fmt.Errorf("llm: %s", c.Message)
			}
		case <-ctx.Done():
			return sb.String(), calls, ctx.Err()
		}
	}
}

// WithTimeout derives the context used for background analyses.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
