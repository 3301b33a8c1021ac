package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// Request is one completion call.
type Request struct {
	System      string
	User        string
	Temperature float64
}

// Completer talks to a chat completion model.
type Completer interface {
	// Complete returns the full reply.
	Complete(ctx context.Context, req Request) (string, error)

	// Stream returns the full reply, calling onDelta for each streamed piece.
	Stream(ctx context.Context, req Request, onDelta func(string)) (string, error)
}

// Compile-time interface check
var _ Completer = (*OpenAI)(nil)

// CompletionsService defines the chat completion calls used by OpenAI.
// This abstraction enables testing without calling the real API.
type CompletionsService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// OpenAI implements Completer against any OpenAI-compatible endpoint.
type OpenAI struct {
	completions CompletionsService
	model       openai.ChatModel
}

// NewOpenAI creates a completer. An empty baseURL uses the OpenAI API.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAI{
		completions: client.Chat.Completions,
		model:       openai.ChatModel(model),
	}
}

func (o *OpenAI) params(req Request) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		}),
		Model:       openai.F(o.model),
		Temperature: openai.F(req.Temperature),
	}
}

// Complete sends one non-streaming request.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := o.completions.New(ctx, o.params(req))
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream reads server-sent completion chunks until the stream ends.
func (o *OpenAI) Stream(ctx context.Context, req Request, onDelta func(string)) (string, error) {
	stream := o.completions.NewStreaming(ctx, o.params(req))
	defer stream.Close()

	var b strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		b.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("chat completion stream failed: %w", err)
	}
	return b.String(), nil
}

// ModelName returns the chat model name.
func (o *OpenAI) ModelName() string {
	return string(o.model)
}
