// Package agent drives the language model conversation. The model sees
// the terminal only through the raw_input tool, and every tool call goes
// through the injection gate.
package agent

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/openai"
	"github.com/CaptainPhantasy/gibberish/internal/agent/tools"
	"github.com/CaptainPhantasy/gibberish/internal/gate"
)

// ErrEmptyRawInput is returned by SendRawInput for a bare ":raw".
var ErrEmptyRawInput = errors.New("usage: :raw <escaped bytes>")

type Options struct {
	APIKey string
	Model  string
	// BaseURL points the OpenAI client at a compatible endpoint.
	BaseURL      string
	SystemPrompt string
}

type Response struct {
	Output      string
	TotalTokens int64
}

type streamer interface {
	Stream(ctx context.Context, call fantasy.AgentStreamCall) (*fantasy.AgentResult, error)
}

// Runtime keeps the chat history across prompts until Reset.
type Runtime struct {
	agent streamer
	gate  *gate.Gate

	mu      sync.Mutex
	history []fantasy.Message
}

func New(ctx context.Context, opts Options, g *gate.Gate) (*Runtime, error) {
	providerOpts := []openai.Option{openai.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		providerOpts = append(providerOpts, openai.WithBaseURL(opts.BaseURL))
	}
	provider, err := openai.New(providerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	model, err := provider.LanguageModel(ctx, opts.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", opts.Model, err)
	}

	a := fantasy.NewAgent(model,
		fantasy.WithSystemPrompt(opts.SystemPrompt),
		fantasy.WithTools(tools.NewRawInputTool(g)),
	)
	slog.Info("Agent ready", "model", opts.Model, "base_url", opts.BaseURL)
	return &Runtime{agent: a, gate: g}, nil
}

// Prompt sends input with the accumulated history and runs tool calls
// until the model answers. History only grows on success.
func (r *Runtime) Prompt(ctx context.Context, input string) (Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	result, err := r.agent.Stream(ctx, fantasy.AgentStreamCall{
		Prompt:   input,
		Messages: r.history,
		OnToolCall: func(tc fantasy.ToolCallContent) error {
			slog.Debug("Tool call", "tool", tc.ToolName, "id", tc.ToolCallID, "input", tc.Input)
			return nil
		},
		OnStepFinish: func(step fantasy.StepResult) error {
			slog.Debug("Step finished", "reason", step.FinishReason, "tokens", step.Usage.TotalTokens)
			return nil
		},
		OnRetry: func(err *fantasy.ProviderError, delay time.Duration) {
			slog.Warn("Retrying model request", "error", err.Message, "delay", delay)
		},
	})
	if err != nil {
		return Response{}, describe(err)
	}

	r.history = append(r.history, fantasy.NewUserMessage(input))
	for _, step := range result.Steps {
		r.history = append(r.history, step.Messages...)
	}

	slog.Info("Agent responded", "steps", len(result.Steps), "tokens", result.TotalUsage.TotalTokens, "elapsed", time.Since(start))
	return Response{
		Output:      result.Response.Content.Text(),
		TotalTokens: result.TotalUsage.TotalTokens,
	}, nil
}

// SendRawInput decodes spec and sends it as user input, bypassing
// confirmation.
func (r *Runtime) SendRawInput(ctx context.Context, spec string, wait float64) (string, error) {
	if spec == "" {
		return "", ErrEmptyRawInput
	}
	b, err := gate.DecodeInput(spec)
	if err != nil {
		return "", err
	}
	return r.gate.ExecuteUserInput(ctx, b, wait)
}

// Reset forgets the conversation.
func (r *Runtime) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
}

func describe(err error) error {
	var providerErr *fantasy.ProviderError
	if errors.As(err, &providerErr) {
		return fmt.Errorf("%s: %s", cmp.Or(providerErr.Title, "provider error"), providerErr.Message)
	}
	return err
}
