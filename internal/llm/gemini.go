package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"triage/internal/config"
	"triage/internal/constants"
)

const defaultGeminiModel = "gemini-1.5-flash"

type GeminiClient struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

func NewGeminiClient(ctx context.Context, cfg config.LLMConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	name := cfg.Model
	if name == "" {
		name = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(name)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(cfg.Temperature)
	if cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(cfg.MaxTokens))
	}

	return &GeminiClient{client: client, model: model, timeout: cfg.Timeout}, nil
}

func (c *GeminiClient) Name() string { return constants.LLMProviderGemini }

func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func (c *GeminiClient) Analyze(ctx context.Context, in Input) (Output, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.model.GenerateContent(ctx, genai.Text(BuildPrompt(in)))
	if err != nil {
		return Output{}, geminiError(err)
	}

	var text strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}

	out, err := ParseOutput(text.String())
	if err != nil {
		return Output{}, err
	}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

var grpcStatus = map[codes.Code]int{
	codes.InvalidArgument:   400,
	codes.Unauthenticated:   401,
	codes.PermissionDenied:  403,
	codes.DeadlineExceeded:  504,
	codes.ResourceExhausted: 429,
	codes.Unavailable:       503,
	codes.Internal:          500,
}

// geminiError maps transport errors onto StatusError so retry and
// classification treat both providers alike.
func geminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &StatusError{Code: apiErr.Code, Body: apiErr.Message}
	}
	if st, ok := status.FromError(err); ok {
		if code, known := grpcStatus[st.Code()]; known {
			return &StatusError{Code: code, Body: st.Message()}
		}
	}
	return fmt.Errorf("gemini generate failed: %w", err)
}

var _ Provider = (*GeminiClient)(nil)
