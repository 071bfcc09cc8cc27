package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	genai "google.golang.org/genai"
)

// GeminiConfig carries the knobs for the Gemini-backed client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	RPS         float64
	Burst       int
}

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli         *genai.Client
	model       string
	temperature float32
	rl          *rpsLimiter
	logger      *zap.Logger
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm: GEMINI_API_KEY is not set")
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiClient{
		cli:         cli,
		model:       model,
		temperature: cfg.Temperature,
		rl:          newRPSLimiter(cfg.RPS, cfg.Burst),
		logger:      logger,
	}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }

func (g *GeminiClient) Close() error {
	if g.rl != nil {
		g.rl.Stop()
	}
	return nil
}

// GenerateStructured asks the model for application/json constrained by
// the response schema derived from fields.
func (g *GeminiClient) GenerateStructured(ctx context.Context, prompt string, fields []FieldSpec, img *ImageAttachment) (json.RawMessage, error) {
	parts := []*genai.Part{{Text: prompt}}
	if img != nil && len(img.Data) > 0 {
		mime := img.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: img.Data}})
	}

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(fields),
		Temperature:      genai.Ptr(g.temperature),
	}

	g.logger.Debug("llm request",
		zap.String("model", g.model),
		zap.Int("prompt_bytes", len(prompt)),
		zap.Int("fields", len(fields)),
		zap.Bool("has_image", img != nil))

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		// Each API call consumes a limiter token.
		if err := g.rl.Acquire(ctx); err != nil {
			lastErr = err
			break
		}
		resp, err := g.cli.Models.GenerateContent(ctx, g.model,
			[]*genai.Content{{Parts: parts}},
			cfg,
		)
		if err != nil {
			lastErr = err
		} else if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			lastErr = ErrEmptyResponse
		} else {
			txt := strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
			if txt == "" {
				lastErr = ErrEmptyResponse
			} else if !json.Valid([]byte(txt)) {
				lastErr = ErrInvalidJSON
			} else {
				return json.RawMessage(txt), nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(300*(1<<attempt)) * time.Millisecond):
		}
	}
	return nil, lastErr
}
