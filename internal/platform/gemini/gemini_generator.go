package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"text/template"
	"time"

	"google.golang.org/genai"

	"github.com/phrazzld/leadgen-api/internal/config"
	"github.com/phrazzld/leadgen-api/internal/domain"
	"github.com/phrazzld/leadgen-api/internal/generation"
)

// maxTargetsPerCall bounds how many targets one model call is asked for.
// Larger jobs are served by several calls.
const maxTargetsPerCall = 50

// contentGenerator is the subset of *genai.Models used by the generator.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

var _ generation.Generator = (*Generator)(nil)

// Generator implements generation.Generator using the Gemini API.
type Generator struct {
	logger         *slog.Logger
	config         config.GeneratorConfig
	promptTemplate *template.Template
	models         contentGenerator
}

// NewGenerator creates a Generator backed by a live Gemini client.
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.GeneratorConfig) (*Generator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newGenerator(logger, cfg, client.Models)
}

func newGenerator(logger *slog.Logger, cfg config.GeneratorConfig, models contentGenerator) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	tmpl, err := loadPromptTemplate()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", generation.ErrInvalidConfig, err)
	}

	return &Generator{
		logger:         logger.With(slog.String("component", "gemini_generator")),
		config:         cfg,
		promptTemplate: tmpl,
		models:         models,
	}, nil
}

// Generate asks the model for account targets in batches until req.Count
// distinct targets have been emitted or the model stops producing new ones.
func (g *Generator) Generate(ctx context.Context, req generation.Request, emit generation.EmitFunc) error {
	if err := req.Validate(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, req.Count)
	emitted := 0
	for emitted < req.Count {
		batch := min(req.Count-emitted, maxTargetsPerCall)

		prompt, err := createPrompt(ctx, g.logger, g.promptTemplate, req.Intent, batch)
		if err != nil {
			return err
		}

		response, err := g.callWithRetry(ctx, prompt)
		if err != nil {
			return err
		}

		leads, err := parseResponse(response)
		if err != nil {
			return err
		}

		added := 0
		for _, lead := range leads {
			if emitted >= req.Count {
				break
			}
			key := strings.ToLower(*lead.Company + "\x00" + *lead.Title)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			if err := emit(ctx, lead); err != nil {
				return err
			}
			emitted++
			added++
		}

		g.logger.InfoContext(ctx, "gemini batch processed",
			"job_id", req.JobID,
			"requested", batch,
			"new_targets", added,
			"emitted_total", emitted)

		if added == 0 {
			break
		}
	}

	if emitted == 0 {
		return fmt.Errorf("%w: no usable targets in response", generation.ErrInvalidResponse)
	}
	return nil
}

// callWithRetry makes a call to the Gemini API with exponential backoff retry logic.
// Permanent errors (safety blocks, malformed responses) are returned immediately.
func (g *Generator) callWithRetry(ctx context.Context, prompt string) (*ResponseSchema, error) {
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	maxRetries := g.config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 3
	}
	baseDelay := g.config.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}

	temperature := g.config.Temperature
	genConfig := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
	}

	for attempt := 0; ; attempt++ {
		attemptNum := attempt + 1
		g.logger.DebugContext(ctx, "making Gemini API call",
			"attempt", attemptNum,
			"max_attempts", maxRetries+1)

		resp, err := g.models.GenerateContent(ctx, g.config.Model, genai.Text(prompt), genConfig)
		if err == nil {
			response, perr := decodeResponse(resp)
			if perr == nil {
				return response, nil
			}
			g.logger.WarnContext(ctx, "permanent Gemini error, not retrying",
				"attempt", attemptNum,
				"error", perr)
			return nil, perr
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctx.Err())
		}

		g.logger.ErrorContext(ctx, "Gemini API call failed",
			"attempt", attemptNum,
			"error", err)

		if attempt >= maxRetries {
			return nil, fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				generation.ErrTransientFailure, maxRetries, err)
		}

		delay := backoff(baseDelay, attempt)
		g.logger.InfoContext(ctx, "retrying after delay",
			"attempt", attemptNum,
			"delay", delay.String())

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctx.Err())
		}
	}
}

// backoff returns baseDelay * 2^attempt scaled by a jitter factor in [0.5, 1.0).
func backoff(baseDelay time.Duration, attempt int) time.Duration {
	scaled := float64(baseDelay) * math.Pow(2, float64(attempt))
	return time.Duration(scaled * (0.5 + rand.Float64()*0.5))
}

func decodeResponse(resp *genai.GenerateContentResponse) (*ResponseSchema, error) {
	switch {
	case resp == nil:
		return nil, fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	case len(resp.Candidates) == 0:
		return nil, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	case resp.Candidates[0].FinishReason == genai.FinishReasonSafety:
		return nil, fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	case resp.Candidates[0].Content == nil:
		return nil, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	var parsed ResponseSchema
	if err := json.Unmarshal([]byte(stripCodeFence(text.String())), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", generation.ErrInvalidResponse, err)
	}
	return &parsed, nil
}

// stripCodeFence removes a surrounding ```json fence if the model added one.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseResponse converts model targets into leads. Targets without a company
// or title are skipped; confidence is clamped to [0, 1].
func parseResponse(response *ResponseSchema) ([]*domain.Lead, error) {
	if response == nil {
		return nil, fmt.Errorf("%w: response is nil", generation.ErrInvalidResponse)
	}

	leads := make([]*domain.Lead, 0, len(response.Targets))
	for _, target := range response.Targets {
		company := domain.OptionalString(target.Company)
		title := domain.OptionalString(target.Title)
		if company == nil || title == nil {
			continue
		}

		confidence := target.Confidence
		if math.IsNaN(confidence) {
			confidence = 0
		}
		confidence = math.Max(0, math.Min(1, confidence))

		var sourceURL *string
		if strings.HasPrefix(target.SourceURL, "http://") || strings.HasPrefix(target.SourceURL, "https://") {
			sourceURL = domain.OptionalString(target.SourceURL)
		}

		leads = append(leads, &domain.Lead{
			Company:    company,
			Title:      title,
			SourceURL:  sourceURL,
			Confidence: confidence,
		})
	}
	return leads, nil
}
