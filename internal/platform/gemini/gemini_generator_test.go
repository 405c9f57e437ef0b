package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/phrazzld/leadgen-api/internal/config"
	"github.com/phrazzld/leadgen-api/internal/domain"
	"github.com/phrazzld/leadgen-api/internal/generation"
)

// fakeModels replays scripted responses in order; the last one repeats.
type fakeModels struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	script  []fakeReply
}

type fakeReply struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeModels) GenerateContent(
	_ context.Context,
	_ string,
	contents []*genai.Content,
	_ *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range contents {
		for _, p := range c.Parts {
			f.prompts = append(f.prompts, p.Text)
		}
	}
	reply := f.script[min(f.calls, len(f.script)-1)]
	f.calls++
	return reply.resp, reply.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: text}}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func targetsResponse(t *testing.T, targets ...TargetSchema) *genai.GenerateContentResponse {
	t.Helper()
	body, err := json.Marshal(ResponseSchema{Targets: targets})
	require.NoError(t, err)
	return textResponse(string(body))
}

func newTestGenerator(t *testing.T, models contentGenerator) *Generator {
	t.Helper()
	g, err := newGenerator(slog.New(slog.NewTextHandler(io.Discard, nil)), config.GeneratorConfig{
		Kind:        "gemini",
		Model:       "gemini-test",
		Temperature: 0.4,
		MaxRetries:  2,
		BaseDelay:   time.Millisecond,
	}, models)
	require.NoError(t, err)
	return g
}

func run(t *testing.T, g *Generator, count int) ([]*domain.Lead, error) {
	t.Helper()
	var leads []*domain.Lead
	err := g.Generate(context.Background(),
		generation.Request{JobID: 1, Intent: domain.IntentSales, Count: count},
		func(_ context.Context, lead *domain.Lead) error {
			leads = append(leads, lead)
			return nil
		})
	return leads, err
}

func TestGenerate_EmitsTargets(t *testing.T) {
	models := &fakeModels{script: []fakeReply{{resp: targetsResponse(t,
		TargetSchema{Company: "Acme", Title: "CTO", SourceURL: "https://acme.example", Confidence: 0.9},
		TargetSchema{Company: "Globex", Title: "Head of IT", Confidence: 1.7},
		TargetSchema{Company: "", Title: "Nobody"},
		TargetSchema{Company: "Initech", Title: "COO", SourceURL: "javascript:alert(1)", Confidence: -3},
	)}}}
	g := newTestGenerator(t, models)

	leads, err := run(t, g, 3)

	require.NoError(t, err)
	require.Len(t, leads, 3)
	assert.Equal(t, "Acme", *leads[0].Company)
	assert.Equal(t, "https://acme.example", *leads[0].SourceURL)
	assert.Nil(t, leads[0].Name)
	assert.Nil(t, leads[0].Email)
	assert.Equal(t, 1.0, leads[1].Confidence)
	assert.Nil(t, leads[2].SourceURL)
	assert.Equal(t, 0.0, leads[2].Confidence)
	for _, lead := range leads {
		assert.NoError(t, lead.Validate())
	}

	require.Len(t, models.prompts, 1)
	assert.Contains(t, models.prompts[0], "exactly 3")
	assert.Contains(t, models.prompts[0], "decision makers")
}

func TestGenerate_BatchesLargeRequests(t *testing.T) {
	var targets []TargetSchema
	for i := 0; i < maxTargetsPerCall; i++ {
		targets = append(targets, TargetSchema{Company: fmt.Sprintf("Co %d", i), Title: "CTO", Confidence: 0.5})
	}
	var more []TargetSchema
	for i := 0; i < 20; i++ {
		more = append(more, TargetSchema{Company: fmt.Sprintf("Other %d", i), Title: "CTO", Confidence: 0.5})
	}
	models := &fakeModels{script: []fakeReply{
		{resp: targetsResponse(t, targets...)},
		{resp: targetsResponse(t, more...)},
	}}
	g := newTestGenerator(t, models)

	leads, err := run(t, g, 60)

	require.NoError(t, err)
	assert.Len(t, leads, 60)
	assert.Equal(t, 2, models.calls)
	assert.Contains(t, models.prompts[1], "exactly 10")
}

func TestGenerate_StopsWhenModelRepeatsItself(t *testing.T) {
	models := &fakeModels{script: []fakeReply{{resp: targetsResponse(t,
		TargetSchema{Company: "Acme", Title: "CTO", Confidence: 0.9},
		TargetSchema{Company: "acme", Title: "cto", Confidence: 0.8},
	)}}}
	g := newTestGenerator(t, models)

	leads, err := run(t, g, 5)

	require.NoError(t, err)
	assert.Len(t, leads, 1)
	assert.Equal(t, 2, models.calls)
}

func TestGenerate_RetriesTransientErrors(t *testing.T) {
	models := &fakeModels{script: []fakeReply{
		{err: errors.New("503 unavailable")},
		{err: errors.New("503 unavailable")},
		{resp: targetsResponse(t, TargetSchema{Company: "Acme", Title: "CTO", Confidence: 0.9})},
	}}
	g := newTestGenerator(t, models)

	leads, err := run(t, g, 1)

	require.NoError(t, err)
	assert.Len(t, leads, 1)
	assert.Equal(t, 3, models.calls)
}

func TestGenerate_GivesUpAfterMaxRetries(t *testing.T) {
	models := &fakeModels{script: []fakeReply{{err: errors.New("503 unavailable")}}}
	g := newTestGenerator(t, models)

	_, err := run(t, g, 1)

	assert.ErrorIs(t, err, generation.ErrTransientFailure)
	assert.Equal(t, 3, models.calls)
}

func TestGenerate_PermanentErrors(t *testing.T) {
	blocked := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
	}

	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		wantErr error
	}{
		{"safety block", blocked, generation.ErrContentBlocked},
		{"no candidates", &genai.GenerateContentResponse{}, generation.ErrInvalidResponse},
		{"not json", textResponse("here are some companies"), generation.ErrInvalidResponse},
		{"empty targets", textResponse(`{"targets": []}`), generation.ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			models := &fakeModels{script: []fakeReply{{resp: tt.resp}}}
			g := newTestGenerator(t, models)

			_, err := run(t, g, 2)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 1, models.calls, "permanent errors are not retried")
		})
	}
}

func TestGenerate_AcceptsFencedJSON(t *testing.T) {
	models := &fakeModels{script: []fakeReply{{resp: textResponse(
		"```json\n{\"targets\": [{\"company\": \"Acme\", \"title\": \"CTO\", \"confidence\": 0.7}]}\n```",
	)}}}
	g := newTestGenerator(t, models)

	leads, err := run(t, g, 1)

	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, 0.7, leads[0].Confidence)
}

func TestGenerate_InvalidRequest(t *testing.T) {
	g := newTestGenerator(t, &fakeModels{script: []fakeReply{{resp: textResponse("{}")}}})

	_, err := run(t, g, 0)

	assert.ErrorIs(t, err, generation.ErrInvalidRequest)
}

func TestNewGenerator_Validation(t *testing.T) {
	_, err := NewGenerator(context.Background(), slog.Default(), config.GeneratorConfig{Model: "m"})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = newGenerator(slog.Default(), config.GeneratorConfig{}, &fakeModels{})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = newGenerator(nil, config.GeneratorConfig{Model: "m"}, &fakeModels{})
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	for attempt := 0; attempt < 4; attempt++ {
		full := time.Second << attempt
		d := backoff(time.Second, attempt)
		assert.GreaterOrEqual(t, d, full/2)
		assert.Less(t, d, full)
	}
}
