package gemini

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/phrazzld/leadgen-api/internal/domain"
)

//go:embed prompts/targets.tmpl
var promptFS embed.FS

var intentGuidance = map[domain.Intent]string{
	domain.IntentCareer: "find companies that are likely hiring for the user's next role, and the hiring contacts there",
	domain.IntentGrowth: "find partners, communities and companies that could help the user's business grow",
	domain.IntentSales:  "find companies that are likely buyers of the user's product, and the decision makers there",
}

func loadPromptTemplate() (*template.Template, error) {
	return template.ParseFS(promptFS, "prompts/targets.tmpl")
}

// createPrompt renders the prompt for one generation request.
func createPrompt(
	ctx context.Context,
	logger *slog.Logger,
	tmpl *template.Template,
	intent domain.Intent,
	count int,
) (string, error) {
	data := promptData{
		Intent:   intent,
		Count:    count,
		Guidance: intentGuidance[intent],
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	prompt := buf.String()
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	logger.DebugContext(ctx, "prompt generated",
		"intent", string(intent),
		"prompt_length", len(prompt))
	return prompt, nil
}
