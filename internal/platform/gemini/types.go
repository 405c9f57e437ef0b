package gemini

import "github.com/phrazzld/leadgen-api/internal/domain"

// promptData represents the data passed to the prompt template
type promptData struct {
	Intent   domain.Intent
	Count    int
	Guidance string
}

// ResponseSchema represents the expected JSON document returned by the model
type ResponseSchema struct {
	// Targets is the list of suggested accounts
	Targets []TargetSchema `json:"targets"`
}

// TargetSchema represents one suggested account in the model response
type TargetSchema struct {
	// Company is the organization name
	Company string `json:"company"`

	// Title is the role worth approaching at that organization
	Title string `json:"title"`

	// SourceURL is a public page supporting the suggestion, if the model has one
	SourceURL string `json:"source_url,omitempty"`

	// Confidence is the model's estimate in [0, 1]
	Confidence float64 `json:"confidence"`
}
