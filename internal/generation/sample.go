package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/phrazzld/leadgen-api/internal/domain"
)

var sampleTitles = map[domain.Intent][]string{
	domain.IntentCareer: {"Engineering Manager", "Head of Talent", "VP Engineering", "Technical Recruiter"},
	domain.IntentGrowth: {"Head of Partnerships", "Marketing Director", "Founder", "Community Lead"},
	domain.IntentSales:  {"Procurement Manager", "Head of Operations", "CTO", "IT Director"},
}

var sampleCompanies = []string{"Acme Corp", "Globex", "Initech", "Umbrella Labs", "Hooli", "Vandelay Industries"}

// Sample emits deterministic example.com leads. It exists for demos and
// end-to-end tests and never touches the network.
type Sample struct {
	// Delay is slept between leads so progress is observable. Zero means no delay.
	Delay time.Duration
}

// Generate emits exactly req.Count leads unless ctx is cancelled or emit fails.
func (s Sample) Generate(ctx context.Context, req Request, emit EmitFunc) error {
	if err := req.Validate(); err != nil {
		return err
	}

	titles := sampleTitles[req.Intent]
	for i := 1; i <= req.Count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lead := &domain.Lead{
			Name:       domain.OptionalString(fmt.Sprintf("Sample Lead %d", i)),
			Email:      domain.OptionalString(fmt.Sprintf("lead-%d-%d@example.com", req.JobID, i)),
			Company:    domain.OptionalString(sampleCompanies[(i-1)%len(sampleCompanies)]),
			Title:      domain.OptionalString(titles[(i-1)%len(titles)]),
			SourceURL:  domain.OptionalString(fmt.Sprintf("https://example.com/leads/%d/%d", req.JobID, i)),
			Confidence: sampleConfidence(i),
		}
		if err := emit(ctx, lead); err != nil {
			return err
		}

		if s.Delay > 0 && i < req.Count {
			select {
			case <-time.After(s.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// sampleConfidence cycles through 0.50..0.99 in whole-percent steps.
func sampleConfidence(i int) float64 {
	return float64(50+(i*37)%50) / 100
}
