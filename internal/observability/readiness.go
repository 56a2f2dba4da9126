package observability

import (
	"context"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// Readiness combines several readiness checks. The first failure is reported.
type Readiness []sharedobs.ReadinessChecker

func (r Readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
