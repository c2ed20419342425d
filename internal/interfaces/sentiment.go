package interfaces

import "context"

// Sentiment is the optional trend/news collaborator. Adjust returns an
// additive confidence delta for the instrument; implementations that have no
// opinion return 0.
type Sentiment interface {
	Adjust(ctx context.Context, instrument string) (float64, error)
}
