package interfaces

import (
	"context"

	"auto-trading-engine/internal/types"
)

// Engine is the position/order lifecycle manager's control and read surface.
type Engine interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() types.StatusSnapshot
	Positions() []types.Position
	OrderHistory(ctx context.Context, limit int) ([]types.Order, error)
}
