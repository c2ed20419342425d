package interfaces

import (
	"context"

	"auto-trading-engine/internal/types"
)

// Gateway is the broker/market-data collaborator. Implementations must honor
// context deadlines; the engine wraps every call with an explicit timeout.
//
// SubmitOrder returns a non-nil error if and only if the order did not fill;
// a nil error means Success is true and ExecutedQty and ExecutedPrice are
// positive. The engine verifies this and halts trading on a violation.
type Gateway interface {
	CurrentPrice(ctx context.Context, instrument string) (float64, error)
	SubmitOrder(ctx context.Context, req types.OrderReq) (types.OrderResult, error)
}
