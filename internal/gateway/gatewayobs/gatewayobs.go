package gatewayobs

import (
	"context"

	"auto-trading-engine/internal/interfaces"
	"auto-trading-engine/internal/logger"
	"auto-trading-engine/internal/trace"
	"auto-trading-engine/internal/types"
)

// observableGateway wraps a Gateway with observability (logging & tracing)
type observableGateway struct {
	gw interfaces.Gateway
}

// Compile-time interface check
var _ interfaces.Gateway = (*observableGateway)(nil)

// Wrap wraps a gateway with observability middleware
func Wrap(gw interfaces.Gateway) interfaces.Gateway {
	return &observableGateway{gw: gw}
}

// CurrentPrice fetches the latest price with observability
func (og *observableGateway) CurrentPrice(ctx context.Context, instrument string) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "gateway.CurrentPrice")
	defer span.End()

	logger.Debug(ctx, "Fetching current price", "instrument", instrument)

	price, err := og.gw.CurrentPrice(ctx, instrument)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch current price", err, "instrument", instrument)
		return 0, err
	}

	logger.Debug(ctx, "Price fetched successfully", "instrument", instrument, "price", price)
	return price, nil
}

// SubmitOrder submits an order with observability
func (og *observableGateway) SubmitOrder(ctx context.Context, req types.OrderReq) (types.OrderResult, error) {
	ctx, span := trace.StartSpan(ctx, "gateway.SubmitOrder")
	defer span.End()

	logger.Info(ctx, "Submitting order",
		"instrument", req.Instrument,
		"side", req.Side,
		"qty", req.Qty,
		"tag", req.Tag,
	)

	res, err := og.gw.SubmitOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to submit order", err,
			"instrument", req.Instrument,
			"side", req.Side,
			"qty", req.Qty,
		)
		return types.OrderResult{}, err
	}

	logger.Info(ctx, "Order submitted successfully",
		"instrument", req.Instrument,
		"executed_price", res.ExecutedPrice,
		"executed_qty", res.ExecutedQty,
	)
	return res, nil
}
