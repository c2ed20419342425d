package types

import "time"

// Direction is the closed set of signal directions a strategy can emit.
type Direction int

const (
	StrongSell Direction = iota - 2
	Sell
	Hold
	Buy
	StrongBuy
)

func (d Direction) String() string {
	switch d {
	case StrongBuy:
		return "STRONG_BUY"
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	case StrongSell:
		return "STRONG_SELL"
	default:
		return "HOLD"
	}
}

// IsBuy reports whether d belongs to the buy family.
func (d Direction) IsBuy() bool { return d == Buy || d == StrongBuy }

// IsSell reports whether d belongs to the sell family.
func (d Direction) IsSell() bool { return d == Sell || d == StrongSell }

// IsStrong reports whether d is a strong variant.
func (d Direction) IsStrong() bool { return d == StrongBuy || d == StrongSell }

// Strengthen upgrades a plain direction to its strong variant.
func (d Direction) Strengthen() Direction {
	switch d {
	case Buy:
		return StrongBuy
	case Sell:
		return StrongSell
	default:
		return d
	}
}

// PriceSample is one tick buffered inside a strategy's rolling window.
type PriceSample struct {
	Ts    time.Time
	Price float64
}

// Signal is a directional recommendation produced by one strategy (or by the
// consensus aggregator under StrategyID "consensus").
type Signal struct {
	StrategyID string             `json:"strategy_id"`
	Direction  Direction          `json:"direction"`
	Confidence float64            `json:"confidence"`
	Price      float64            `json:"price"`
	Ts         time.Time          `json:"ts"`
	Stop       float64            `json:"stop,omitempty"`
	Target     float64            `json:"target,omitempty"`
	Evidence   map[string]float64 `json:"evidence,omitempty"`
}

// MarketRegime is a coarse classification of prevailing market conditions.
type MarketRegime string

const (
	RegimeBull     MarketRegime = "bull"
	RegimeBear     MarketRegime = "bear"
	RegimeSideways MarketRegime = "sideways"
	RegimeVolatile MarketRegime = "volatile"
)

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderExecuted  OrderStatus = "executed"
	OrderCancelled OrderStatus = "cancelled"
	OrderFailed    OrderStatus = "failed"
)

// Terminal reports whether the status is final. Terminal states never change.
func (s OrderStatus) Terminal() bool { return s != OrderPending }

// OrderReq is what the engine hands to the gateway collaborator.
type OrderReq struct {
	Instrument string
	Side       OrderSide
	Qty        float64
	Price      float64
	Tag        string
}

// OrderResult is the gateway's fill report.
type OrderResult struct {
	Success       bool    `json:"success"`
	ExecutedPrice float64 `json:"executed_price"`
	ExecutedQty   float64 `json:"executed_qty"`
	Fees          float64 `json:"fees"`
}

// Order records one submission and its outcome.
type Order struct {
	ID             string      `json:"id"`
	Instrument     string      `json:"instrument"`
	Side           OrderSide   `json:"side"`
	Qty            float64     `json:"qty"`
	RequestedPrice float64     `json:"requested_price"`
	Status         OrderStatus `json:"status"`
	ExecutedPrice  float64     `json:"executed_price"`
	ExecutedQty    float64     `json:"executed_qty"`
	Fees           float64     `json:"fees"`
	CreatedAt      time.Time   `json:"created_at"`
}

// PositionState tracks an instrument through the entry/exit state machine.
type PositionState string

const (
	StateNone         PositionState = "NONE"
	StatePendingEntry PositionState = "PENDING_ENTRY"
	StateOpen         PositionState = "OPEN"
	StatePendingExit  PositionState = "PENDING_EXIT"
)

// Position is one open holding. Quantity is always positive; Side records
// whether it is long or short.
type Position struct {
	Instrument    string        `json:"instrument"`
	Side          OrderSide     `json:"side"`
	Quantity      float64       `json:"quantity"`
	AvgEntryPrice float64       `json:"avg_entry_price"`
	CurrentPrice  float64       `json:"current_price"`
	StopLoss      float64       `json:"stop_loss"`
	TakeProfit    float64       `json:"take_profit"`
	EntryTime     time.Time     `json:"entry_time"`
	LastUpdate    time.Time     `json:"last_update"`
	UnrealizedPnL float64       `json:"unrealized_pnl"`
	State         PositionState `json:"state"`
}

// MarkPrice refreshes the current price and recomputes unrealized P&L.
func (p *Position) MarkPrice(price float64, now time.Time) {
	p.CurrentPrice = price
	p.LastUpdate = now
	if p.Side == SideSell {
		p.UnrealizedPnL = (p.AvgEntryPrice - price) * p.Quantity
	} else {
		p.UnrealizedPnL = (price - p.AvgEntryPrice) * p.Quantity
	}
}

// ExitHit reports whether price has reached the stop or target bracket,
// mirrored for shorts.
func (p *Position) ExitHit(price float64) (hit bool, reason string) {
	if p.Side == SideSell {
		if price >= p.StopLoss {
			return true, "STOP_LOSS"
		}
		if price <= p.TakeProfit {
			return true, "TAKE_PROFIT"
		}
		return false, ""
	}
	if price <= p.StopLoss {
		return true, "STOP_LOSS"
	}
	if price >= p.TakeProfit {
		return true, "TAKE_PROFIT"
	}
	return false, ""
}

// TradeFill is one row of the append-only trade history.
type TradeFill struct {
	ID         string    `json:"id"`
	Instrument string    `json:"instrument"`
	Side       OrderSide `json:"side"`
	Qty        float64   `json:"qty"`
	Price      float64   `json:"price"`
	PnL        float64   `json:"pnl"`
	Reason     string    `json:"reason"`
	ExecutedAt time.Time `json:"executed_at"`
}

// DailyCounters accumulate within one trading day and reset at rollover.
type DailyCounters struct {
	Date        string  `json:"date"` // YYYY-MM-DD
	RealizedPnL float64 `json:"realized_pnl"`
	TradeCount  int     `json:"trade_count"`
}

// StatusSnapshot is the read-only view exposed to dashboards and CLIs.
type StatusSnapshot struct {
	Running        bool      `json:"running"`
	TradingEnabled bool      `json:"trading_enabled"`
	DailyPnL       float64   `json:"daily_pnl"`
	DailyTrades    int       `json:"daily_trades"`
	PositionCount  int       `json:"position_count"`
	LastErrorKind  string    `json:"last_error_kind,omitempty"`
	LastErrorAt    time.Time `json:"last_error_at,omitempty"`
}
