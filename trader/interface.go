package trader

import "tvhook/market"

// Exchange 交易所操作接口
// 所有下单编排逻辑只依赖这个接口，便于测试时用假实现替换。
type Exchange interface {
	// GetBalance 查询指定资产的合约账户余额
	GetBalance(asset string) (*Balance, error)

	// GetMarketPrice 查询最新成交价
	GetMarketPrice(symbol string) (float64, error)

	// GetKlines 查询K线（按时间顺序，最新的在最后）
	GetKlines(symbol, interval string, limit int) ([]market.Kline, error)

	// SetLeverage 设置杠杆倍数
	SetLeverage(symbol string, leverage int) error

	// SetMarginType 设置全仓保证金模式（已是全仓时视为成功）
	SetMarginType(symbol string) error

	// IsHedgeMode 查询账户是否为双向持仓模式
	IsHedgeMode() (bool, error)

	// GetPositions 查询全部非零持仓
	GetPositions() ([]Position, error)

	// GetLotFilter 查询交易对的数量精度规则
	GetLotFilter(symbol string) (*LotFilter, error)

	// PlaceOrder 下单
	PlaceOrder(req *OrderRequest) (*OrderResult, error)

	// GetOpenOrders 查询挂单，symbol 为空时查询全部
	GetOpenOrders(symbol string) ([]Order, error)

	// CancelOrder 撤单
	CancelOrder(symbol string, orderID int64) error
}

// Balance 账户余额
type Balance struct {
	Asset         string
	Total         float64
	Available     float64
	UnrealizedPnL float64
}

// Position 持仓
type Position struct {
	Symbol        string
	PositionSide  string  // LONG / SHORT / BOTH
	Amount        float64 // 带符号持仓量，正多负空
	EntryPrice    float64
	MarkPrice     float64
	Leverage      int
	UnrealizedPnL float64
}

// Direction 返回持仓方向 long/short
// BOTH（单向模式）按持仓量符号推断
func (p *Position) Direction() string {
	switch p.PositionSide {
	case "LONG":
		return "long"
	case "SHORT":
		return "short"
	default:
		if p.Amount < 0 {
			return "short"
		}
		return "long"
	}
}

// Size 返回持仓量绝对值
func (p *Position) Size() float64 {
	if p.Amount < 0 {
		return -p.Amount
	}
	return p.Amount
}

// LotFilter 数量精度规则
type LotFilter struct {
	StepSize float64
	MinQty   float64
}

// OrderRequest 下单请求
type OrderRequest struct {
	Symbol          string
	Side            string // BUY / SELL
	PositionSide    string // LONG / SHORT，单向模式留空
	Type            string // MARKET / STOP_MARKET / TAKE_PROFIT_MARKET / TRAILING_STOP_MARKET
	Quantity        float64
	StopPrice       float64
	CallbackRate    float64
	ActivationPrice float64
	ClosePosition   bool
	WorkingType     string // MARK_PRICE / CONTRACT_PRICE
	ClientOrderID   string
}

// OrderResult 下单结果
type OrderResult struct {
	OrderID  int64
	AvgPrice float64
	Status   string
}

// Order 挂单
type Order struct {
	OrderID      int64
	Symbol       string
	Type         string
	PositionSide string
}
