package trader

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"tvhook/market"
)

// Binance错误码: 保证金模式无需修改
const binanceErrNoNeedChangeMarginType = -4046

// FuturesTrader 币安U本位合约交易器
// 余额和持仓带15秒缓存，避免清理循环高频扫描打爆限频。
type FuturesTrader struct {
	client *futures.Client

	cacheMu       sync.RWMutex
	cacheDuration time.Duration

	balanceCache     map[string]*Balance
	balanceCacheTime time.Time

	positionsCache     []Position
	positionsCacheTime time.Time

	filterMu        sync.RWMutex
	filterCache     map[string]*LotFilter
	filterCacheTime time.Time
	filterCacheTTL  time.Duration
}

// NewFuturesTrader 创建币安合约交易器
func NewFuturesTrader(apiKey, secretKey string) *FuturesTrader {
	return &FuturesTrader{
		client:         futures.NewClient(apiKey, secretKey),
		cacheDuration:  15 * time.Second,
		balanceCache:   make(map[string]*Balance),
		filterCache:    make(map[string]*LotFilter),
		filterCacheTTL: time.Hour,
	}
}

// GetBalance 查询合约账户余额（15秒缓存）
func (t *FuturesTrader) GetBalance(asset string) (*Balance, error) {
	asset = strings.ToUpper(asset)

	t.cacheMu.RLock()
	if time.Since(t.balanceCacheTime) < t.cacheDuration {
		if b, ok := t.balanceCache[asset]; ok {
			t.cacheMu.RUnlock()
			return b, nil
		}
	}
	t.cacheMu.RUnlock()

	balances, err := t.client.NewGetBalanceService().Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}

	t.cacheMu.Lock()
	t.balanceCache = make(map[string]*Balance, len(balances))
	for _, b := range balances {
		total, _ := strconv.ParseFloat(b.Balance, 64)
		available, _ := strconv.ParseFloat(b.AvailableBalance, 64)
		unpnl, _ := strconv.ParseFloat(b.CrossUnPnl, 64)
		t.balanceCache[strings.ToUpper(b.Asset)] = &Balance{
			Asset:         b.Asset,
			Total:         total,
			Available:     available,
			UnrealizedPnL: unpnl,
		}
	}
	t.balanceCacheTime = time.Now()
	result, ok := t.balanceCache[asset]
	t.cacheMu.Unlock()

	if !ok {
		return &Balance{Asset: asset}, nil
	}
	return result, nil
}

// GetMarketPrice 查询最新成交价
func (t *FuturesTrader) GetMarketPrice(symbol string) (float64, error) {
	prices, err := t.client.NewListPricesService().Symbol(symbol).Do(context.Background())
	if err != nil {
		return 0, fmt.Errorf("查询 %s 价格失败: %w", symbol, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("查询 %s 价格失败: 空响应", symbol)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 价格失败: %w", symbol, err)
	}
	return price, nil
}

// GetKlines 查询K线
func (t *FuturesTrader) GetKlines(symbol, interval string, limit int) ([]market.Kline, error) {
	raw, err := t.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("查询 %s K线失败: %w", symbol, err)
	}

	klines := make([]market.Kline, 0, len(raw))
	for _, k := range raw {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closePrice, _ := strconv.ParseFloat(k.Close, 64)
		klines = append(klines, market.Kline{
			OpenTime: k.OpenTime,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
		})
	}
	return klines, nil
}

// SetLeverage 设置杠杆倍数
func (t *FuturesTrader) SetLeverage(symbol string, leverage int) error {
	_, err := t.client.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(context.Background())
	if err != nil {
		return fmt.Errorf("设置 %s 杠杆 %dx 失败: %w", symbol, leverage, err)
	}
	return nil
}

// SetMarginType 设置全仓保证金模式
// 币安对已是全仓的交易对返回 -4046，视为成功
func (t *FuturesTrader) SetMarginType(symbol string) error {
	err := t.client.NewChangeMarginTypeService().
		Symbol(symbol).
		MarginType(futures.MarginTypeCrossed).
		Do(context.Background())
	if err != nil {
		if apiErr, ok := err.(*common.APIError); ok && apiErr.Code == binanceErrNoNeedChangeMarginType {
			return nil
		}
		return fmt.Errorf("设置 %s 全仓模式失败: %w", symbol, err)
	}
	return nil
}

// IsHedgeMode 查询账户是否为双向持仓模式
// 接口失败时退化为扫描持仓: 出现 LONG/SHORT 持仓方向即视为双向模式
func (t *FuturesTrader) IsHedgeMode() (bool, error) {
	mode, err := t.client.NewGetPositionModeService().Do(context.Background())
	if err == nil {
		return mode.DualSidePosition, nil
	}
	log.Printf("⚠️ 查询持仓模式失败，回退到扫描持仓: %v", err)

	positions, perr := t.GetPositions()
	if perr != nil {
		return false, fmt.Errorf("查询持仓模式失败: %w", err)
	}
	for _, p := range positions {
		if p.PositionSide == "LONG" || p.PositionSide == "SHORT" {
			return true, nil
		}
	}
	return false, nil
}

// GetPositions 查询全部非零持仓（15秒缓存）
func (t *FuturesTrader) GetPositions() ([]Position, error) {
	t.cacheMu.RLock()
	if t.positionsCache != nil && time.Since(t.positionsCacheTime) < t.cacheDuration {
		cached := t.positionsCache
		t.cacheMu.RUnlock()
		return cached, nil
	}
	t.cacheMu.RUnlock()

	risks, err := t.client.NewGetPositionRiskService().Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("查询持仓失败: %w", err)
	}

	positions := make([]Position, 0)
	for _, r := range risks {
		amt, _ := strconv.ParseFloat(r.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		mark, _ := strconv.ParseFloat(r.MarkPrice, 64)
		unpnl, _ := strconv.ParseFloat(r.UnRealizedProfit, 64)
		leverage, _ := strconv.Atoi(r.Leverage)
		positions = append(positions, Position{
			Symbol:        r.Symbol,
			PositionSide:  string(r.PositionSide),
			Amount:        amt,
			EntryPrice:    entry,
			MarkPrice:     mark,
			Leverage:      leverage,
			UnrealizedPnL: unpnl,
		})
	}

	t.cacheMu.Lock()
	t.positionsCache = positions
	t.positionsCacheTime = time.Now()
	t.cacheMu.Unlock()

	return positions, nil
}

// InvalidateCache 主动失效余额/持仓缓存（下单成功后调用）
func (t *FuturesTrader) InvalidateCache() {
	t.cacheMu.Lock()
	t.balanceCacheTime = time.Time{}
	t.positionsCache = nil
	t.positionsCacheTime = time.Time{}
	t.cacheMu.Unlock()
}

// GetLotFilter 查询交易对数量精度规则（交易规则缓存1小时）
func (t *FuturesTrader) GetLotFilter(symbol string) (*LotFilter, error) {
	t.filterMu.RLock()
	if time.Since(t.filterCacheTime) < t.filterCacheTTL {
		if f, ok := t.filterCache[symbol]; ok {
			t.filterMu.RUnlock()
			return f, nil
		}
	}
	t.filterMu.RUnlock()

	info, err := t.client.NewExchangeInfoService().Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("查询交易规则失败: %w", err)
	}

	t.filterMu.Lock()
	t.filterCache = make(map[string]*LotFilter, len(info.Symbols))
	for i := range info.Symbols {
		s := &info.Symbols[i]
		lot := s.LotSizeFilter()
		if lot == nil {
			continue
		}
		step, _ := strconv.ParseFloat(lot.StepSize, 64)
		minQty, _ := strconv.ParseFloat(lot.MinQuantity, 64)
		t.filterCache[s.Symbol] = &LotFilter{StepSize: step, MinQty: minQty}
	}
	t.filterCacheTime = time.Now()
	result, ok := t.filterCache[symbol]
	t.filterMu.Unlock()

	if !ok {
		return nil, fmt.Errorf("交易对 %s 不存在", symbol)
	}
	return result, nil
}

// PlaceOrder 下单
func (t *FuturesTrader) PlaceOrder(req *OrderRequest) (*OrderResult, error) {
	svc := t.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderType(req.Type)).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)

	if req.PositionSide != "" {
		svc = svc.PositionSide(futures.PositionSideType(req.PositionSide))
	}
	if req.Quantity > 0 {
		svc = svc.Quantity(formatFloat(req.Quantity))
	}
	if req.StopPrice > 0 {
		svc = svc.StopPrice(formatFloat(req.StopPrice))
	}
	if req.CallbackRate > 0 {
		svc = svc.CallbackRate(formatFloat(req.CallbackRate))
	}
	if req.ActivationPrice > 0 {
		svc = svc.ActivationPrice(formatFloat(req.ActivationPrice))
	}
	if req.ClosePosition {
		svc = svc.ClosePosition(true)
	}
	if req.WorkingType != "" {
		svc = svc.WorkingType(futures.WorkingType(req.WorkingType))
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	resp, err := svc.Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("下单失败 %s %s %s: %w", req.Symbol, req.Side, req.Type, err)
	}

	t.InvalidateCache()

	avgPrice, _ := strconv.ParseFloat(resp.AvgPrice, 64)
	return &OrderResult{
		OrderID:  resp.OrderID,
		AvgPrice: avgPrice,
		Status:   string(resp.Status),
	}, nil
}

// GetOpenOrders 查询挂单，symbol 为空时查询全部交易对
func (t *FuturesTrader) GetOpenOrders(symbol string) ([]Order, error) {
	svc := t.client.NewListOpenOrdersService()
	if symbol != "" {
		svc = svc.Symbol(symbol)
	}
	raw, err := svc.Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("查询挂单失败: %w", err)
	}

	orders := make([]Order, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, Order{
			OrderID:      o.OrderID,
			Symbol:       o.Symbol,
			Type:         string(o.Type),
			PositionSide: string(o.PositionSide),
		})
	}
	return orders, nil
}

// CancelOrder 撤单
func (t *FuturesTrader) CancelOrder(symbol string, orderID int64) error {
	_, err := t.client.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(context.Background())
	if err != nil {
		return fmt.Errorf("撤单失败 %s #%d: %w", symbol, orderID, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
