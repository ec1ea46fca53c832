package trader

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tvhook/config"
	"tvhook/market"
	"tvhook/signal"
)

// 可用余额为0时的名义余额（仅在显式开启时生效）
const nominalBalance = 1000.0

// 开仓后等待成交价落地的时长
const settlementWait = time.Second

// Settings 全局交易策略开关
type Settings interface {
	TradingEnabled() bool
	AutoPositionSwitch() bool
	MaxOpenPositions() int
}

// Notifier 通知发送方
type Notifier interface {
	Notify(message string)
}

// OrderRecorder 订单历史记录
type OrderRecorder interface {
	RecordOrder(rec *config.OrderRecord) error
}

// ExecutionResult 执行结果
// Degraded: 开仓成功但保护单不完整，持仓处于降级保护状态
type ExecutionResult struct {
	Success        bool
	Filtered       bool // 信号被策略/校验过滤，不算错误
	Message        string
	OrderID        int64
	EntryPrice     float64
	Quantity       float64
	TPOrderID      int64
	SLOrderID      int64
	TrailingStopID int64
	FallbackUsed   bool
	Degraded       bool
}

// Executor 下单编排器
// 每个交易对一把锁，从校验到保护单挂完整个流程持锁执行，
// 避免同一交易对的并发信号交叉下单。
type Executor struct {
	exchange  Exchange
	coins     *config.CoinResolver
	settings  Settings
	validator *PositionValidator
	notifier  Notifier
	history   OrderRecorder
	retry     *RetryPolicy

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// 可用余额为0时用名义余额1000计算仓位（测试环境用）
	useNominalBalanceWhenZero bool

	sleep func(time.Duration) // 测试注入点
}

// NewExecutor 创建下单编排器
func NewExecutor(exchange Exchange, coins *config.CoinResolver, settings Settings, notifier Notifier, history OrderRecorder) *Executor {
	return &Executor{
		exchange:  exchange,
		coins:     coins,
		settings:  settings,
		validator: NewPositionValidator(),
		notifier:  notifier,
		history:   history,
		retry:     NewRetryPolicy(3, 500*time.Millisecond),
		locks:     make(map[string]*sync.Mutex),
		sleep:     time.Sleep,
	}
}

// SetNominalBalanceFallback 开启余额为0时的名义余额兜底
func (e *Executor) SetNominalBalanceFallback(enabled bool) {
	e.useNominalBalanceWhenZero = enabled
}

func (e *Executor) symbolLock(symbol string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	if m, ok := e.locks[symbol]; ok {
		return m
	}
	m := &sync.Mutex{}
	e.locks[symbol] = m
	return m
}

// PlaceOrder 执行标准信号（开仓/平仓）
// quantity > 0 时覆盖按配置计算的仓位，仅开仓时有意义
func (e *Executor) PlaceOrder(symbol, direction, action string, quantity float64) *ExecutionResult {
	lock := e.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()
	return e.placeOrder(symbol, direction, action, quantity)
}

// placeOrder 内部下单流程，调用方必须已持有该交易对的锁
func (e *Executor) placeOrder(symbol, direction, action string, quantity float64) *ExecutionResult {
	log.Printf("📨 处理信号: %s %s %s", symbol, direction, action)

	cfg := e.coins.Resolve(symbol)
	if !e.settings.TradingEnabled() {
		return &ExecutionResult{Filtered: true, Message: "全局交易开关已关闭"}
	}
	if !cfg.EnableTrading {
		return &ExecutionResult{Filtered: true, Message: fmt.Sprintf("%s 交易已禁用", cfg.CoinType)}
	}

	positions, err := e.exchange.GetPositions()
	if err != nil {
		return &ExecutionResult{Message: fmt.Sprintf("查询持仓失败: %v", err)}
	}

	if action == "open" {
		if reason := e.checkPositionLimit(symbol, positions); reason != "" {
			return &ExecutionResult{Filtered: true, Message: reason}
		}
	}

	vr := e.validator.Validate(symbol, direction, action, positions, e.settings.AutoPositionSwitch())
	if !vr.Allowed {
		log.Printf("🚫 信号被拒: %s", vr.Reason)
		return &ExecutionResult{Filtered: true, Message: vr.Reason}
	}

	// 先平反向仓再开新仓
	if vr.ActionRequired != nil && vr.ActionRequired.Type == "close_opposite" {
		log.Printf("🔄 %s 自动换向: 先平 %d 个反向仓位", symbol, len(vr.ActionRequired.PositionsToClose))
		for i := range vr.ActionRequired.PositionsToClose {
			p := &vr.ActionRequired.PositionsToClose[i]
			if err := e.closePosition(p); err != nil {
				return &ExecutionResult{Message: fmt.Sprintf("平反向仓失败: %v", err)}
			}
		}
	}

	switch action {
	case "open":
		return e.openPosition(symbol, direction, cfg, quantity)
	case "close":
		return e.closePositions(symbol, vr.ExistingPositions)
	default:
		return &ExecutionResult{Message: fmt.Sprintf("无效操作: %s", action)}
	}
}

// checkPositionLimit 检查最大持仓数限制
// 已持有该交易对时不受限制（换向场景）
func (e *Executor) checkPositionLimit(symbol string, positions []Position) string {
	maxOpen := e.settings.MaxOpenPositions()
	if maxOpen <= 0 {
		return ""
	}
	held := make(map[string]bool)
	for _, p := range positions {
		held[p.Symbol] = true
	}
	if held[symbol] {
		return ""
	}
	if len(held) >= maxOpen {
		return fmt.Sprintf("已达最大持仓数 %d，拒绝开新仓", maxOpen)
	}
	return ""
}

// openPosition 开仓主流程
func (e *Executor) openPosition(symbol, direction string, cfg *config.CoinConfig, overrideQty float64) *ExecutionResult {
	// 杠杆和保证金模式失败不阻断下单，按账户现有设置继续
	if err := e.exchange.SetLeverage(symbol, cfg.Leverage); err != nil {
		log.Printf("⚠️ 设置杠杆失败（继续下单）: %v", err)
	}
	if err := e.exchange.SetMarginType(symbol); err != nil {
		log.Printf("⚠️ 设置保证金模式失败（继续下单）: %v", err)
	}

	hedge, err := e.exchange.IsHedgeMode()
	if err != nil {
		return &ExecutionResult{Message: fmt.Sprintf("查询持仓模式失败: %v", err)}
	}

	price, err := e.exchange.GetMarketPrice(symbol)
	if err != nil {
		return &ExecutionResult{Message: fmt.Sprintf("查询价格失败: %v", err)}
	}

	qty := overrideQty
	if qty <= 0 {
		qty, err = e.calculateQuantity(symbol, cfg.OrderSizePercentage, cfg.Leverage, price)
	} else {
		qty, err = e.snapQuantity(symbol, qty)
	}
	if err != nil {
		return &ExecutionResult{Message: fmt.Sprintf("仓位计算失败: %v", err)}
	}

	side, positionSide := orderSide(direction, "open")
	if !hedge {
		positionSide = ""
	}

	entryOrder, err := e.exchange.PlaceOrder(&OrderRequest{
		Symbol:        symbol,
		Side:          side,
		PositionSide:  positionSide,
		Type:          "MARKET",
		Quantity:      qty,
		ClientOrderID: newClientOrderID(),
	})
	if err != nil {
		return &ExecutionResult{Message: fmt.Sprintf("开仓失败: %v", err)}
	}
	log.Printf("✅ %s 开仓成功 #%d %s %v @市价", symbol, entryOrder.OrderID, side, qty)

	entryPrice := e.resolveEntryPrice(symbol, entryOrder, price)

	result := &ExecutionResult{
		Success:    true,
		OrderID:    entryOrder.OrderID,
		EntryPrice: entryPrice,
		Quantity:   qty,
	}

	// 挂TP/SL保护单，失败降级但绝不回滚开仓
	levels := e.protectWithTPSL(symbol, direction, positionSide, entryPrice, cfg, result)

	e.recordOrder(&config.OrderRecord{
		OrderID:      entryOrder.OrderID,
		Symbol:       symbol,
		Side:         side,
		PositionSide: positionSide,
		Quantity:     qty,
		Price:        entryPrice,
		TPPrice:      levelsTP(levels),
		SLPrice:      levelsSL(levels),
		Status:       resultStatus(result),
	})
	e.notifyOpen(symbol, direction, entryPrice, qty, cfg, levels, result)

	return result
}

// protectWithTPSL 为新仓位挂止盈止损保护单
// 任一环节失败只降级告警，不影响已成交的开仓
func (e *Executor) protectWithTPSL(symbol, direction, positionSide string, entryPrice float64, cfg *config.CoinConfig, result *ExecutionResult) *TPSLLevels {
	if entryPrice <= 0 {
		result.Degraded = true
		result.Message = appendWarn(result.Message, "无法确定开仓均价，跳过保护单")
		log.Printf("🚨 %s 无法确定开仓均价，持仓无保护!", symbol)
		return nil
	}

	klines, err := e.exchange.GetKlines(symbol, "1h", cfg.ATRPeriod+50)
	if err != nil {
		result.Degraded = true
		result.Message = appendWarn(result.Message, fmt.Sprintf("获取K线失败: %v", err))
		log.Printf("🚨 %s 获取K线失败，持仓无保护: %v", symbol, err)
		return nil
	}
	atr := market.CalculateATR(klines, cfg.ATRPeriod)
	if atr <= 0 {
		result.Degraded = true
		result.Message = appendWarn(result.Message, "ATR无效，跳过保护单")
		log.Printf("🚨 %s ATR无效（数据不足或异常），持仓无保护!", symbol)
		return nil
	}

	levels, err := CalculateTPSL(symbol, direction, entryPrice, atr, cfg.ATRTPMultiplier, cfg.ATRSLMultiplier)
	if err != nil {
		result.Degraded = true
		result.Message = appendWarn(result.Message, fmt.Sprintf("TP/SL计算失败: %v", err))
		log.Printf("🚨 %s TP/SL计算失败，持仓无保护: %v", symbol, err)
		return nil
	}

	closeSide := "SELL"
	if direction == "short" {
		closeSide = "BUY"
	}

	// 止盈和止损各自独立重试，一边失败不拖累另一边
	tpErr := e.retry.Do(symbol+" 止盈单", func() error {
		order, err := e.exchange.PlaceOrder(&OrderRequest{
			Symbol:        symbol,
			Side:          closeSide,
			PositionSide:  positionSide,
			Type:          "TAKE_PROFIT_MARKET",
			StopPrice:     levels.TakeProfit,
			ClosePosition: true,
			WorkingType:   "MARK_PRICE",
			ClientOrderID: newClientOrderID(),
		})
		if err != nil {
			return err
		}
		result.TPOrderID = order.OrderID
		return nil
	})

	slErr := e.retry.Do(symbol+" 止损单", func() error {
		order, err := e.exchange.PlaceOrder(&OrderRequest{
			Symbol:        symbol,
			Side:          closeSide,
			PositionSide:  positionSide,
			Type:          "STOP_MARKET",
			StopPrice:     levels.StopLoss,
			ClosePosition: true,
			WorkingType:   "MARK_PRICE",
			ClientOrderID: newClientOrderID(),
		})
		if err != nil {
			return err
		}
		result.SLOrderID = order.OrderID
		return nil
	})

	if tpErr != nil {
		result.Degraded = true
		result.Message = appendWarn(result.Message, fmt.Sprintf("止盈单失败: %v", tpErr))
		log.Printf("🚨 %s 止盈单最终失败: %v", symbol, tpErr)
	}
	if slErr != nil {
		result.Degraded = true
		result.Message = appendWarn(result.Message, fmt.Sprintf("止损单失败: %v", slErr))
		log.Printf("🚨 %s 止损单最终失败，持仓止损缺失!", symbol)
	}
	if tpErr == nil && slErr == nil {
		log.Printf("🛡️ %s 保护单就位: TP=%v SL=%v", symbol, levels.TakeProfit, levels.StopLoss)
	}
	return levels
}

// closePositions 平掉指定持仓列表
func (e *Executor) closePositions(symbol string, positions []Position) *ExecutionResult {
	if len(positions) == 0 {
		return &ExecutionResult{Filtered: true, Message: fmt.Sprintf("%s 无持仓可平", symbol)}
	}
	for i := range positions {
		if err := e.closePosition(&positions[i]); err != nil {
			return &ExecutionResult{Message: fmt.Sprintf("平仓失败: %v", err)}
		}
	}
	log.Printf("✅ %s 已平 %d 个仓位", symbol, len(positions))
	return &ExecutionResult{Success: true, Message: fmt.Sprintf("已平 %d 个仓位", len(positions))}
}

// closePosition 市价平掉单个持仓
func (e *Executor) closePosition(p *Position) error {
	side := "SELL"
	if p.Direction() == "short" {
		side = "BUY"
	}
	positionSide := ""
	if p.PositionSide == "LONG" || p.PositionSide == "SHORT" {
		positionSide = p.PositionSide
	}

	order, err := e.exchange.PlaceOrder(&OrderRequest{
		Symbol:        p.Symbol,
		Side:          side,
		PositionSide:  positionSide,
		Type:          "MARKET",
		Quantity:      p.Size(),
		ClientOrderID: newClientOrderID(),
	})
	if err != nil {
		return err
	}
	log.Printf("✅ %s 平仓成功 #%d %s %v", p.Symbol, order.OrderID, side, p.Size())
	return nil
}

// PlaceTrailingStop 执行追踪止损信号
// 流程: 校验 → 市价开仓 → 等待成交确认 → 挂追踪止损
// 追踪止损重试耗尽后逐级兜底: 硬止损 → 止盈止损对 → 宣告无保护
func (e *Executor) PlaceTrailingStop(req *signal.TrailingStopRequest) *ExecutionResult {
	if err := ValidateCallbackRate(req.CallbackRate); err != nil {
		return &ExecutionResult{Message: err.Error()}
	}

	lock := e.symbolLock(req.Symbol)
	lock.Lock()
	defer lock.Unlock()

	log.Printf("📨 处理追踪止损信号: %s %s callback=%v%%", req.Symbol, req.Side, req.CallbackRate)

	direction := "long"
	if req.Side == "SELL" {
		direction = "short"
	}

	cfg := e.coins.Resolve(req.Symbol)
	if !e.settings.TradingEnabled() {
		return &ExecutionResult{Filtered: true, Message: "全局交易开关已关闭"}
	}
	if !cfg.EnableTrading {
		return &ExecutionResult{Filtered: true, Message: fmt.Sprintf("%s 交易已禁用", cfg.CoinType)}
	}

	positions, err := e.exchange.GetPositions()
	if err != nil {
		return &ExecutionResult{Message: fmt.Sprintf("查询持仓失败: %v", err)}
	}
	if reason := e.checkPositionLimit(req.Symbol, positions); reason != "" {
		return &ExecutionResult{Filtered: true, Message: reason}
	}

	vr := e.validator.Validate(req.Symbol, direction, "open", positions, e.settings.AutoPositionSwitch())
	if !vr.Allowed {
		log.Printf("🚫 信号被拒: %s", vr.Reason)
		return &ExecutionResult{Filtered: true, Message: vr.Reason}
	}
	if vr.ActionRequired != nil && vr.ActionRequired.Type == "close_opposite" {
		log.Printf("🔄 %s 自动换向: 先平 %d 个反向仓位", req.Symbol, len(vr.ActionRequired.PositionsToClose))
		for i := range vr.ActionRequired.PositionsToClose {
			if err := e.closePosition(&vr.ActionRequired.PositionsToClose[i]); err != nil {
				return &ExecutionResult{Message: fmt.Sprintf("平反向仓失败: %v", err)}
			}
		}
	}

	if err := e.exchange.SetLeverage(req.Symbol, cfg.Leverage); err != nil {
		log.Printf("⚠️ 设置杠杆失败（继续下单）: %v", err)
	}
	if err := e.exchange.SetMarginType(req.Symbol); err != nil {
		log.Printf("⚠️ 设置保证金模式失败（继续下单）: %v", err)
	}

	hedge, err := e.exchange.IsHedgeMode()
	if err != nil {
		return &ExecutionResult{Message: fmt.Sprintf("查询持仓模式失败: %v", err)}
	}

	price, err := e.exchange.GetMarketPrice(req.Symbol)
	if err != nil {
		return &ExecutionResult{Message: fmt.Sprintf("查询价格失败: %v", err)}
	}

	qty, err := e.resolveTrailingQuantity(req, cfg, price)
	if err != nil {
		return &ExecutionResult{Message: fmt.Sprintf("仓位计算失败: %v", err)}
	}

	positionSide := ""
	if hedge {
		if direction == "long" {
			positionSide = "LONG"
		} else {
			positionSide = "SHORT"
		}
	}

	entryOrder, err := e.exchange.PlaceOrder(&OrderRequest{
		Symbol:        req.Symbol,
		Side:          req.Side,
		PositionSide:  positionSide,
		Type:          "MARKET",
		Quantity:      qty,
		ClientOrderID: newClientOrderID(),
	})
	if err != nil {
		return &ExecutionResult{Message: fmt.Sprintf("开仓失败: %v", err)}
	}
	log.Printf("✅ %s 开仓成功 #%d %s %v @市价", req.Symbol, entryOrder.OrderID, req.Side, qty)

	result := &ExecutionResult{
		Success:  true,
		OrderID:  entryOrder.OrderID,
		Quantity: qty,
	}

	// 等待成交落地，确认持仓真实存在后再挂保护单
	e.sleep(settlementWait)
	livePosition := e.findPosition(req.Symbol, direction)
	if livePosition == nil {
		result.Degraded = true
		result.Message = appendWarn(result.Message, "未确认到持仓，跳过追踪止损")
		log.Printf("🚨 %s 开仓后未确认到持仓，持仓无保护!", req.Symbol)
		e.recordOrder(&config.OrderRecord{
			OrderID: entryOrder.OrderID, Symbol: req.Symbol, Side: req.Side,
			PositionSide: positionSide, Quantity: qty, Status: resultStatus(result),
		})
		return result
	}

	entryPrice := entryOrder.AvgPrice
	if entryPrice <= 0 {
		entryPrice = livePosition.EntryPrice
	}
	if entryPrice <= 0 {
		entryPrice = price
	}
	result.EntryPrice = entryPrice

	levels, err := CalculateTrailingLevels(req.Symbol, req.Side, entryPrice, req.ActivationPrice, req.StopLoss, req.TakeProfit)
	if err != nil {
		result.Degraded = true
		result.Message = appendWarn(result.Message, fmt.Sprintf("追踪价位计算失败: %v", err))
		log.Printf("🚨 %s 追踪价位计算失败，持仓无保护: %v", req.Symbol, err)
		return result
	}

	e.placeTrailingProtection(req, direction, positionSide, livePosition.Size(), levels, result)

	e.recordOrder(&config.OrderRecord{
		OrderID:        entryOrder.OrderID,
		Symbol:         req.Symbol,
		Side:           req.Side,
		PositionSide:   positionSide,
		Quantity:       qty,
		Price:          entryPrice,
		SLPrice:        levels.FallbackSL,
		TrailingStopID: result.TrailingStopID,
		Status:         resultStatus(result),
	})
	e.notifyTrailing(req, entryPrice, qty, result)

	return result
}

// placeTrailingProtection 追踪止损三级兜底
// 第一级: 追踪止损单（重试3次）
// 第二级: 兜底硬止损
// 第三级: 止盈止损对
// 全部失败: 标记无保护，开仓绝不自动回滚
func (e *Executor) placeTrailingProtection(req *signal.TrailingStopRequest, direction, positionSide string, size float64, levels *TrailingLevels, result *ExecutionResult) {
	closeSide := "SELL"
	if direction == "short" {
		closeSide = "BUY"
	}

	trailErr := e.retry.Do(req.Symbol+" 追踪止损单", func() error {
		order, err := e.exchange.PlaceOrder(&OrderRequest{
			Symbol:          req.Symbol,
			Side:            closeSide,
			PositionSide:    positionSide,
			Type:            "TRAILING_STOP_MARKET",
			Quantity:        size,
			CallbackRate:    req.CallbackRate,
			ActivationPrice: levels.ActivationPrice,
			WorkingType:     req.WorkingType,
			ClientOrderID:   newClientOrderID(),
		})
		if err != nil {
			return err
		}
		result.TrailingStopID = order.OrderID
		return nil
	})
	if trailErr == nil {
		log.Printf("🛡️ %s 追踪止损就位: 激活价=%v 回调=%v%%", req.Symbol, levels.ActivationPrice, req.CallbackRate)
		return
	}
	log.Printf("🚨 %s 追踪止损最终失败，降级为硬止损: %v", req.Symbol, trailErr)

	// 第二级: 兜底硬止损
	slOrder, slErr := e.exchange.PlaceOrder(&OrderRequest{
		Symbol:        req.Symbol,
		Side:          closeSide,
		PositionSide:  positionSide,
		Type:          "STOP_MARKET",
		StopPrice:     levels.FallbackSL,
		ClosePosition: true,
		WorkingType:   "MARK_PRICE",
		ClientOrderID: newClientOrderID(),
	})
	if slErr == nil {
		result.FallbackUsed = true
		result.Degraded = true
		result.SLOrderID = slOrder.OrderID
		result.Message = appendWarn(result.Message, fmt.Sprintf("追踪止损失败，已降级为硬止损 @%v", levels.FallbackSL))
		log.Printf("🛡️ %s 兜底止损就位 @%v", req.Symbol, levels.FallbackSL)
		return
	}
	log.Printf("🚨 %s 兜底止损也失败，尝试止盈止损对: %v", req.Symbol, slErr)

	// 第三级: 止盈止损对
	tpOrder, tpErr := e.exchange.PlaceOrder(&OrderRequest{
		Symbol:        req.Symbol,
		Side:          closeSide,
		PositionSide:  positionSide,
		Type:          "TAKE_PROFIT_MARKET",
		StopPrice:     levels.FallbackTP,
		ClosePosition: true,
		WorkingType:   "MARK_PRICE",
		ClientOrderID: newClientOrderID(),
	})
	slOrder2, slErr2 := e.exchange.PlaceOrder(&OrderRequest{
		Symbol:        req.Symbol,
		Side:          closeSide,
		PositionSide:  positionSide,
		Type:          "STOP_MARKET",
		StopPrice:     levels.FallbackSL,
		ClosePosition: true,
		WorkingType:   "MARK_PRICE",
		ClientOrderID: newClientOrderID(),
	})
	if tpErr == nil || slErr2 == nil {
		result.FallbackUsed = true
		result.Degraded = true
		if tpErr == nil {
			result.TPOrderID = tpOrder.OrderID
		}
		if slErr2 == nil {
			result.SLOrderID = slOrder2.OrderID
		}
		result.Message = appendWarn(result.Message, fmt.Sprintf("追踪止损失败，已降级为止盈止损对 TP=%v SL=%v", levels.FallbackTP, levels.FallbackSL))
		log.Printf("🛡️ %s 止盈止损对兜底就位", req.Symbol)
		return
	}

	// 全部失败: 持仓裸奔，只告警不平仓
	result.Success = false
	result.Degraded = true
	result.Message = appendWarn(result.Message, "🚨 所有保护单均失败，持仓无保护，请立即人工处理!")
	log.Printf("🚨🚨 %s 所有保护单均失败，持仓无保护!", req.Symbol)
	e.notify(fmt.Sprintf("🚨 紧急: %s 开仓成功但所有保护单失败，持仓无保护，请立即人工处理!", req.Symbol))
}

// resolveTrailingQuantity 解析追踪止损信号的仓位
// "10%" → 按百分比计算；具体数量 → 对齐步长；空 → 按币种配置
func (e *Executor) resolveTrailingQuantity(req *signal.TrailingStopRequest, cfg *config.CoinConfig, price float64) (float64, error) {
	q := strings.TrimSpace(req.Quantity)
	if q == "" {
		return e.calculateQuantity(req.Symbol, cfg.OrderSizePercentage, cfg.Leverage, price)
	}
	if strings.HasSuffix(q, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(q, "%")), 64)
		if err != nil || pct <= 0 {
			return 0, fmt.Errorf("无效quantity: %q", req.Quantity)
		}
		return e.calculateQuantity(req.Symbol, pct, cfg.Leverage, price)
	}
	qty, err := strconv.ParseFloat(q, 64)
	if err != nil || qty <= 0 {
		return 0, fmt.Errorf("无效quantity: %q", req.Quantity)
	}
	return e.snapQuantity(req.Symbol, qty)
}

// calculateQuantity 按余额百分比和杠杆计算下单数量
// qty = 可用余额 * pct% * 杠杆 / 价格，向下对齐到数量步长
func (e *Executor) calculateQuantity(symbol string, pct float64, leverage int, price float64) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("无效价格: %v", price)
	}

	asset := "USDT"
	if strings.Contains(symbol, "USDC") {
		asset = "USDC"
	}
	balance, err := e.exchange.GetBalance(asset)
	if err != nil {
		return 0, fmt.Errorf("查询余额失败: %w", err)
	}

	available := balance.Available
	if available <= 0 {
		if !e.useNominalBalanceWhenZero {
			return 0, fmt.Errorf("可用余额为0")
		}
		log.Printf("⚠️ 可用余额为0，使用名义余额 %v 计算仓位（测试模式）", nominalBalance)
		available = nominalBalance
	}

	raw := available * pct / 100 * float64(leverage) / price
	return e.snapQuantity(symbol, raw)
}

// snapQuantity 将数量向下对齐到交易对步长
// 对齐后为0或低于最小下单量直接报错，绝不向上凑量
func (e *Executor) snapQuantity(symbol string, qty float64) (float64, error) {
	filter, err := e.exchange.GetLotFilter(symbol)
	if err != nil {
		return 0, fmt.Errorf("查询数量精度失败: %w", err)
	}
	if filter.StepSize <= 0 {
		return 0, fmt.Errorf("%s 步长无效: %v", symbol, filter.StepSize)
	}

	step := decimal.NewFromFloat(filter.StepSize)
	snapped, _ := decimal.NewFromFloat(qty).Div(step).Floor().Mul(step).Float64()

	if snapped <= 0 {
		return 0, fmt.Errorf("数量 %v 对齐步长 %v 后为0", qty, filter.StepSize)
	}
	if snapped < filter.MinQty {
		return 0, fmt.Errorf("数量 %v 低于最小下单量 %v", snapped, filter.MinQty)
	}
	return snapped, nil
}

// resolveEntryPrice 确定开仓均价
// 优先用订单回执的成交均价，没有就等一会再查市价
func (e *Executor) resolveEntryPrice(symbol string, order *OrderResult, fallback float64) float64 {
	if order.AvgPrice > 0 {
		return order.AvgPrice
	}
	e.sleep(500 * time.Millisecond)
	price, err := e.exchange.GetMarketPrice(symbol)
	if err != nil {
		log.Printf("⚠️ 重查 %s 价格失败，用下单前价格代替: %v", symbol, err)
		return fallback
	}
	return price
}

func (e *Executor) findPosition(symbol, direction string) *Position {
	positions, err := e.exchange.GetPositions()
	if err != nil {
		log.Printf("⚠️ 确认持仓失败: %v", err)
		return nil
	}
	for i := range positions {
		p := &positions[i]
		if p.Symbol == symbol && p.Direction() == direction && p.Size() > 0 {
			return p
		}
	}
	return nil
}

func (e *Executor) recordOrder(rec *config.OrderRecord) {
	if e.history == nil {
		return
	}
	if err := e.history.RecordOrder(rec); err != nil {
		log.Printf("⚠️ 保存订单记录失败: %v", err)
	}
}

func (e *Executor) notify(message string) {
	if e.notifier != nil {
		e.notifier.Notify(message)
	}
}

func (e *Executor) notifyOpen(symbol, direction string, entry, qty float64, cfg *config.CoinConfig, levels *TPSLLevels, result *ExecutionResult) {
	emoji := "📈"
	if direction == "short" {
		emoji = "📉"
	}
	msg := fmt.Sprintf("%s 开仓 %s %s\n数量: %v\n开仓价: %v\n杠杆: %dx",
		emoji, symbol, strings.ToUpper(direction), qty, entry, cfg.Leverage)
	if levels != nil && entry > 0 {
		tpPct := (levels.TakeProfit - entry) / entry * 100
		slPct := (levels.StopLoss - entry) / entry * 100
		msg += fmt.Sprintf("\n止盈: %v (%+.2f%%)\n止损: %v (%+.2f%%)", levels.TakeProfit, tpPct, levels.StopLoss, slPct)
	}
	if result.Degraded {
		msg += "\n⚠️ 保护单不完整: " + result.Message
	}
	e.notify(msg)
}

func (e *Executor) notifyTrailing(req *signal.TrailingStopRequest, entry, qty float64, result *ExecutionResult) {
	msg := fmt.Sprintf("🎯 追踪止损开仓 %s %s\n数量: %v\n开仓价: %v\n回调幅度: %v%%",
		req.Symbol, req.Side, qty, entry, req.CallbackRate)
	if result.FallbackUsed {
		msg += "\n⚠️ 追踪止损失败，已启用兜底保护"
	}
	if result.Degraded && !result.FallbackUsed {
		msg += "\n🚨 " + result.Message
	}
	e.notify(msg)
}

// orderSide 信号方向+操作 → 币安下单参数
func orderSide(direction, action string) (side, positionSide string) {
	switch {
	case direction == "long" && action == "open":
		return "BUY", "LONG"
	case direction == "short" && action == "open":
		return "SELL", "SHORT"
	case direction == "long" && action == "close":
		return "SELL", "LONG"
	default:
		return "BUY", "SHORT"
	}
}

func newClientOrderID() string {
	return "tvhook_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

func appendWarn(existing, warn string) string {
	if existing == "" {
		return warn
	}
	return existing + "; " + warn
}

func levelsTP(levels *TPSLLevels) float64 {
	if levels == nil {
		return 0
	}
	return levels.TakeProfit
}

func levelsSL(levels *TPSLLevels) float64 {
	if levels == nil {
		return 0
	}
	return levels.StopLoss
}

func resultStatus(result *ExecutionResult) string {
	if result.Degraded {
		return "degraded"
	}
	return "protected"
}
