package trader

import (
	"log"
	"sync"
	"time"
)

// 需要随持仓清理的保护单类型
var protectiveOrderTypes = map[string]bool{
	"TRAILING_STOP_MARKET": true,
	"STOP_MARKET":          true,
	"TAKE_PROFIT_MARKET":   true,
}

// Monitor 持仓对账清理器
// 每5秒对一次账: 持仓已不存在的保护单（止盈/止损/追踪止损）
// 是孤儿单，留着会在下次开仓时误触发，必须撤掉。
// 撤单失败只记日志，下一轮会重试。
type Monitor struct {
	exchange Exchange
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor 创建对账清理器
func NewMonitor(exchange Exchange) *Monitor {
	return &Monitor{
		exchange: exchange,
		interval: 5 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start 启动后台清理循环
func (m *Monitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		log.Printf("🧹 孤儿保护单清理器已启动 (间隔 %s)", m.interval)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				log.Printf("🧹 孤儿保护单清理器已停止")
				return
			case <-ticker.C:
				m.sweepOnce()
			}
		}
	}()
}

// Stop 停止清理循环并等待退出
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// sweepOnce 单轮对账
func (m *Monitor) sweepOnce() {
	positions, err := m.exchange.GetPositions()
	if err != nil {
		log.Printf("⚠️ 对账查询持仓失败: %v", err)
		return
	}
	orders, err := m.exchange.GetOpenOrders("")
	if err != nil {
		log.Printf("⚠️ 对账查询挂单失败: %v", err)
		return
	}

	// 存活持仓的 {symbol, 方向} 集合
	// 单向模式(BOTH)按持仓量符号推断方向
	live := make(map[string]bool)
	for i := range positions {
		p := &positions[i]
		if p.Size() == 0 {
			continue
		}
		live[p.Symbol+"_"+positionSideOf(p)] = true
		// BOTH 持仓同时覆盖单向模式下挂出的 BOTH 保护单
		if p.PositionSide == "BOTH" {
			live[p.Symbol+"_BOTH"] = true
		}
	}

	for i := range orders {
		o := &orders[i]
		if !protectiveOrderTypes[o.Type] {
			continue
		}
		key := o.Symbol + "_" + o.PositionSide
		if o.PositionSide == "BOTH" || o.PositionSide == "" {
			// 单向模式保护单: 该交易对任一方向有持仓即保留
			if live[o.Symbol+"_LONG"] || live[o.Symbol+"_SHORT"] || live[o.Symbol+"_BOTH"] {
				continue
			}
		} else if live[key] {
			continue
		}

		log.Printf("🧹 撤销孤儿保护单: %s %s #%d", o.Symbol, o.Type, o.OrderID)
		if err := m.exchange.CancelOrder(o.Symbol, o.OrderID); err != nil {
			log.Printf("⚠️ 撤销孤儿单失败（下轮重试）: %v", err)
		}
	}
}

// positionSideOf 持仓的方向键，BOTH 按符号推断
func positionSideOf(p *Position) string {
	if p.PositionSide == "LONG" || p.PositionSide == "SHORT" {
		return p.PositionSide
	}
	if p.Amount < 0 {
		return "SHORT"
	}
	return "LONG"
}
