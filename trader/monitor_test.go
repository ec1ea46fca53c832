package trader

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSweepCancelsOrphanedProtectiveOrders(t *testing.T) {
	fx := newFakeExchange()
	fx.positions = []Position{{Symbol: "BTCUSDT", PositionSide: "LONG", Amount: 0.5}}
	fx.openOrders = []Order{
		{OrderID: 1, Symbol: "BTCUSDT", Type: "STOP_MARKET", PositionSide: "LONG"},          // 有持仓，保留
		{OrderID: 2, Symbol: "BTCUSDT", Type: "TAKE_PROFIT_MARKET", PositionSide: "SHORT"},  // 空头已平，孤儿
		{OrderID: 3, Symbol: "ETHUSDT", Type: "TRAILING_STOP_MARKET", PositionSide: "LONG"}, // 无持仓，孤儿
		{OrderID: 4, Symbol: "ETHUSDT", Type: "LIMIT", PositionSide: "LONG"},                // 非保护单，不动
	}

	m := NewMonitor(fx)
	m.sweepOnce()

	assert.ElementsMatch(t, []int64{2, 3}, fx.canceled)
}

func TestSweepBothSideInfersDirectionFromSign(t *testing.T) {
	fx := newFakeExchange()
	// 单向模式空头持仓: 持仓量为负
	fx.positions = []Position{{Symbol: "BTCUSDT", PositionSide: "BOTH", Amount: -0.5}}
	fx.openOrders = []Order{
		{OrderID: 1, Symbol: "BTCUSDT", Type: "STOP_MARKET", PositionSide: "SHORT"}, // 对应空头，保留
		{OrderID: 2, Symbol: "BTCUSDT", Type: "STOP_MARKET", PositionSide: "LONG"},  // 多头不存在，孤儿
		{OrderID: 3, Symbol: "BTCUSDT", Type: "STOP_MARKET", PositionSide: "BOTH"},  // 该交易对有持仓，保留
	}

	m := NewMonitor(fx)
	m.sweepOnce()

	assert.Equal(t, []int64{2}, fx.canceled)
}

func TestSweepCancelFailureIsNotFatal(t *testing.T) {
	fx := newFakeExchange()
	fx.openOrders = []Order{
		{OrderID: 1, Symbol: "BTCUSDT", Type: "STOP_MARKET", PositionSide: "LONG"},
	}
	fx.cancelErr = errors.New("network down")

	m := NewMonitor(fx)
	// 撤单失败只记日志，下一轮重试
	assert.NotPanics(t, func() { m.sweepOnce() })
	assert.Empty(t, fx.canceled)
}

func TestSweepNoPositionsNoOrders(t *testing.T) {
	fx := newFakeExchange()
	m := NewMonitor(fx)
	m.sweepOnce()
	assert.Empty(t, fx.canceled)
}
