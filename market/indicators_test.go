package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func constantKlines(n int) []Kline {
	data := make([]Kline, n)
	for i := range data {
		data[i] = Kline{
			OpenTime: int64(i),
			Open:     105,
			High:     110,
			Low:      100,
			Close:    105,
		}
	}
	return data
}

func TestTrueRange(t *testing.T) {
	k := Kline{High: 110, Low: 100, Close: 105}

	// 跳空向上: |high - prevClose| 最大
	assert.InDelta(t, 20.0, TrueRange(k, 90), 1e-9)
	// 跳空向下: |low - prevClose| 最大
	assert.InDelta(t, 20.0, TrueRange(k, 120), 1e-9)
	// 无跳空: high - low 最大
	assert.InDelta(t, 10.0, TrueRange(k, 105), 1e-9)
}

func TestCalculateATRConstantRange(t *testing.T) {
	// 每根K线TR都是10，Wilder递推收敛到10
	atr := CalculateATR(constantKlines(30), 14)
	assert.InDelta(t, 10.0, atr, 1e-9)
}

func TestCalculateATRInsufficientData(t *testing.T) {
	// 需要 period+10 根，23根不够
	assert.Equal(t, 0.0, CalculateATR(constantKlines(23), 14))
	assert.Equal(t, 0.0, CalculateATR(nil, 14))
}

func TestCalculateATRInvalidPeriodFallsBack(t *testing.T) {
	// 非法周期回退到14，30根数据足够
	assert.InDelta(t, 10.0, CalculateATR(constantKlines(30), 0), 1e-9)
	assert.InDelta(t, 10.0, CalculateATR(constantKlines(30), 999), 1e-9)
	// 回退到14后23根不够
	assert.Equal(t, 0.0, CalculateATR(constantKlines(23), -5))
}

func TestCalculateATRFlatMarket(t *testing.T) {
	// 完全无波动时 ATR 为 0，调用方视为无信号
	data := make([]Kline, 30)
	for i := range data {
		data[i] = Kline{High: 100, Low: 100, Close: 100}
	}
	assert.Equal(t, 0.0, CalculateATR(data, 14))
}

func TestCalculateATRWilderRecurrence(t *testing.T) {
	// 手算对照: period=2, 数据12根
	// 前11根TR=10，最后一根 high=120 low=100 prevClose=105 → TR=20
	data := constantKlines(12)
	data[11] = Kline{Open: 105, High: 120, Low: 100, Close: 110}

	// 递推: atr从10开始，最后一步 atr = 10 + 0.5*(20-10) = 15
	atr := CalculateATR(data, 2)
	assert.InDelta(t, 15.0, atr, 1e-9)
}
