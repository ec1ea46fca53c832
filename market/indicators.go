package market

import "math"

// Kline 单根K线（仅保留ATR计算所需字段）
type Kline struct {
	OpenTime int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
}

// TrueRange 计算单根K线的真实波幅
// prevClose: 上一根K线的收盘价
func TrueRange(k Kline, prevClose float64) float64 {
	tr := k.High - k.Low
	if v := math.Abs(k.High - prevClose); v > tr {
		tr = v
	}
	if v := math.Abs(k.Low - prevClose); v > tr {
		tr = v
	}
	return tr
}

// CalculateATR 计算平均真实波幅 (Wilder's ATR)
// data: K线序列 (按时间顺序，最新的在最后)
// period: 周期 (通常为 14，非法值回退到 14)
//
// 平滑方式为 Wilder 递推: atr = atr_prev + (tr - atr_prev) / period
// 等价于 alpha=1/period 的EMA (adjust=False)。
// 数据不足 (少于 period+10 根) 或结果非正/非有限时返回 0，
// 调用方将 0 视为"无信号"，跳过保护单挂单。
func CalculateATR(data []Kline, period int) float64 {
	if period < 1 || period > 100 {
		period = 14
	}
	if len(data) < period+10 {
		return 0
	}

	// 第一根K线没有前收盘价，TR序列从第二根开始
	alpha := 1.0 / float64(period)
	atr := TrueRange(data[1], data[0].Close)
	for i := 2; i < len(data); i++ {
		tr := TrueRange(data[i], data[i-1].Close)
		atr = atr + alpha*(tr-atr)
	}

	if math.IsNaN(atr) || math.IsInf(atr, 0) || atr <= 0 {
		return 0
	}
	return atr
}
