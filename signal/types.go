package signal

import "strings"

// WebhookPayload TradingView webhook 原始载荷
// 标准信号只用 signal/message 字段；追踪止损信号用其余字段。
// TradingView 模板里数值字段常被写成字符串（甚至带 "%"），
// 因此这里统一用 any 接收，解析阶段再做类型归一。
type WebhookPayload struct {
	Signal  string `json:"signal"`
	Message string `json:"message"`

	Symbol          string `json:"symbol"`
	Side            string `json:"side"`
	Action          string `json:"action"`
	Type            string `json:"type"`
	TrailType       string `json:"trailType"`
	CallbackRate    any    `json:"callbackRate"`
	ActivationPrice any    `json:"activationPrice"`
	StopLoss        any    `json:"stopLoss"`
	TakeProfit      any    `json:"takeProfit"`
	WorkingType     string `json:"workingType"`
	Quantity        any    `json:"quantity"`
}

// IsTrailing 判断载荷是否为追踪止损信号
func (p *WebhookPayload) IsTrailing() bool {
	if strings.EqualFold(p.TrailType, "trailing_stop") {
		return true
	}
	return strings.EqualFold(p.Type, "TRAILING_STOP_MARKET")
}

// Signal 标准信号解析结果
type Signal struct {
	Symbol    string // 归一化后的交易对，如 BTCUSDT
	Direction string // long / short
	Action    string // open / close
}

// TrailingStopRequest 追踪止损请求解析结果
type TrailingStopRequest struct {
	Symbol          string
	Side            string // BUY / SELL
	Action          string // open
	CallbackRate    float64
	ActivationPrice float64 // 0 表示未指定，由执行层按 ±2% 自动计算
	StopLoss        float64 // 0 表示未指定
	TakeProfit      float64 // 0 表示未指定
	WorkingType     string  // 默认 MARK_PRICE
	Quantity        string  // 原始数量字段（"10%" 或具体数量），空则按币种配置
}
