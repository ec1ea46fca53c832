package signal

import (
	"fmt"
	"strconv"
	"strings"
)

var knownQuotes = []string{"USDT", "USDC", "BUSD"}

// NormalizeSymbol 归一化交易对
// 大写、去掉 TradingView 永续后缀 .P，无已知计价货币时补 USDT
func NormalizeSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, ".P")
	for _, q := range knownQuotes {
		if strings.HasSuffix(s, q) {
			return s
		}
	}
	return s + "USDT"
}

// ParseStandard 解析标准信号 "SYMBOL/direction/action"
// signal 字段优先，其次 message 字段
func ParseStandard(p *WebhookPayload) (*Signal, error) {
	raw := strings.TrimSpace(p.Signal)
	if raw == "" {
		raw = strings.TrimSpace(p.Message)
	}
	if raw == "" {
		return nil, fmt.Errorf("信号为空: 缺少 signal/message 字段")
	}

	parts := strings.Split(raw, "/")
	if len(parts) != 3 {
		return nil, fmt.Errorf("信号格式错误: %q (期望 SYMBOL/direction/action)", raw)
	}

	symbol := NormalizeSymbol(parts[0])
	direction := strings.ToLower(strings.TrimSpace(parts[1]))
	action := strings.ToLower(strings.TrimSpace(parts[2]))

	if symbol == "USDT" {
		return nil, fmt.Errorf("信号格式错误: 交易对为空")
	}
	if direction != "long" && direction != "short" {
		return nil, fmt.Errorf("无效方向: %q (期望 long/short)", direction)
	}
	if action != "open" && action != "close" {
		return nil, fmt.Errorf("无效操作: %q (期望 open/close)", action)
	}

	return &Signal{Symbol: symbol, Direction: direction, Action: action}, nil
}

// ParseTrailing 解析追踪止损载荷
// callbackRate 仅做类型归一，取值范围 [0.1, 5.0] 由执行层校验
func ParseTrailing(p *WebhookPayload) (*TrailingStopRequest, error) {
	symbol := NormalizeSymbol(p.Symbol)
	if p.Symbol == "" {
		return nil, fmt.Errorf("追踪止损信号缺少 symbol")
	}

	side := strings.ToUpper(strings.TrimSpace(p.Side))
	if side != "BUY" && side != "SELL" {
		return nil, fmt.Errorf("无效side: %q (期望 BUY/SELL)", p.Side)
	}

	action := strings.ToLower(strings.TrimSpace(p.Action))
	if action == "" {
		action = "open"
	}
	if action != "open" {
		return nil, fmt.Errorf("追踪止损仅支持 open 操作, 收到 %q", p.Action)
	}

	rate, err := ParseCallbackRate(p.CallbackRate)
	if err != nil {
		return nil, err
	}

	req := &TrailingStopRequest{
		Symbol:       symbol,
		Side:         side,
		Action:       action,
		CallbackRate: rate,
		WorkingType:  strings.ToUpper(strings.TrimSpace(p.WorkingType)),
	}
	if req.WorkingType == "" {
		req.WorkingType = "MARK_PRICE"
	}
	if req.WorkingType != "MARK_PRICE" && req.WorkingType != "CONTRACT_PRICE" {
		return nil, fmt.Errorf("无效workingType: %q", p.WorkingType)
	}

	if req.ActivationPrice, err = parseOptionalPrice("activationPrice", p.ActivationPrice); err != nil {
		return nil, err
	}
	if req.StopLoss, err = parseOptionalPrice("stopLoss", p.StopLoss); err != nil {
		return nil, err
	}
	if req.TakeProfit, err = parseOptionalPrice("takeProfit", p.TakeProfit); err != nil {
		return nil, err
	}

	switch q := p.Quantity.(type) {
	case nil:
	case string:
		req.Quantity = strings.TrimSpace(q)
	case float64:
		req.Quantity = strconv.FormatFloat(q, 'f', -1, 64)
	default:
		return nil, fmt.Errorf("无效quantity类型: %T", p.Quantity)
	}

	return req, nil
}

// ParseCallbackRate 归一化回调幅度
// 接受数值、数值字符串、带 "%" 后缀字符串三种形式
func ParseCallbackRate(v any) (float64, error) {
	switch r := v.(type) {
	case nil:
		return 0, fmt.Errorf("追踪止损信号缺少 callbackRate")
	case float64:
		return r, nil
	case int:
		return float64(r), nil
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(r), "%"))
		if s == "" {
			return 0, fmt.Errorf("callbackRate 为空字符串")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("无效callbackRate: %q", r)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("无效callbackRate类型: %T", v)
	}
}

func parseOptionalPrice(name string, v any) (float64, error) {
	switch p := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return p, nil
	case int:
		return float64(p), nil
	case string:
		s := strings.TrimSpace(p)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("无效%s: %q", name, p)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("无效%s类型: %T", name, v)
	}
}
