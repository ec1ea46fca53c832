package trader

import (
	"fmt"
	"log"

	"github.com/shopspring/decimal"
)

// 各交易对的价格步长，未收录的交易对使用 0.01
var priceStepTable = map[string]float64{
	"BTCUSDT":  0.1,
	"ETHUSDT":  0.01,
	"BNBUSDT":  0.01,
	"SOLUSDT":  0.001,
	"XRPUSDT":  0.0001,
	"ADAUSDT":  0.0001,
	"DOGEUSDT": 0.00001,
	"LTCUSDT":  0.01,
	"AVAXUSDT": 0.001,
	"LINKUSDT": 0.001,
	"DOTUSDT":  0.001,
	"SUIUSDT":  0.0001,
	"BTCUSDC":  0.1,
	"ETHUSDC":  0.01,
}

const defaultPriceStep = 0.01

// 追踪止损默认档位（相对开仓价的百分比）
const (
	trailingActivationPct = 0.02 // 激活价: 盈利方向 2%
	trailingFallbackSLPct = 0.03 // 兜底止损: 亏损方向 3%
	trailingFallbackTPPct = 0.05 // 兜底止盈: 盈利方向 5%
)

// TPSLLevels 止盈止损价位
type TPSLLevels struct {
	TakeProfit float64
	StopLoss   float64
}

// PriceStep 查询交易对的价格步长
func PriceStep(symbol string) float64 {
	if step, ok := priceStepTable[symbol]; ok {
		return step
	}
	return defaultPriceStep
}

// RoundToPriceStep 将价格对齐到交易对的价格步长
// 用 decimal 避免浮点累积误差导致交易所拒单
func RoundToPriceStep(symbol string, price float64) float64 {
	step := decimal.NewFromFloat(PriceStep(symbol))
	p := decimal.NewFromFloat(price)
	snapped := p.Div(step).Round(0).Mul(step)
	f, _ := snapped.Float64()
	return f
}

// CalculateTPSL 按ATR计算止盈止损价
// 多头: tp = entry + atr*tpM, sl = entry - atr*slM；空头镜像
// 计算结果必须通过方向校验，否则返回错误（宁可不挂保护单也不挂错方向）
func CalculateTPSL(symbol, direction string, entry, atr, tpMult, slMult float64) (*TPSLLevels, error) {
	if entry <= 0 {
		return nil, fmt.Errorf("无效开仓价: %v", entry)
	}
	if atr <= 0 {
		return nil, fmt.Errorf("无效ATR: %v", atr)
	}

	var tp, sl float64
	switch direction {
	case "long":
		tp = entry + atr*tpMult
		sl = entry - atr*slMult
	case "short":
		tp = entry - atr*tpMult
		sl = entry + atr*slMult
	default:
		return nil, fmt.Errorf("无效方向: %s", direction)
	}

	levels := &TPSLLevels{
		TakeProfit: RoundToPriceStep(symbol, tp),
		StopLoss:   RoundToPriceStep(symbol, sl),
	}
	if err := ValidateTPSL(direction, entry, levels); err != nil {
		return nil, err
	}
	return levels, nil
}

// ValidateTPSL 校验止盈止损方向
// 多头: tp > entry 且 0 < sl < entry；空头镜像
func ValidateTPSL(direction string, entry float64, levels *TPSLLevels) error {
	if levels.TakeProfit <= 0 || levels.StopLoss <= 0 {
		return fmt.Errorf("止盈止损必须为正: tp=%v sl=%v", levels.TakeProfit, levels.StopLoss)
	}
	switch direction {
	case "long":
		if levels.TakeProfit <= entry {
			return fmt.Errorf("多头止盈 %v 必须高于开仓价 %v", levels.TakeProfit, entry)
		}
		if levels.StopLoss >= entry {
			return fmt.Errorf("多头止损 %v 必须低于开仓价 %v", levels.StopLoss, entry)
		}
	case "short":
		if levels.TakeProfit >= entry {
			return fmt.Errorf("空头止盈 %v 必须低于开仓价 %v", levels.TakeProfit, entry)
		}
		if levels.StopLoss <= entry {
			return fmt.Errorf("空头止损 %v 必须高于开仓价 %v", levels.StopLoss, entry)
		}
	default:
		return fmt.Errorf("无效方向: %s", direction)
	}
	return nil
}

// TrailingLevels 追踪止损的价位组
type TrailingLevels struct {
	ActivationPrice float64 // 追踪单激活价
	FallbackSL      float64 // 追踪失败时的兜底止损
	FallbackTP      float64 // 最后兜底的止盈
}

// CalculateTrailingLevels 计算追踪止损各档价位
// side: BUY(做多) / SELL(做空)
// 信号里带了价位就用信号的，缺的按默认百分比补齐；
// 方向不对的价位直接按百分比重算并告警，不让坏价位流到交易所。
func CalculateTrailingLevels(symbol, side string, entry float64, signalActivation, signalSL, signalTP float64) (*TrailingLevels, error) {
	if entry <= 0 {
		return nil, fmt.Errorf("无效开仓价: %v", entry)
	}
	if side != "BUY" && side != "SELL" {
		return nil, fmt.Errorf("无效side: %s", side)
	}

	long := side == "BUY"

	defaultActivation := entry * (1 + trailingActivationPct)
	defaultSL := entry * (1 - trailingFallbackSLPct)
	defaultTP := entry * (1 + trailingFallbackTPPct)
	if !long {
		defaultActivation = entry * (1 - trailingActivationPct)
		defaultSL = entry * (1 + trailingFallbackSLPct)
		defaultTP = entry * (1 - trailingFallbackTPPct)
	}

	activation := signalActivation
	if activation <= 0 {
		activation = defaultActivation
	}
	sl := signalSL
	if sl <= 0 {
		sl = defaultSL
	}
	tp := signalTP
	if tp <= 0 {
		tp = defaultTP
	}

	// 方向自纠: 激活价必须在盈利侧，止损在亏损侧，止盈在盈利侧
	if long {
		if activation <= entry {
			log.Printf("⚠️ %s 激活价 %v 不高于开仓价 %v，按+%.0f%%重算", symbol, activation, entry, trailingActivationPct*100)
			activation = defaultActivation
		}
		if sl >= entry {
			log.Printf("⚠️ %s 止损价 %v 不低于开仓价 %v，按-%.0f%%重算", symbol, sl, entry, trailingFallbackSLPct*100)
			sl = defaultSL
		}
		if tp <= entry {
			log.Printf("⚠️ %s 止盈价 %v 不高于开仓价 %v，按+%.0f%%重算", symbol, tp, entry, trailingFallbackTPPct*100)
			tp = defaultTP
		}
	} else {
		if activation >= entry {
			log.Printf("⚠️ %s 激活价 %v 不低于开仓价 %v，按-%.0f%%重算", symbol, activation, entry, trailingActivationPct*100)
			activation = defaultActivation
		}
		if sl <= entry {
			log.Printf("⚠️ %s 止损价 %v 不高于开仓价 %v，按+%.0f%%重算", symbol, sl, entry, trailingFallbackSLPct*100)
			sl = defaultSL
		}
		if tp >= entry {
			log.Printf("⚠️ %s 止盈价 %v 不低于开仓价 %v，按-%.0f%%重算", symbol, tp, entry, trailingFallbackTPPct*100)
			tp = defaultTP
		}
	}

	return &TrailingLevels{
		ActivationPrice: RoundToPriceStep(symbol, activation),
		FallbackSL:      RoundToPriceStep(symbol, sl),
		FallbackTP:      RoundToPriceStep(symbol, tp),
	}, nil
}

// ValidateCallbackRate 校验追踪止损回调幅度
// 币安允许范围 [0.1%, 5%]
func ValidateCallbackRate(rate float64) error {
	if rate < 0.1 || rate > 5.0 {
		return fmt.Errorf("callbackRate %v 超出范围 [0.1, 5.0]", rate)
	}
	return nil
}
