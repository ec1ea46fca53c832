package config

import (
	"log"
	"strconv"
	"strings"
)

// 币种配置默认值（缺失或非法字段逐项回退）
const (
	DefaultOrderSizePercentage = 10.0
	DefaultLeverage            = 10
	DefaultATRPeriod           = 14
	DefaultATRTPMultiplier     = 2.5
	DefaultATRSLMultiplier     = 3.0
	DefaultEnableTrading       = true
)

// CoinConfig 单币种交易参数
type CoinConfig struct {
	OrderSizePercentage float64 // 下单占可用余额百分比
	Leverage            int     // 杠杆倍数
	ATRPeriod           int     // ATR 周期
	ATRTPMultiplier     float64 // 止盈 = entry ± ATR * 倍数
	ATRSLMultiplier     float64 // 止损 = entry ∓ ATR * 倍数
	EnableTrading       bool    // 该币种是否允许交易
	CoinType            string
	Symbol              string
	ProductType         string
}

// Source 配置快照来源（由 Database 实现）
type Source interface {
	Snapshot() map[string]string
}

// CoinResolver 按需从配置快照解析币种参数
// 每次调用都重新取快照，配置修改即时生效，无需重启。
type CoinResolver struct {
	source Source
}

func NewCoinResolver(source Source) *CoinResolver {
	return &CoinResolver{source: source}
}

// ExtractCoinType 从交易对推导配置键前缀
// USDC 计价对保留后缀（如 btcusdc），USDT 对去掉后缀（如 btc）
func ExtractCoinType(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.TrimSuffix(s, "PERP")
	if strings.HasSuffix(s, "USDC") {
		return strings.ToLower(s)
	}
	s = strings.TrimSuffix(s, "USDT")
	return strings.ToLower(s)
}

// ProductType 根据交易对推导合约产品类型
func ProductType(symbol string) string {
	if strings.Contains(strings.ToUpper(symbol), "USDC") {
		return "USDC-FUTURES"
	}
	return "USDT-FUTURES"
}

// Resolve 解析指定交易对的完整配置
// 任何字段缺失或解析失败都回退到默认值，该函数永不失败。
func (r *CoinResolver) Resolve(symbol string) *CoinConfig {
	coinType := ExtractCoinType(symbol)
	snap := r.source.Snapshot()

	cfg := &CoinConfig{
		OrderSizePercentage: parseFloatField(snap, coinType+"_order_size_percentage", DefaultOrderSizePercentage),
		Leverage:            parseIntField(snap, coinType+"_leverage", DefaultLeverage),
		ATRPeriod:           parseIntField(snap, coinType+"_atr_period", DefaultATRPeriod),
		ATRTPMultiplier:     parseFloatField(snap, coinType+"_atr_tp_multiplier", DefaultATRTPMultiplier),
		ATRSLMultiplier:     parseFloatField(snap, coinType+"_atr_sl_multiplier", DefaultATRSLMultiplier),
		EnableTrading:       parseBoolField(snap, coinType+"_enable_trading", DefaultEnableTrading),
		CoinType:            coinType,
		Symbol:              strings.ToUpper(symbol),
		ProductType:         ProductType(symbol),
	}
	return cfg
}

func parseFloatField(snap map[string]string, key string, def float64) float64 {
	v, ok := snap[key]
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		log.Printf("⚠️ 配置 %s=%q 非法，回退默认值 %v", key, v, def)
		return def
	}
	return f
}

func parseIntField(snap map[string]string, key string, def int) int {
	v, ok := snap[key]
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		// 容忍 "10.0" 这类写法
		if f, ferr := strconv.ParseFloat(strings.TrimSpace(v), 64); ferr == nil {
			return int(f)
		}
		log.Printf("⚠️ 配置 %s=%q 非法，回退默认值 %v", key, v, def)
		return def
	}
	return n
}

func parseBoolField(snap map[string]string, key string, def bool) bool {
	v, ok := snap[key]
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("⚠️ 配置 %s=%q 非法，回退默认值 %v", key, v, def)
		return def
	}
	return b
}

// SeedDefaults 为常用币种写入默认配置（仅写入缺失的键）
func (d *Database) SeedDefaults(coinTypes []string) error {
	globals := map[string]string{
		"enable_trading":       "false",
		"auto_position_switch": "true",
		"allow_long_only":      "false",
		"allow_short_only":     "false",
		"max_open_positions":   "5",
	}
	for k, v := range globals {
		if existing, _ := d.GetSystemConfig(k); existing == "" {
			if err := d.SetSystemConfig(k, v); err != nil {
				return err
			}
		}
	}

	for _, ct := range coinTypes {
		fields := map[string]string{
			ct + "_order_size_percentage": strconv.FormatFloat(DefaultOrderSizePercentage, 'f', -1, 64),
			ct + "_leverage":              strconv.Itoa(DefaultLeverage),
			ct + "_atr_period":            strconv.Itoa(DefaultATRPeriod),
			ct + "_atr_tp_multiplier":     strconv.FormatFloat(DefaultATRTPMultiplier, 'f', -1, 64),
			ct + "_atr_sl_multiplier":     strconv.FormatFloat(DefaultATRSLMultiplier, 'f', -1, 64),
			ct + "_enable_trading":        "true",
		}
		for k, v := range fields {
			if existing, _ := d.GetSystemConfig(k); existing == "" {
				if err := d.SetSystemConfig(k, v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
