package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type mapSource map[string]string

func (m mapSource) Snapshot() map[string]string { return m }

func TestExtractCoinType(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"BTCUSDT", "btc"},
		{"ethusdt", "eth"},
		{"SOLUSDTPERP", "sol"},
		{"BTCUSDC", "btcusdc"},
		{"ETHUSDCPERP", "ethusdc"},
		{"DOGE", "doge"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractCoinType(tt.symbol), "symbol=%q", tt.symbol)
	}
}

func TestProductType(t *testing.T) {
	assert.Equal(t, "USDT-FUTURES", ProductType("BTCUSDT"))
	assert.Equal(t, "USDC-FUTURES", ProductType("BTCUSDC"))
}

func TestResolveDefaults(t *testing.T) {
	r := NewCoinResolver(mapSource{})
	cfg := r.Resolve("BTCUSDT")

	assert.Equal(t, 10.0, cfg.OrderSizePercentage)
	assert.Equal(t, 10, cfg.Leverage)
	assert.Equal(t, 14, cfg.ATRPeriod)
	assert.Equal(t, 2.5, cfg.ATRTPMultiplier)
	assert.Equal(t, 3.0, cfg.ATRSLMultiplier)
	assert.True(t, cfg.EnableTrading)
	assert.Equal(t, "btc", cfg.CoinType)
	assert.Equal(t, "BTCUSDT", cfg.Symbol)
	assert.Equal(t, "USDT-FUTURES", cfg.ProductType)
}

func TestResolveConfiguredValues(t *testing.T) {
	r := NewCoinResolver(mapSource{
		"eth_order_size_percentage": "25",
		"eth_leverage":              "20",
		"eth_atr_period":            "7",
		"eth_atr_tp_multiplier":     "1.5",
		"eth_atr_sl_multiplier":     "2",
		"eth_enable_trading":        "false",
	})
	cfg := r.Resolve("ETHUSDT")

	assert.Equal(t, 25.0, cfg.OrderSizePercentage)
	assert.Equal(t, 20, cfg.Leverage)
	assert.Equal(t, 7, cfg.ATRPeriod)
	assert.Equal(t, 1.5, cfg.ATRTPMultiplier)
	assert.Equal(t, 2.0, cfg.ATRSLMultiplier)
	assert.False(t, cfg.EnableTrading)
}

func TestResolveMalformedFieldsFallBackIndividually(t *testing.T) {
	r := NewCoinResolver(mapSource{
		"btc_leverage":              "abc",  // 非法 → 默认
		"btc_atr_period":            "21.0", // 浮点写法 → 取整
		"btc_order_size_percentage": "15",   // 合法 → 保留
		"btc_enable_trading":        "yes?", // 非法 → 默认
	})
	cfg := r.Resolve("BTCUSDT")

	assert.Equal(t, 10, cfg.Leverage)
	assert.Equal(t, 21, cfg.ATRPeriod)
	assert.Equal(t, 15.0, cfg.OrderSizePercentage)
	assert.True(t, cfg.EnableTrading)
}
