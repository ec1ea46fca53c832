package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BTCUSDT", "BTCUSDT"},
		{"btcusdt", "BTCUSDT"},
		{"BTCUSDT.P", "BTCUSDT"},
		{"ETH", "ETHUSDT"},
		{"  sol  ", "SOLUSDT"},
		{"BTCUSDC", "BTCUSDC"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeSymbol(tt.in), "input=%q", tt.in)
	}
}

func TestParseStandard(t *testing.T) {
	sig, err := ParseStandard(&WebhookPayload{Signal: "BTCUSDT/long/open"})
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", sig.Symbol)
	assert.Equal(t, "long", sig.Direction)
	assert.Equal(t, "open", sig.Action)
}

func TestParseStandardMessageFallback(t *testing.T) {
	sig, err := ParseStandard(&WebhookPayload{Message: "eth.p/short/close"})
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", sig.Symbol)
	assert.Equal(t, "short", sig.Direction)
	assert.Equal(t, "close", sig.Action)
}

func TestParseStandardErrors(t *testing.T) {
	cases := []*WebhookPayload{
		{},                                   // 空载荷
		{Signal: "BTCUSDT/long"},             // 段数不够
		{Signal: "BTCUSDT/long/open/extra"},  // 段数过多
		{Signal: "BTCUSDT/up/open"},          // 无效方向
		{Signal: "BTCUSDT/long/increase"},    // 无效操作
	}
	for _, p := range cases {
		_, err := ParseStandard(p)
		assert.Error(t, err, "payload=%+v", p)
	}
}

func TestIsTrailing(t *testing.T) {
	assert.True(t, (&WebhookPayload{TrailType: "trailing_stop"}).IsTrailing())
	assert.True(t, (&WebhookPayload{Type: "TRAILING_STOP_MARKET"}).IsTrailing())
	assert.False(t, (&WebhookPayload{Signal: "BTCUSDT/long/open"}).IsTrailing())
}

func TestParseCallbackRate(t *testing.T) {
	rate, err := ParseCallbackRate(1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.5, rate)

	rate, err = ParseCallbackRate("2.0")
	require.NoError(t, err)
	assert.Equal(t, 2.0, rate)

	rate, err = ParseCallbackRate("1.5%")
	require.NoError(t, err)
	assert.Equal(t, 1.5, rate)

	_, err = ParseCallbackRate(nil)
	assert.Error(t, err)
	_, err = ParseCallbackRate("abc")
	assert.Error(t, err)
	_, err = ParseCallbackRate([]string{"1"})
	assert.Error(t, err)
}

func TestParseTrailing(t *testing.T) {
	req, err := ParseTrailing(&WebhookPayload{
		Symbol:          "BTCUSDT.P",
		Side:            "buy",
		CallbackRate:    "1.5%",
		ActivationPrice: "51000",
		StopLoss:        48500.0,
		Quantity:        "10%",
	})
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", req.Symbol)
	assert.Equal(t, "BUY", req.Side)
	assert.Equal(t, "open", req.Action)
	assert.Equal(t, 1.5, req.CallbackRate)
	assert.Equal(t, 51000.0, req.ActivationPrice)
	assert.Equal(t, 48500.0, req.StopLoss)
	assert.Equal(t, 0.0, req.TakeProfit)
	assert.Equal(t, "MARK_PRICE", req.WorkingType)
	assert.Equal(t, "10%", req.Quantity)
}

func TestParseTrailingErrors(t *testing.T) {
	// 缺symbol
	_, err := ParseTrailing(&WebhookPayload{Side: "BUY", CallbackRate: 1.0})
	assert.Error(t, err)
	// 无效side
	_, err = ParseTrailing(&WebhookPayload{Symbol: "BTCUSDT", Side: "LONG", CallbackRate: 1.0})
	assert.Error(t, err)
	// 不支持的操作
	_, err = ParseTrailing(&WebhookPayload{Symbol: "BTCUSDT", Side: "BUY", Action: "close", CallbackRate: 1.0})
	assert.Error(t, err)
	// 缺callbackRate
	_, err = ParseTrailing(&WebhookPayload{Symbol: "BTCUSDT", Side: "BUY"})
	assert.Error(t, err)
	// 无效workingType
	_, err = ParseTrailing(&WebhookPayload{Symbol: "BTCUSDT", Side: "BUY", CallbackRate: 1.0, WorkingType: "LAST_PRICE"})
	assert.Error(t, err)
}
