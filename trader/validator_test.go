package trader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator(now *time.Time) *PositionValidator {
	v := NewPositionValidator()
	v.now = func() time.Time { return *now }
	return v
}

func TestValidateOpenNoConflict(t *testing.T) {
	now := time.Now()
	v := newTestValidator(&now)

	r := v.Validate("BTCUSDT", "long", "open", nil, true)
	assert.True(t, r.Allowed)
	assert.Nil(t, r.ActionRequired)
}

func TestValidateOpenSameDirectionRejected(t *testing.T) {
	now := time.Now()
	v := newTestValidator(&now)
	positions := []Position{{Symbol: "BTCUSDT", PositionSide: "LONG", Amount: 0.5}}

	r := v.Validate("BTCUSDT", "long", "open", positions, true)
	assert.False(t, r.Allowed)
	assert.Len(t, r.ExistingPositions, 1)
}

func TestValidateOpenOppositeWithAutoSwitch(t *testing.T) {
	now := time.Now()
	v := newTestValidator(&now)
	positions := []Position{{Symbol: "BTCUSDT", PositionSide: "SHORT", Amount: -0.5}}

	r := v.Validate("BTCUSDT", "long", "open", positions, true)
	require.True(t, r.Allowed)
	require.NotNil(t, r.ActionRequired)
	assert.Equal(t, "close_opposite", r.ActionRequired.Type)
	assert.Len(t, r.ActionRequired.PositionsToClose, 1)
}

func TestValidateOpenOppositeWithoutAutoSwitch(t *testing.T) {
	now := time.Now()
	v := newTestValidator(&now)
	positions := []Position{{Symbol: "BTCUSDT", PositionSide: "SHORT", Amount: -0.5}}

	r := v.Validate("BTCUSDT", "long", "open", positions, false)
	assert.False(t, r.Allowed)
	assert.Nil(t, r.ActionRequired)
}

func TestValidateOpenIgnoresOtherSymbols(t *testing.T) {
	now := time.Now()
	v := newTestValidator(&now)
	positions := []Position{{Symbol: "ETHUSDT", PositionSide: "LONG", Amount: 1}}

	r := v.Validate("BTCUSDT", "long", "open", positions, true)
	assert.True(t, r.Allowed)
}

func TestValidateCloseWithoutPosition(t *testing.T) {
	now := time.Now()
	v := newTestValidator(&now)

	r := v.Validate("BTCUSDT", "long", "close", nil, true)
	assert.False(t, r.Allowed)
}

func TestValidateCloseMatchingDirection(t *testing.T) {
	now := time.Now()
	v := newTestValidator(&now)
	positions := []Position{
		{Symbol: "BTCUSDT", PositionSide: "LONG", Amount: 0.5},
		{Symbol: "BTCUSDT", PositionSide: "SHORT", Amount: -0.3},
	}

	r := v.Validate("BTCUSDT", "long", "close", positions, true)
	require.True(t, r.Allowed)
	require.Len(t, r.ExistingPositions, 1)
	assert.Equal(t, "long", r.ExistingPositions[0].Direction())
}

func TestValidateCloseBothSideInfersFromSign(t *testing.T) {
	now := time.Now()
	v := newTestValidator(&now)
	positions := []Position{{Symbol: "BTCUSDT", PositionSide: "BOTH", Amount: -0.5}}

	r := v.Validate("BTCUSDT", "short", "close", positions, true)
	assert.True(t, r.Allowed)
}

func TestDuplicateSuppression(t *testing.T) {
	now := time.Now()
	v := newTestValidator(&now)

	r := v.Validate("BTCUSDT", "long", "open", nil, true)
	require.True(t, r.Allowed)

	// 冷却期内重复信号被拒
	now = now.Add(3 * time.Second)
	r = v.Validate("BTCUSDT", "long", "open", nil, true)
	assert.False(t, r.Allowed)

	// 不同key不受影响
	r = v.Validate("BTCUSDT", "short", "open", nil, true)
	assert.True(t, r.Allowed)

	// 冷却期过后放行
	now = now.Add(6 * time.Second)
	r = v.Validate("BTCUSDT", "long", "open", nil, true)
	assert.True(t, r.Allowed)
}

func TestRejectedSignalNotRecorded(t *testing.T) {
	now := time.Now()
	v := newTestValidator(&now)
	positions := []Position{{Symbol: "BTCUSDT", PositionSide: "LONG", Amount: 0.5}}

	// 被拒信号不写台账: 平掉仓位后立刻重发应当放行
	r := v.Validate("BTCUSDT", "long", "open", positions, true)
	require.False(t, r.Allowed)

	r = v.Validate("BTCUSDT", "long", "open", nil, true)
	assert.True(t, r.Allowed)
}

func TestLedgerGC(t *testing.T) {
	now := time.Now()
	v := newTestValidator(&now)

	require.True(t, v.Validate("BTCUSDT", "long", "open", nil, true).Allowed)
	require.True(t, v.Validate("ETHUSDT", "long", "open", nil, true).Allowed)

	now = now.Add(61 * time.Second)
	// 过期条目在下次校验时被清掉
	assert.True(t, v.Validate("BTCUSDT", "long", "open", nil, true).Allowed)

	v.mu.Lock()
	defer v.mu.Unlock()
	assert.NotContains(t, v.recentOrders, "ETHUSDT_long_open")
}

func TestValidateInvalidInputs(t *testing.T) {
	now := time.Now()
	v := newTestValidator(&now)

	assert.False(t, v.Validate("BTCUSDT", "up", "open", nil, true).Allowed)
	assert.False(t, v.Validate("BTCUSDT", "long", "hold", nil, true).Allowed)
}
