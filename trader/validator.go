package trader

import (
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	duplicateCooldown  = 5 * time.Second  // 相同信号冷却期
	duplicateRetention = 60 * time.Second // 去重台账保留时长
)

// RequiredAction 批准信号前需要执行的前置动作
type RequiredAction struct {
	Type             string // close_opposite
	PositionsToClose []Position
}

// ValidationResult 信号校验结果
type ValidationResult struct {
	Allowed           bool
	Reason            string
	ActionRequired    *RequiredAction
	ExistingPositions []Position
}

// PositionValidator 持仓校验器
// 职责: 重复信号抑制 + 开/平仓与现有持仓的冲突裁决。
// 去重台账只在内存中，进程重启即清空。
type PositionValidator struct {
	mu           sync.Mutex
	recentOrders map[string]time.Time

	now func() time.Time // 测试注入点
}

// NewPositionValidator 创建持仓校验器
func NewPositionValidator() *PositionValidator {
	return &PositionValidator{
		recentOrders: make(map[string]time.Time),
		now:          time.Now,
	}
}

// Validate 校验交易信号
// positions: 当前全部持仓（调用方刚从交易所拉取）
// autoSwitch: 开仓遇到反向持仓时，是否允许先平反向仓再开仓
//
// 拒绝路径不会写入去重台账，被拒的信号立刻重发仍会走完整校验。
// 内部异常一律判拒（fail closed）。
func (v *PositionValidator) Validate(symbol, direction, action string, positions []Position, autoSwitch bool) (result *ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ 信号校验异常: %v", r)
			result = &ValidationResult{Allowed: false, Reason: fmt.Sprintf("校验内部异常: %v", r)}
		}
	}()

	if direction != "long" && direction != "short" {
		return &ValidationResult{Allowed: false, Reason: fmt.Sprintf("无效方向: %s", direction)}
	}
	if action != "open" && action != "close" {
		return &ValidationResult{Allowed: false, Reason: fmt.Sprintf("无效操作: %s", action)}
	}

	if v.isDuplicate(symbol, direction, action) {
		return &ValidationResult{
			Allowed: false,
			Reason:  fmt.Sprintf("重复信号: %s %s %s 在%s内已处理过", symbol, direction, action, duplicateCooldown),
		}
	}

	// 只关心该交易对的持仓
	var same, opposite []Position
	for _, p := range positions {
		if p.Symbol != symbol {
			continue
		}
		if p.Direction() == direction {
			same = append(same, p)
		} else {
			opposite = append(opposite, p)
		}
	}

	switch action {
	case "open":
		result = v.validateOpen(symbol, direction, same, opposite, autoSwitch)
	case "close":
		result = v.validateClose(symbol, direction, same)
	}

	// 仅批准的信号记入台账
	if result.Allowed {
		v.record(symbol, direction, action)
	}
	return result
}

func (v *PositionValidator) validateOpen(symbol, direction string, same, opposite []Position, autoSwitch bool) *ValidationResult {
	if len(same) > 0 {
		return &ValidationResult{
			Allowed:           false,
			Reason:            fmt.Sprintf("已持有 %s %s 仓位，拒绝加仓", symbol, direction),
			ExistingPositions: same,
		}
	}
	if len(opposite) > 0 {
		if !autoSwitch {
			return &ValidationResult{
				Allowed:           false,
				Reason:            fmt.Sprintf("持有 %s 反向仓位且自动换向已关闭", symbol),
				ExistingPositions: opposite,
			}
		}
		return &ValidationResult{
			Allowed: true,
			Reason:  fmt.Sprintf("持有 %s 反向仓位，先平仓再开 %s", symbol, direction),
			ActionRequired: &RequiredAction{
				Type:             "close_opposite",
				PositionsToClose: opposite,
			},
			ExistingPositions: opposite,
		}
	}
	return &ValidationResult{Allowed: true, Reason: "无持仓冲突"}
}

func (v *PositionValidator) validateClose(symbol, direction string, same []Position) *ValidationResult {
	if len(same) == 0 {
		return &ValidationResult{
			Allowed: false,
			Reason:  fmt.Sprintf("无 %s %s 持仓可平", symbol, direction),
		}
	}
	return &ValidationResult{
		Allowed:           true,
		Reason:            fmt.Sprintf("平掉 %s %s 持仓", symbol, direction),
		ExistingPositions: same,
	}
}

func (v *PositionValidator) isDuplicate(symbol, direction, action string) bool {
	key := symbol + "_" + direction + "_" + action
	now := v.now()

	v.mu.Lock()
	defer v.mu.Unlock()

	// 顺手清理过期条目
	for k, t := range v.recentOrders {
		if now.Sub(t) > duplicateRetention {
			delete(v.recentOrders, k)
		}
	}

	if t, ok := v.recentOrders[key]; ok && now.Sub(t) < duplicateCooldown {
		return true
	}
	return false
}

func (v *PositionValidator) record(symbol, direction, action string) {
	key := symbol + "_" + direction + "_" + action
	v.mu.Lock()
	v.recentOrders[key] = v.now()
	v.mu.Unlock()
}
