// Package app 承载两条流水线共享的编排约定。
package app

import (
	"time"

	"github.com/Zhima-Mochi/synology-scripts/internal/config"
	"github.com/Zhima-Mochi/synology-scripts/internal/domain"
)

// Observer 用于把“运行进度/阶段/单文件结果”从核心执行流程中解耦出来。
//
// 约束：
// - repair/mover 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：keepalive ticker 与主循环可能同时触发。
type Observer interface {
	// OnStart 在 Run 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(command string, eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnFileDone 在单个文件处理完成时调用（用于每条结果的一行输出）。
	// 长时间无文件完成时的 keepalive 输出由实现方自行驱动。
	OnFileDone(idx, total int, res domain.FileResult, dur time.Duration)
}
