package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/Zhima-Mochi/synology-scripts/internal/app"
	"github.com/Zhima-Mochi/synology-scripts/internal/config"
	"github.com/Zhima-Mochi/synology-scripts/internal/domain"
)

var _ app.Observer = (*progressUI)(nil)

var (
	okColor   = color.New(color.FgGreen).SprintFunc()
	skipColor = color.New(color.FgYellow).SprintFunc()
	failColor = color.New(color.FgRed).SprintFunc()
)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：流水线只发事件，CLI 决定如何展示
// - keepalive：长时间无文件完成时也会定期输出一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total int
	done  int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(command string, eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (只预演，不写入/不移动)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] mediakit %s (%s)\n", now.Format("15:04:05"), command, mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  root: %s\n", eff.Root)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	if eff.Target != "" {
		fmt.Fprintf(p.w, "  target: %s\n", eff.Target)
	}
	if eff.MoveTo != "" {
		fmt.Fprintf(p.w, "  move_to: %s\n", eff.MoveTo)
	}
	fmt.Fprintf(p.w, "  backend: %s\n", eff.Backend)
	fmt.Fprintf(p.w, "  collision: %s\n", eff.Collision)
	fmt.Fprintf(p.w, "  recursive: %s\n", onOff(eff.Recursive))
	if !eff.Window.IsZero() {
		fmt.Fprintf(p.w, "  window: %s\n", formatWindow(eff.Window))
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	p.mu.Unlock()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		p.total = intField(fields, "files")
		fmt.Fprintf(p.w, "扫描: files=%d (%s)\n\n", p.total, formatShortDuration(dur))
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnFileDone(idx, total int, res domain.FileResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total

	var status string
	switch res.Status {
	case domain.StatusUpdated, domain.StatusMoved:
		status = okColor("OK")
	case domain.StatusSkipped:
		status = skipColor("SKIP")
	default:
		status = failColor("FAIL")
	}

	switch res.Status {
	case domain.StatusFailed:
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s: %s (%s)\n",
			idx, total, res.Src, status, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	case domain.StatusSkipped:
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s (%s)\n",
			idx, total, res.Src, status, res.ErrorCode, formatShortDuration(dur),
		)
	case domain.StatusMoved:
		fmt.Fprintf(p.w, "[%d/%d] %s %s -> %s (%s)\n",
			idx, total, res.Src, status, res.Dst, formatShortDuration(dur),
		)
	default: // updated
		note := ""
		if res.Dst != "" {
			note = " -> " + res.Dst
		}
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s => %s%s (%s)\n",
			idx, total, res.Src, status, res.BeforeMTime, res.AfterMTime, note, formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

// stop 兜底关闭 keepalive（流水线提前返回时 OnFileDone 可能没走到最后一条）。
func (p *progressUI) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				// 已完成：安全退出（OnFileDone 会 close stopCh，但这里也做兜底）。
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}

				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d elapsed=%s\n",
						p.done, p.total, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-p.stopCh:
				return
			}
		}
	}()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatWindow(w domain.DateWindow) string {
	const layout = "2006-01-02 15:04:05"
	after, before := "-∞", "+∞"
	if !w.After.IsZero() {
		after = w.After.Format(layout)
	}
	if !w.Before.IsZero() {
		before = w.Before.Format(layout)
	}
	return fmt.Sprintf("(%s, %s)", after, before)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	default:
		return 0
	}
}
