package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusUpdated = "updated"
	StatusMoved   = "moved"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

const (
	ErrCodeInvalidName     = "invalid_name"
	ErrCodeBadTimestamp    = "bad_timestamp"
	ErrCodeUnsupportedType = "unsupported_type"
	ErrCodeMetaReadFailed  = "meta_read_failed"
	ErrCodeMetaWriteFailed = "meta_write_failed"
	ErrCodeMoveFailed      = "move_failed"
	ErrCodeIOFailed        = "io_failed"
	ErrCodeBadRoot         = "bad_root"
	ErrCodeToolMissing     = "tool_missing"
	ErrCodeConfigInvalid   = "config_invalid"
	ErrCodeBadWindow       = "bad_window"
)

// RunReport 是对外稳定输出（mediakit-report.json / stdout JSON）的结构。
type RunReport struct {
	Command string `json:"command"` // "repair" | "move"
	Root    string `json:"root"`
	Target  string `json:"target,omitempty"`
	DryRun  bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []FileResult  `json:"items"`
}

type ReportSummary struct {
	Updated int `json:"updated"`
	Moved   int `json:"moved"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// FileResult 是单个文件的处理结果（repair 与 move 共用）。
type FileResult struct {
	Src  string `json:"src"`
	Dst  string `json:"dst,omitempty"`
	Kind string `json:"kind,omitempty"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`

	// repair 专用：成功处理文件的修复前/后 mtime（本地时间，便于人工核对）。
	BeforeMTime string `json:"before_mtime,omitempty"`
	AfterMTime  string `json:"after_mtime,omitempty"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 Src 字典序（目录遍历顺序不保证，输出必须确定）
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		return r.Items[i].Src < r.Items[j].Src
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusUpdated:
			s.Updated++
		case StatusMoved:
			s.Moved++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
