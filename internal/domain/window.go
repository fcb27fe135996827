package domain

import "time"

// DateWindow 是可选的 mtime 过滤窗口。零值表示该侧无界。
//
// 语义（与产品约定一致）：
// - After 已设置：仅 mtime 严格晚于 After 的文件入选
// - Before 已设置：仅 mtime 严格早于 Before 的文件入选
type DateWindow struct {
	After  time.Time
	Before time.Time
}

// Contains 判断 mtime 是否落在窗口内。
func (w DateWindow) Contains(mtime time.Time) bool {
	if !w.After.IsZero() && !mtime.After(w.After) {
		return false
	}
	if !w.Before.IsZero() && !mtime.Before(w.Before) {
		return false
	}
	return true
}

// IsZero 表示窗口两侧均无界（即不过滤）。
func (w DateWindow) IsZero() bool {
	return w.After.IsZero() && w.Before.IsZero()
}
