// Package place 计算 move 的目标路径并处理命名冲突。
package place

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Zhima-Mochi/synology-scripts/internal/infra/fsx"
)

// 通过可替换的函数指针，让测试能固定 timestamp 后缀的“现在”。
var nowFunc = time.Now

// CollisionPolicy 决定目标文件已存在时如何改名。
// 两种变体由调用方显式选择，不允许隐式二选一。
type CollisionPolicy string

const (
	// PolicyCounter 追加递增计数 _1/_2/…，逐个候选重查存在性，保证唯一。
	PolicyCounter CollisionPolicy = "counter"
	// PolicyTimestamp 追加一次性的紧凑当前时间 _20240101153000。
	// 已知弱点：秒内再冲突不再消解（保留原行为，不“顺手修复”）。
	PolicyTimestamp CollisionPolicy = "timestamp"
)

// ParsePolicy 校验并解析 policy 字符串。
func ParsePolicy(s string) (CollisionPolicy, error) {
	switch CollisionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyCounter:
		return PolicyCounter, nil
	case PolicyTimestamp:
		return PolicyTimestamp, nil
	case "":
		return PolicyCounter, nil
	default:
		return "", fmt.Errorf("collision 只能是 counter 或 timestamp，实际是 %q", s)
	}
}

// EnsureDir 建出 target/<year>/<month>/ 并返回其路径。
// 目录属主按 target 根复制（NAS 多用户共享的运维便利；best-effort，
// 失败只告警不报错——没有属主概念的平台天然跳过）。
func EnsureDir(targetRoot, year, month string) (string, error) {
	dir := filepath.Join(targetRoot, year, month)
	fi, err := os.Stat(dir)
	if err == nil {
		if fi.IsDir() {
			return dir, nil
		}
		return "", &fsx.PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	copyOwner(targetRoot, filepath.Join(targetRoot, year), dir)
	return dir, nil
}

// Resolve 返回最终目标路径：无冲突时保留原 basename，
// 冲突时按 policy 在扩展名前追加消歧后缀（扩展名转小写）。
func Resolve(dir, base string, policy CollisionPolicy) (string, error) {
	cand := filepath.Join(dir, base)
	if !exists(cand) {
		return cand, nil
	}

	ext := strings.ToLower(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	switch policy {
	case PolicyTimestamp:
		name := fmt.Sprintf("%s_%s%s", stem, nowFunc().Format("20060102150405"), ext)
		return filepath.Join(dir, name), nil
	case PolicyCounter:
		for n := 1; ; n++ {
			name := fmt.Sprintf("%s_%d%s", stem, n, ext)
			p := filepath.Join(dir, name)
			if !exists(p) {
				return p, nil
			}
		}
	default:
		return "", fmt.Errorf("未知 collision policy：%q", policy)
	}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
