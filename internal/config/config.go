package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Zhima-Mochi/synology-scripts/internal/domain"
	"github.com/Zhima-Mochi/synology-scripts/internal/place"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeBadWindow 表示 --after/--before 无法解析或区间颠倒。
	ErrCodeBadWindow = domain.ErrCodeBadWindow
	// ErrCodeBadRoot 表示 CLI 未给出根路径或根路径不可用。
	ErrCodeBadRoot = domain.ErrCodeBadRoot
)

const (
	// FileName 是根目录下可选配置文件的固定名字。
	FileName = "mediakit.json"
	// DefaultBackend 是元数据后端的最终默认值（CLI 与配置文件都未指定时）。
	DefaultBackend = "exiftool"
)

// CLIArgs 保留每个 flag 的“是否显式指定”信息。
// 这能保证覆盖优先级可实现：例如 --recursive=false 必须能覆盖 config.recursive=true。
type CLIArgs struct {
	Root string

	Target    string
	TargetSet bool

	MoveTo    string
	MoveToSet bool

	Recursive    bool
	RecursiveSet bool

	Apply    bool
	ApplySet bool

	Collision    string
	CollisionSet bool

	Backend    string
	BackendSet bool

	After    string
	AfterSet bool

	Before    string
	BeforeSet bool

	Patterns    []string
	PatternsSet bool

	Verbose    bool
	VerboseSet bool
}

// FileConfig 对应 mediakit.json 的解析结构。
// 所有字段都是可选的；文件本身也是可选的。
type FileConfig struct {
	Target    string   `json:"target"`
	Recursive *bool    `json:"recursive"`
	Apply     *bool    `json:"apply"`
	Collision string   `json:"collision"`
	Backend   string   `json:"backend"`
	Patterns  []string `json:"patterns"`
	Exclude   []string `json:"exclude"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置
// （实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Root   string
	Target string
	MoveTo string

	Recursive bool
	Apply     bool
	Verbose   bool

	Collision place.CollisionPolicy
	Backend   string

	Window   domain.DateWindow
	Patterns []string
	Exclude  []string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Path != "":
		return fmt.Sprintf("%s：%q：%v", e.Code, e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s：%v", e.Code, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s：%q", e.Code, e.Path)
	default:
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// 修复与移动共用的媒体扩展名（候选过滤的第一道闸）。
var DefaultPatterns = []string{
	"*.jpg", "*.jpeg", "*.png", "*.gif", "*.bmp", "*.tiff", "*.heic",
	"*.cr2", "*.arw",
	"*.mp4", "*.mov", "*.avi", "*.mkv",
}

// Exclude 的内置默认：Synology 缩略图目录的碎片绝不应被当作媒体处理。
var DefaultExclude = []string{"SYNOPHOTO_THUMB"}

// LoadEffective 读取可选的 <root>/mediakit.json，然后与 CLI 参数合并为最终配置。
//
// 覆盖优先级（固定）：CLI > mediakit.json > 内置默认。
// root 只能来自 CLI（位置参数），配置文件不能改写它。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	if strings.TrimSpace(cli.Root) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeBadRoot, Err: fmt.Errorf("缺少根路径参数")}
	}
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}
	root := absCleanFrom(cwdAbs, cli.Root)

	cfgPath := filepath.Join(root, FileName)
	fc, _, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	ec := EffectiveConfig{Root: root}

	// target：CLI > config（相对路径都以 cwd 为基准）。
	if cli.TargetSet {
		ec.Target = absCleanFrom(cwdAbs, cli.Target)
	} else if strings.TrimSpace(fc.Target) != "" {
		ec.Target = absCleanFrom(cwdAbs, fc.Target)
	}
	if cli.MoveToSet {
		ec.MoveTo = absCleanFrom(cwdAbs, cli.MoveTo)
	}

	// recursive / apply：CLI > config > 默认 false。
	if cli.RecursiveSet {
		ec.Recursive = cli.Recursive
	} else if fc.Recursive != nil {
		ec.Recursive = *fc.Recursive
	}
	if cli.ApplySet {
		ec.Apply = cli.Apply
	} else if fc.Apply != nil {
		ec.Apply = *fc.Apply
	}
	ec.Verbose = cli.Verbose

	// collision：CLI > config > 默认 counter。
	collision := ""
	if cli.CollisionSet {
		collision = cli.Collision
	} else if strings.TrimSpace(fc.Collision) != "" {
		collision = fc.Collision
	}
	policy, err := place.ParsePolicy(collision)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	ec.Collision = policy

	// backend：CLI > config > 默认 exiftool。
	backend := DefaultBackend
	if cli.BackendSet {
		backend = cli.Backend
	} else if strings.TrimSpace(fc.Backend) != "" {
		backend = fc.Backend
	}
	if err := validateBackend(backend); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	ec.Backend = backend

	// 时间窗只来自 CLI；两端都给时必须 after < before。
	if cli.AfterSet {
		t, err := ParseWhen(cli.After)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeBadWindow, Err: fmt.Errorf("--after=%q：%w", cli.After, err)}
		}
		ec.Window.After = t
	}
	if cli.BeforeSet {
		t, err := ParseWhen(cli.Before)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeBadWindow, Err: fmt.Errorf("--before=%q：%w", cli.Before, err)}
		}
		ec.Window.Before = t
	}
	if !ec.Window.After.IsZero() && !ec.Window.Before.IsZero() && !ec.Window.After.Before(ec.Window.Before) {
		return EffectiveConfig{}, &Error{Code: ErrCodeBadWindow, Err: fmt.Errorf("--after 必须早于 --before")}
	}

	// patterns：CLI > config > 内置默认；全部小写化。
	switch {
	case cli.PatternsSet:
		ec.Patterns = lowerAll(cli.Patterns)
	case len(fc.Patterns) > 0:
		ec.Patterns = lowerAll(fc.Patterns)
	default:
		ec.Patterns = append([]string(nil), DefaultPatterns...)
	}

	ec.Exclude = append([]string(nil), DefaultExclude...)
	ec.Exclude = append(ec.Exclude, fc.Exclude...)

	return ec, nil
}

func validateBackend(b string) error {
	switch b {
	case "exiftool", "goexif":
		return nil
	default:
		return fmt.Errorf("backend 只能是 exiftool 或 goexif，实际是 %q", b)
	}
}

// ParseWhen 解析 --after/--before 的取值。
// 依次尝试：日期、日期+时间、RFC3339、裸 Unix 秒。本地时区。
func ParseWhen(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0), nil
	}
	return time.Time{}, fmt.Errorf("无法解析时间 %q（允许 2006-01-02、2006-01-02 15:04:05、RFC3339 或 Unix 秒）", s)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, strings.ToLower(s))
	}
	return out
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
