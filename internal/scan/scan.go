package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/djherbis/times"
	"github.com/sirupsen/logrus"

	"github.com/Zhima-Mochi/synology-scripts/internal/domain"
)

// Options 描述一次枚举的过滤条件。
type Options struct {
	// Recursive=false 时仅枚举 root 的直接内容（深度 1）。
	Recursive bool
	// Patterns 非空时，basename 必须大小写不敏感地匹配至少一个 glob。
	Patterns []string
	// Window 按 mtime 过滤（两侧均为严格比较；零值表示不过滤）。
	Window domain.DateWindow
	// ExcludeSubstrings：路径中含任一子串的文件直接跳过
	// （如 Synology 缩略图 SYNOPHOTO_THUMB）。
	ExcludeSubstrings []string
}

// Enumerate 扫描 root 下的候选媒体文件。
//
// 规则（硬约束）：
// - 仅常规文件（目录/符号链接等一律排除）
// - 过滤全部在本阶段完成，之后的流水线无需再判断
//
// 注意：扫描阶段只做 stat，不读文件内容。输出按 RelPath 排序——
// 这只为展示稳定；正确性绝不依赖遍历顺序。
func Enumerate(root string, opts Options) ([]domain.MediaFile, error) {
	root = filepath.Clean(root)

	files := make([]domain.MediaFile, 0, 128)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}

		// WalkDir 不跟随符号链接；这里再排除链接本身。
		if !d.Type().IsRegular() {
			return nil
		}

		if containsAny(path, opts.ExcludeSubstrings) {
			return nil
		}

		name := d.Name()
		if !matchAny(name, opts.Patterns) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		mtime := info.ModTime()
		if !opts.Window.IsZero() {
			// djherbis/times 统一各平台的时间戳读取；取回 mtime 后按窗口严格比较。
			if ts, terr := times.Stat(path); terr == nil {
				mtime = ts.ModTime()
			} else {
				logrus.WithField("path", path).WithError(terr).Debug("读取文件时间失败，回退 FileInfo.ModTime")
			}
			if !opts.Window.Contains(mtime) {
				return nil
			}
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		files = append(files, domain.MediaFile{
			AbsPath: path,
			RelPath: rel,
			Base:    strings.TrimSuffix(name, filepath.Ext(name)),
			Ext:     strings.ToLower(filepath.Ext(name)),
			Size:    info.Size(),
			ModUnix: mtime.Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func matchAny(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, p := range patterns {
		ok, err := filepath.Match(strings.ToLower(p), lower)
		if err != nil {
			// 非法 pattern 在配置阶段已校验；这里按不匹配处理。
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

func containsAny(path string, subs []string) bool {
	for _, s := range subs {
		if s == "" {
			continue
		}
		if strings.Contains(path, s) {
			return true
		}
	}
	return false
}
