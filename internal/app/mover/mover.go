// Package mover 实现按日期归档流水线：元数据（mtime 兜底）是唯一时间权威。
package mover

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Zhima-Mochi/synology-scripts/internal/app"
	"github.com/Zhima-Mochi/synology-scripts/internal/config"
	"github.com/Zhima-Mochi/synology-scripts/internal/domain"
	"github.com/Zhima-Mochi/synology-scripts/internal/infra/fsx"
	"github.com/Zhima-Mochi/synology-scripts/internal/meta"
	"github.com/Zhima-Mochi/synology-scripts/internal/place"
	"github.com/Zhima-Mochi/synology-scripts/internal/scan"
	"github.com/Zhima-Mochi/synology-scripts/internal/sniff"
)

// 内容嗅探可替换：测试替身没有真实媒体内容可嗅。
var classifyFunc = sniff.Classify

// Run 执行一次 move（dry-run/apply），返回对外稳定的 RunReport。
//
// Root 可以是目录（批量）也可以是单个文件（精确归档一个）。
// 返回 error 仅表示前置条件失败；单文件问题降级为 item 级 skip/fail。
func Run(ctx context.Context, eff config.EffectiveConfig, store meta.Store, obs app.Observer) (domain.RunReport, error) {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart("move", eff)
	}

	rr := domain.RunReport{
		Command:   "move",
		Root:      eff.Root,
		Target:    eff.Target,
		DryRun:    !eff.Apply,
		StartedAt: started,
		Items:     make([]domain.FileResult, 0, 128),
	}

	if strings.TrimSpace(eff.Target) == "" {
		return rr, &config.Error{Code: config.ErrCodeInvalid, Err: fmt.Errorf("move 需要 --target")}
	}

	files, err := collect(eff)
	if err != nil {
		return rr, err
	}
	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{"files": len(files)}, time.Since(started))
	}

	if eff.Apply {
		if err := os.MkdirAll(eff.Target, 0o755); err != nil {
			return rr, &config.Error{Code: config.ErrCodeBadRoot, Path: eff.Target, Err: err}
		}
	}

	for i, f := range files {
		if ctx.Err() != nil {
			break
		}
		oneStarted := time.Now()
		res := moveOne(eff, store, f)
		rr.Items = append(rr.Items, res)
		if obs != nil {
			obs.OnFileDone(i+1, len(files), res, time.Since(oneStarted))
		}
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr, nil
}

// collect 把 Root 展开成待处理文件列表。
// 用户显式指定的单个文件绕过 pattern/window 过滤（指名道姓就是要处理它）。
func collect(eff config.EffectiveConfig) ([]domain.MediaFile, error) {
	fi, err := os.Stat(eff.Root)
	if err != nil {
		return nil, &config.Error{Code: config.ErrCodeBadRoot, Path: eff.Root, Err: err}
	}

	if fi.Mode().IsRegular() {
		name := filepath.Base(eff.Root)
		return []domain.MediaFile{{
			AbsPath: filepath.Clean(eff.Root),
			RelPath: name,
			Base:    strings.TrimSuffix(name, filepath.Ext(name)),
			Ext:     strings.ToLower(filepath.Ext(name)),
			Size:    fi.Size(),
			ModUnix: fi.ModTime().Unix(),
		}}, nil
	}
	if !fi.IsDir() {
		return nil, &config.Error{Code: config.ErrCodeBadRoot, Path: eff.Root, Err: fmt.Errorf("既不是常规文件也不是目录")}
	}

	files, err := scan.Enumerate(eff.Root, scan.Options{
		Recursive:         eff.Recursive,
		Patterns:          eff.Patterns,
		Window:            eff.Window,
		ExcludeSubstrings: eff.Exclude,
	})
	if err != nil {
		return nil, &config.Error{Code: domain.ErrCodeIOFailed, Path: eff.Root, Err: fmt.Errorf("扫描失败：%w", err)}
	}
	return files, nil
}

func moveOne(eff config.EffectiveConfig, store meta.Store, f domain.MediaFile) domain.FileResult {
	res := domain.FileResult{Src: f.RelPath}

	kind, err := classifyFunc(f.AbsPath)
	if err != nil {
		res.Status = domain.StatusFailed
		res.ErrorCode = domain.ErrCodeIOFailed
		res.ErrorMsg = fmt.Sprintf("内容嗅探失败：%v", err)
		return res
	}
	res.Kind = kind.String()

	// 非媒体内容：跳过而不报错（扩展名骗不过内容嗅探）。
	if kind == domain.KindUnsupported {
		res.Status = domain.StatusSkipped
		res.ErrorCode = domain.ErrCodeUnsupportedType
		return res
	}

	rd, err := meta.ResolveDate(store, f, kind)
	if err != nil {
		res.Status = domain.StatusFailed
		res.ErrorCode = domain.ErrCodeMetaReadFailed
		res.ErrorMsg = err.Error()
		return res
	}

	base := filepath.Base(f.AbsPath)

	if !eff.Apply {
		// dry-run 不建目录；冲突消解按目标当前状态预演。
		dst, err := place.Resolve(filepath.Join(eff.Target, rd.Year, rd.Month), base, eff.Collision)
		if err != nil {
			res.Status = domain.StatusFailed
			res.ErrorCode = domain.ErrCodeMoveFailed
			res.ErrorMsg = err.Error()
			return res
		}
		res.Dst = relToTarget(eff.Target, dst)
		res.Status = domain.StatusMoved
		return res
	}

	dir, err := place.EnsureDir(eff.Target, rd.Year, rd.Month)
	if err == nil {
		var dst string
		dst, err = place.Resolve(dir, base, eff.Collision)
		if err == nil {
			err = fsx.MoveFile(f.AbsPath, dst)
		}
		if err == nil {
			res.Dst = relToTarget(eff.Target, dst)
		}
	}
	if err != nil {
		res.Status = domain.StatusFailed
		res.ErrorCode = domain.ErrCodeMoveFailed
		res.ErrorMsg = err.Error()
		return res
	}

	res.Status = domain.StatusMoved
	return res
}

func relToTarget(target, dst string) string {
	rel, err := filepath.Rel(target, dst)
	if err != nil {
		return dst
	}
	return rel
}
