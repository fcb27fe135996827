// Package repair 实现时间戳修复流水线：文件名是唯一时间权威。
package repair

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Zhima-Mochi/synology-scripts/internal/app"
	"github.com/Zhima-Mochi/synology-scripts/internal/config"
	"github.com/Zhima-Mochi/synology-scripts/internal/domain"
	"github.com/Zhima-Mochi/synology-scripts/internal/infra/fsx"
	"github.com/Zhima-Mochi/synology-scripts/internal/meta"
	"github.com/Zhima-Mochi/synology-scripts/internal/place"
	"github.com/Zhima-Mochi/synology-scripts/internal/scan"
	"github.com/Zhima-Mochi/synology-scripts/internal/sniff"
	"github.com/Zhima-Mochi/synology-scripts/internal/stamp"
)

// report 中 mtime 的展示格式（本地时间，便于人工核对）。
const mtimeLayout = "2006-01-02 15:04:05"

// 内容嗅探可替换：元数据测试替身没有真实文件内容可嗅。
var classifyFunc = sniff.Classify

// Run 执行一次 repair（dry-run/apply），返回对外稳定的 RunReport。
//
// 返回 error 仅表示前置条件失败（根路径不可用等），此时 report 不完整；
// 单文件问题一律降级为 item 级 skip/fail，绝不中断批处理。
func Run(ctx context.Context, eff config.EffectiveConfig, store meta.Store, obs app.Observer) (domain.RunReport, error) {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart("repair", eff)
	}

	rr := domain.RunReport{
		Command:   "repair",
		Root:      eff.Root,
		Target:    eff.MoveTo,
		DryRun:    !eff.Apply,
		StartedAt: started,
		Items:     make([]domain.FileResult, 0, 128),
	}

	fi, err := os.Stat(eff.Root)
	if err != nil {
		return rr, &config.Error{Code: config.ErrCodeBadRoot, Path: eff.Root, Err: err}
	}
	if !fi.IsDir() {
		return rr, &config.Error{Code: config.ErrCodeBadRoot, Path: eff.Root, Err: fmt.Errorf("根路径必须是目录")}
	}

	scanStarted := time.Now()
	files, err := scan.Enumerate(eff.Root, scan.Options{
		Recursive:         eff.Recursive,
		Patterns:          eff.Patterns,
		Window:            eff.Window,
		ExcludeSubstrings: eff.Exclude,
	})
	if err != nil {
		return rr, &config.Error{Code: domain.ErrCodeIOFailed, Path: eff.Root, Err: fmt.Errorf("扫描失败：%w", err)}
	}
	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{"files": len(files)}, time.Since(scanStarted))
	}

	for i, f := range files {
		if ctx.Err() != nil {
			break
		}
		oneStarted := time.Now()
		res := repairOne(eff, store, f)
		rr.Items = append(rr.Items, res)
		if obs != nil {
			obs.OnFileDone(i+1, len(files), res, time.Since(oneStarted))
		}
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr, nil
}

func repairOne(eff config.EffectiveConfig, store meta.Store, f domain.MediaFile) domain.FileResult {
	res := domain.FileResult{
		Src:         f.RelPath,
		BeforeMTime: time.Unix(f.ModUnix, 0).Format(mtimeLayout),
	}

	sec, err := stamp.Parse(f.Base)
	if err == nil {
		err = stamp.Validate(sec)
	}
	if err != nil {
		res.Status = domain.StatusSkipped
		res.ErrorCode = stampErrCode(err)
		res.ErrorMsg = err.Error()
		return res
	}
	at := time.Unix(sec, 0)
	res.AfterMTime = at.Format(mtimeLayout)

	kind, err := classifyFunc(f.AbsPath)
	if err != nil {
		res.Status = domain.StatusFailed
		res.ErrorCode = domain.ErrCodeIOFailed
		res.ErrorMsg = fmt.Sprintf("内容嗅探失败：%v", err)
		return res
	}
	res.Kind = kind.String()

	if eff.Apply {
		if err := meta.ApplyStamp(store, f, kind, sec); err != nil {
			res.Status = domain.StatusFailed
			res.ErrorCode = domain.ErrCodeMetaWriteFailed
			res.ErrorMsg = err.Error()
			return res
		}
	}
	res.Status = domain.StatusUpdated

	// --move-to：修复成功后直接归档。时间权威仍是文件名——
	// 不再回读元数据，year/month 由刚写入的时间戳本身决定。
	if eff.MoveTo != "" {
		year, month := at.Format("2006"), at.Format("01")
		base := filepath.Base(f.AbsPath)

		if !eff.Apply {
			res.Dst = filepath.Join(year, month, base)
			return res
		}

		dir, err := place.EnsureDir(eff.MoveTo, year, month)
		if err == nil {
			var dst string
			dst, err = place.Resolve(dir, base, eff.Collision)
			if err == nil {
				err = fsx.MoveFile(f.AbsPath, dst)
			}
			if err == nil {
				rel, rerr := filepath.Rel(eff.MoveTo, dst)
				if rerr != nil {
					rel = dst
				}
				res.Dst = rel
			}
		}
		if err != nil {
			// mtime/元数据已修复；只有归档这步失败。
			res.Status = domain.StatusFailed
			res.ErrorCode = domain.ErrCodeMoveFailed
			res.ErrorMsg = fmt.Sprintf("时间戳已修复，但归档失败：%v", err)
		}
	}
	return res
}

func stampErrCode(err error) string {
	var ie *stamp.InvalidError
	if errors.As(err, &ie) && ie.Kind == "out_of_range" {
		return domain.ErrCodeBadTimestamp
	}
	return domain.ErrCodeInvalidName
}
