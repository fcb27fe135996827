package meta

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Zhima-Mochi/synology-scripts/internal/domain"
)

// ResolvedDate 是 move 流水线的分组键（year/month）加上完整时间串。
type ResolvedDate struct {
	Year  string
	Month string
	Full  string // "YYYY:MM:DD HH:MM:SS"
}

// ResolveDate 按字段序解析文件的拍摄日期；全部不可用时回退 mtime。
//
// 权威约束：move 绝不相信文件名——这里只看元数据与 mtime。
// 元数据读取失败按“无可用字段”对待（降级到 mtime 兜底），不让单个
// 损坏文件中断批处理。
func ResolveDate(store Store, file domain.MediaFile, kind domain.Kind) (ResolvedDate, error) {
	order := ResolveOrder(kind)
	if len(order) > 0 {
		values, err := store.Read(file.AbsPath, order...)
		if err != nil {
			logrus.WithField("path", file.AbsPath).WithError(err).Warn("读取元数据失败，回退 mtime")
		} else {
			for _, field := range order {
				v := strings.TrimSpace(values[field])
				if v == "" || strings.HasPrefix(v, "0000") {
					// 年零值（0000:00:00 ...）是相机/容器的“未设置”写法，视同缺失。
					continue
				}
				rd, perr := splitDate(v)
				if perr != nil {
					logrus.WithField("path", file.AbsPath).WithField("field", field).
						WithError(perr).Debug("字段值不可解析，尝试下一个")
					continue
				}
				return rd, nil
			}
		}
	}

	// mtime 兜底：格式化成与元数据一致的形态，后续逻辑不需要分辨来源。
	full := time.Unix(file.ModUnix, 0).Format(TimeLayout)
	return splitDate(full)
}

// splitDate 从 "YYYY:MM:DD HH:MM:SS" 中切出 year/month。
// 只要求可切分，不做日历校验。
func splitDate(v string) (ResolvedDate, error) {
	parts := strings.SplitN(v, ":", 3)
	if len(parts) < 3 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return ResolvedDate{}, fmt.Errorf("无法从 %q 中切出 year/month", v)
	}
	return ResolvedDate{Year: parts[0], Month: parts[1], Full: v}, nil
}
