package meta

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Zhima-Mochi/synology-scripts/internal/domain"
)

// ApplyStamp 把 sec 写到文件系统 mtime 与元数据字段上。
//
// 顺序是契约的一部分：先 mtime、后元数据。元数据写失败时 mtime 已更新，
// 不回滚——这里没有事务性，这是接受的取舍，不是 bug。
//
// 两处写入必须表示同一时刻（本地时区，无漂移）。外部 exiftool 重写文件
// 会把 mtime 顶成“现在”，所以元数据成功后再把 mtime 按原值断言一次；
// 重复设置同一值不构成回滚。
func ApplyStamp(store Store, file domain.MediaFile, kind domain.Kind, sec int64) error {
	at := time.Unix(sec, 0) // 本地日历时间

	if err := os.Chtimes(file.AbsPath, at, at); err != nil {
		return fmt.Errorf("设置 mtime 失败：%w", err)
	}

	fields := WriteFields(kind)
	if len(fields) == 0 {
		// unsupported：跳过元数据子步骤（静默），mtime 已生效。
		return nil
	}

	formatted := at.Format(TimeLayout)
	values := make(map[string]string, len(fields))
	for _, f := range fields {
		values[f] = formatted
	}

	if err := store.Write(file.AbsPath, values); err != nil {
		return err
	}

	if err := os.Chtimes(file.AbsPath, at, at); err != nil {
		// 元数据已写成；mtime 复位失败只降级为告警。
		logrus.WithField("path", file.AbsPath).WithError(err).Warn("元数据写入后复位 mtime 失败")
	}
	return nil
}
