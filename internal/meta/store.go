// Package meta 封装媒体元数据时间字段的读写与日期解析。
//
// Store 是注入式能力：repair/move 的编排逻辑只依赖该接口，
// 后端（外部 exiftool / 进程内 goexif / 测试替身）可整体替换。
package meta

import (
	"errors"

	"github.com/Zhima-Mochi/synology-scripts/internal/domain"
)

// Store 读写单个文件的元数据时间字段。
//
// 约束：
// - Read 只返回存在的字段（缺失字段不出现在结果 map 中，不算错误）
// - Write 一次写入多个字段；要么可判定成功，要么返回错误
type Store interface {
	Read(path string, fields ...string) (map[string]string, error)
	Write(path string, fields map[string]string) error
}

// ErrReadOnly 表示后端不支持写入（如 goexif 后端）。
var ErrReadOnly = errors.New("meta: 该后端只读")

// TimeLayout 是元数据时间字段的统一格式。
const TimeLayout = "2006:01:02 15:04:05"

// 写入字段集（repair 流水线）。图片与视频不同：视频容器多出 Track/Media 两组。
var (
	imageWriteFields = []string{
		"DateTimeOriginal",
		"CreateDate",
		"ModifyDate",
	}
	videoWriteFields = []string{
		"DateTimeOriginal",
		"CreateDate",
		"ModifyDate",
		"TrackCreateDate",
		"TrackModifyDate",
		"MediaCreateDate",
		"MediaModifyDate",
	}
)

// 解析字段序（move 流水线）。首个非空且非 0000 开头的值生效。
var (
	imageResolveOrder = []string{
		"DateTimeOriginal",
		"CreateDate",
		"ModifyDate",
	}
	videoResolveOrder = []string{
		"DateTimeOriginal",
		"CreateDate",
		"TrackCreateDate",
		"MediaCreateDate",
	}
)

// WriteFields 返回某类媒体 repair 时要写入的字段列表。
// KindUnsupported 返回 nil：不做任何元数据写入（mtime 更新不受影响）。
func WriteFields(kind domain.Kind) []string {
	switch kind {
	case domain.KindImage:
		return imageWriteFields
	case domain.KindVideo:
		return videoWriteFields
	default:
		return nil
	}
}

// ResolveOrder 返回某类媒体 move 时的字段尝试顺序。
func ResolveOrder(kind domain.Kind) []string {
	switch kind {
	case domain.KindImage:
		return imageResolveOrder
	case domain.KindVideo:
		return videoResolveOrder
	default:
		return nil
	}
}
