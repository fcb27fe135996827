// Package sniff 按文件内容（而非扩展名）判定媒体类别。
package sniff

import (
	"github.com/gabriel-vasile/mimetype"

	"github.com/Zhima-Mochi/synology-scripts/internal/domain"
)

// 图片集合。CR2/ARW 基于 TIFF 容器，内容嗅探结果即 image/tiff，
// 因此 image/tiff 同时覆盖 TIFF 原生文件与这两类 RAW。
var imageMIMEs = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/bmp",
	"image/tiff",
	"image/heic",
	"image/heif",
	"image/x-canon-cr2",
	"image/x-sony-arw",
}

var videoMIMEs = []string{
	"video/mp4",
	"video/quicktime",
	"video/x-msvideo",
	"video/x-matroska",
}

// Classify 检测 path 的内容 MIME 并映射到媒体类别。
// 两个集合之外的文件一律 KindUnsupported；调用方应将其静默跳过，不报错。
func Classify(path string) (domain.Kind, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return domain.KindUnsupported, err
	}
	return KindOf(mt), nil
}

// KindOf 把已检测的 MIME 映射到媒体类别（拆出来便于测试）。
func KindOf(mt *mimetype.MIME) domain.Kind {
	for _, m := range imageMIMEs {
		if mt.Is(m) {
			return domain.KindImage
		}
	}
	for _, m := range videoMIMEs {
		if mt.Is(m) {
			return domain.KindVideo
		}
	}
	return domain.KindUnsupported
}
