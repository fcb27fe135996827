package meta

import (
	"os"
	"sync"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
)

// GoexifStore 是进程内只读后端：不依赖外部 exiftool，
// 但只认 EXIF 容器（JPEG/TIFF 系图片）。move 流水线在没有
// exiftool 的环境（如裸 NAS）下用它即可工作；repair 需要写入，
// 不能使用该后端。
type GoexifStore struct{}

var registerOnce sync.Once

func NewGoexifStore() *GoexifStore {
	registerOnce.Do(func() {
		exif.RegisterParsers(mknote.All...)
	})
	return &GoexifStore{}
}

// exiftool 字段名 → EXIF 标准标签名。
// CreateDate/ModifyDate 是 exiftool 对 DateTimeDigitized/DateTime 的别名。
var goexifFieldMap = map[string]exif.FieldName{
	"DateTimeOriginal": exif.DateTimeOriginal,
	"CreateDate":       exif.DateTimeDigitized,
	"ModifyDate":       exif.DateTime,
}

func (s *GoexifStore) Read(path string, fields ...string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		// 无 EXIF 数据不算错误：与“字段全缺失”同义，调用方自行兜底。
		return map[string]string{}, nil
	}

	out := make(map[string]string, len(fields))
	for _, field := range fields {
		name, ok := goexifFieldMap[field]
		if !ok {
			// 视频容器字段（Track/Media*）在 EXIF 里不存在，跳过即可。
			continue
		}
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		v, err := tag.StringVal()
		if err != nil {
			continue
		}
		out[field] = v
	}
	return out, nil
}

func (s *GoexifStore) Write(path string, fields map[string]string) error {
	return ErrReadOnly
}
