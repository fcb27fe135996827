package meta

import (
	"errors"
	"fmt"

	exiftool "github.com/barasher/go-exiftool"
)

// ExiftoolStore 通过常驻 exiftool 进程读写元数据（stay_open 模式，
// 避免逐文件启动进程）。这是默认后端：图片与视频都支持，且可写。
type ExiftoolStore struct {
	et *exiftool.Exiftool
}

// NewExiftoolStore 启动 exiftool。环境里没有该工具时构造失败——
// 调用方应把它当作前置条件错误，在触碰任何文件之前整体中止。
func NewExiftoolStore() (*ExiftoolStore, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("初始化 exiftool 失败（未安装或不在 PATH）：%w", err)
	}
	return &ExiftoolStore{et: et}, nil
}

// Close 结束常驻进程。
func (s *ExiftoolStore) Close() error {
	return s.et.Close()
}

func (s *ExiftoolStore) Read(path string, fields ...string) (map[string]string, error) {
	fms := s.et.ExtractMetadata(path)
	if len(fms) != 1 {
		return nil, fmt.Errorf("exiftool 返回了 %d 条结果（期望 1）", len(fms))
	}
	fm := fms[0]
	if fm.Err != nil {
		return nil, fm.Err
	}

	out := make(map[string]string, len(fields))
	for _, f := range fields {
		v, err := fm.GetString(f)
		if err != nil {
			if errors.Is(err, exiftool.ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("读取字段 %s 失败：%w", f, err)
		}
		out[f] = v
	}
	return out, nil
}

func (s *ExiftoolStore) Write(path string, fields map[string]string) error {
	fm := exiftool.FileMetadata{
		File:   path,
		Fields: make(map[string]interface{}, len(fields)),
	}
	for k, v := range fields {
		fm.SetString(k, v)
	}

	fms := []exiftool.FileMetadata{fm}
	s.et.WriteMetadata(fms)
	if fms[0].Err != nil {
		return fmt.Errorf("exiftool 写入失败：%w", fms[0].Err)
	}
	return nil
}
