// Package stamp 从文件名主干解析 Unix 时间戳。
//
// repair 流水线的唯一时间权威就是文件名：主干必须是纯 ASCII 数字，
// 且长度恰为 10（秒）或 13（毫秒，截断到秒）。其余一律 Invalid。
package stamp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	secondsDigits = 10
	millisDigits  = 13
)

// InvalidError 表示文件名主干不是可用的时间戳。
// 调用方应把它降级为单文件 skip（附诊断），绝不中断批处理。
type InvalidError struct {
	// Kind: "not_digits" | "bad_length" | "out_of_range"
	Kind string
	Stem string
}

func (e *InvalidError) Error() string {
	switch e.Kind {
	case "not_digits":
		return fmt.Sprintf("文件名主干含非数字字符：%q", e.Stem)
	case "bad_length":
		return fmt.Sprintf("文件名主干长度须为 10（秒）或 13（毫秒），实际 %d：%q", len(e.Stem), e.Stem)
	case "out_of_range":
		return fmt.Sprintf("时间戳超出可格式化范围：%q", e.Stem)
	default:
		return fmt.Sprintf("无效时间戳：%q", e.Stem)
	}
}

// IsInvalid 判断 err 是否为 *InvalidError。
func IsInvalid(err error) bool {
	_, ok := err.(*InvalidError)
	return ok
}

// Parse 解析不含扩展名的文件名主干，返回 Unix 秒。
//
// - 13 位：按毫秒处理，丢弃末 3 位（截断，不四舍五入）
// - 10 位：直接按秒处理
// - 其他长度 / 非纯数字：*InvalidError
func Parse(stem string) (int64, error) {
	stem = strings.TrimSpace(stem)
	if stem == "" || !allDigits(stem) {
		return 0, &InvalidError{Kind: "not_digits", Stem: stem}
	}

	switch len(stem) {
	case secondsDigits:
		// 10 位纯数字必然落在 int64 范围内。
		sec, err := strconv.ParseInt(stem, 10, 64)
		if err != nil {
			return 0, &InvalidError{Kind: "not_digits", Stem: stem}
		}
		return sec, nil
	case millisDigits:
		ms, err := strconv.ParseInt(stem, 10, 64)
		if err != nil {
			return 0, &InvalidError{Kind: "not_digits", Stem: stem}
		}
		return ms / 1000, nil
	default:
		return 0, &InvalidError{Kind: "bad_length", Stem: stem}
	}
}

// Validate 校验 sec 能否被日期格式化设施接受。
//
// 语义上越界的时间戳（格式化设施拒绝的那种）与解析失败同等对待：
// 单文件 skip，不中断批处理。在 10/13 位约束下几乎不会触发，
// 但契约要求在格式化前兜住。
func Validate(sec int64) error {
	t := time.Unix(sec, 0)
	if y := t.Year(); y < 1 || y > 9999 {
		return &InvalidError{Kind: "out_of_range", Stem: strconv.FormatInt(sec, 10)}
	}
	return nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
