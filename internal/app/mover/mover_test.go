package mover

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Zhima-Mochi/synology-scripts/internal/config"
	"github.com/Zhima-Mochi/synology-scripts/internal/domain"
)

// fakeStore 按路径返回预置的元数据字段。
type fakeStore struct {
	data map[string]map[string]string
}

func (s *fakeStore) Read(path string, fields ...string) (map[string]string, error) {
	out := map[string]string{}
	for _, f := range fields {
		if v, ok := s.data[path][f]; ok {
			out[f] = v
		}
	}
	return out, nil
}

func (s *fakeStore) Write(path string, fields map[string]string) error {
	panic("move 流水线不应写元数据")
}

func stubClassify(t *testing.T, kind domain.Kind) {
	t.Helper()
	old := classifyFunc
	classifyFunc = func(string) (domain.Kind, error) { return kind, nil }
	t.Cleanup(func() { classifyFunc = old })
}

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("建目录失败: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("建文件失败: %v", err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("设置 mtime 失败: %v", err)
	}
}

func baseConfig(root, target string) config.EffectiveConfig {
	return config.EffectiveConfig{
		Root:      root,
		Target:    target,
		Apply:     true,
		Collision: "counter",
		Patterns:  []string{"*.jpg", "*.mp4"},
	}
}

func TestRun_MovesByMetadataDate(t *testing.T) {
	stubClassify(t, domain.KindImage)
	root, target := t.TempDir(), t.TempDir()
	src := filepath.Join(root, "a.jpg")
	touch(t, src, time.Now())

	store := &fakeStore{data: map[string]map[string]string{
		src: {"DateTimeOriginal": "2021:03:05 10:00:00"},
	}}

	rr, err := Run(context.Background(), baseConfig(root, target), store, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.Summary.Moved != 1 {
		t.Fatalf("summary 不符：%+v", rr.Summary)
	}
	if _, err := os.Stat(filepath.Join(target, "2021", "03", "a.jpg")); err != nil {
		t.Fatalf("目标文件不存在：%v", err)
	}
	if rr.Items[0].Dst != filepath.Join("2021", "03", "a.jpg") {
		t.Fatalf("dst 不符：%q", rr.Items[0].Dst)
	}
}

func TestRun_FallsBackToMTime(t *testing.T) {
	stubClassify(t, domain.KindImage)
	root, target := t.TempDir(), t.TempDir()
	touch(t, filepath.Join(root, "a.jpg"), time.Date(2019, 7, 20, 8, 0, 0, 0, time.Local))

	// 没有任何元数据字段：归档位置由 mtime 决定。
	rr, err := Run(context.Background(), baseConfig(root, target), &fakeStore{}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.Summary.Moved != 1 {
		t.Fatalf("summary 不符：%+v", rr.Summary)
	}
	if _, err := os.Stat(filepath.Join(target, "2019", "07", "a.jpg")); err != nil {
		t.Fatalf("目标文件不存在：%v", err)
	}
}

func TestRun_CounterCollisionKeepsBothFiles(t *testing.T) {
	stubClassify(t, domain.KindImage)
	root, target := t.TempDir(), t.TempDir()
	touch(t, filepath.Join(root, "a.jpg"), time.Date(2021, 3, 1, 0, 0, 0, 0, time.Local))
	touch(t, filepath.Join(target, "2021", "03", "a.jpg"), time.Now())

	rr, err := Run(context.Background(), baseConfig(root, target), &fakeStore{}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.Summary.Moved != 1 {
		t.Fatalf("summary 不符：%+v", rr.Summary)
	}
	// 两个文件都必须存在：占位的原文件 + 消歧后的新文件。
	if _, err := os.Stat(filepath.Join(target, "2021", "03", "a.jpg")); err != nil {
		t.Fatalf("原占位文件不应被覆盖：%v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "2021", "03", "a_1.jpg")); err != nil {
		t.Fatalf("消歧文件不存在：%v", err)
	}
}

func TestRun_UnsupportedContentSkipped(t *testing.T) {
	stubClassify(t, domain.KindUnsupported)
	root, target := t.TempDir(), t.TempDir()
	touch(t, filepath.Join(root, "fake.jpg"), time.Now())

	rr, err := Run(context.Background(), baseConfig(root, target), &fakeStore{}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.Summary.Skipped != 1 || rr.Summary.Moved != 0 {
		t.Fatalf("summary 不符：%+v", rr.Summary)
	}
	if rr.Items[0].ErrorCode != domain.ErrCodeUnsupportedType {
		t.Fatalf("期望 error_code=%s，实际 %s", domain.ErrCodeUnsupportedType, rr.Items[0].ErrorCode)
	}
	if _, err := os.Stat(filepath.Join(root, "fake.jpg")); err != nil {
		t.Fatalf("被跳过的文件不应被移动：%v", err)
	}
}

func TestRun_SingleFileRoot(t *testing.T) {
	stubClassify(t, domain.KindImage)
	dir, target := t.TempDir(), t.TempDir()
	src := filepath.Join(dir, "single.jpg")
	touch(t, src, time.Date(2020, 11, 2, 0, 0, 0, 0, time.Local))

	eff := baseConfig(src, target)
	rr, err := Run(context.Background(), eff, &fakeStore{}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.Summary.Moved != 1 {
		t.Fatalf("summary 不符：%+v", rr.Summary)
	}
	if _, err := os.Stat(filepath.Join(target, "2020", "11", "single.jpg")); err != nil {
		t.Fatalf("目标文件不存在：%v", err)
	}
}

func TestRun_DryRunLeavesFilesInPlace(t *testing.T) {
	stubClassify(t, domain.KindImage)
	root, target := t.TempDir(), t.TempDir()
	touch(t, filepath.Join(root, "a.jpg"), time.Date(2021, 3, 1, 0, 0, 0, 0, time.Local))

	eff := baseConfig(root, target)
	eff.Apply = false

	rr, err := Run(context.Background(), eff, &fakeStore{}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !rr.DryRun || rr.Summary.Moved != 1 {
		t.Fatalf("report 不符：dry_run=%v summary=%+v", rr.DryRun, rr.Summary)
	}
	if rr.Items[0].Dst != filepath.Join("2021", "03", "a.jpg") {
		t.Fatalf("dst 预演不符：%q", rr.Items[0].Dst)
	}
	if _, err := os.Stat(filepath.Join(root, "a.jpg")); err != nil {
		t.Fatalf("dry-run 不应移动文件：%v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "2021")); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应建目录：%v", err)
	}
}

func TestRun_MissingTarget(t *testing.T) {
	eff := baseConfig(t.TempDir(), "")
	_, err := Run(context.Background(), eff, &fakeStore{}, nil)
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if config.Code(err) != config.ErrCodeInvalid {
		t.Fatalf("期望 %s，实际 %s", config.ErrCodeInvalid, config.Code(err))
	}
}
