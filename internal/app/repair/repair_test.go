package repair

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Zhima-Mochi/synology-scripts/internal/config"
	"github.com/Zhima-Mochi/synology-scripts/internal/domain"
	"github.com/Zhima-Mochi/synology-scripts/internal/meta"
)

// fakeStore 是按路径记账的元数据替身。
type fakeStore struct {
	mu      sync.Mutex
	written map[string]map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{written: map[string]map[string]string{}}
}

func (s *fakeStore) Read(path string, fields ...string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	for _, f := range fields {
		if v, ok := s.written[path][f]; ok {
			out[f] = v
		}
	}
	return out, nil
}

func (s *fakeStore) Write(path string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.written[path]
	if m == nil {
		m = map[string]string{}
		s.written[path] = m
	}
	for k, v := range fields {
		m[k] = v
	}
	return nil
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

func baseConfig(root string) config.EffectiveConfig {
	return config.EffectiveConfig{
		Root:     root,
		Apply:    true,
		Patterns: []string{"*.jpg", "*.mp4"},
	}
}

func TestRun_AppliesFilenameTimestamp(t *testing.T) {
	stubClassify(t, domain.KindImage)
	root := t.TempDir()
	wrong := time.Date(2024, 12, 31, 0, 0, 0, 0, time.Local)
	touch(t, filepath.Join(root, "1617235200.jpg"), wrong)

	store := newFakeStore()
	rr, err := Run(context.Background(), baseConfig(root), store, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.Summary.Updated != 1 || rr.Summary.Failed != 0 {
		t.Fatalf("summary 不符：%+v", rr.Summary)
	}

	want := time.Unix(1617235200, 0)
	fi, err := os.Stat(filepath.Join(root, "1617235200.jpg"))
	if err != nil {
		t.Fatalf("stat 失败：%v", err)
	}
	if !fi.ModTime().Equal(want) {
		t.Fatalf("期望 mtime %v，实际 %v", want, fi.ModTime())
	}

	got := store.written[filepath.Join(root, "1617235200.jpg")]["DateTimeOriginal"]
	if got != want.Format(meta.TimeLayout) {
		t.Fatalf("期望元数据 %q，实际 %q", want.Format(meta.TimeLayout), got)
	}
}

func TestRun_MillisecondNameTruncates(t *testing.T) {
	stubClassify(t, domain.KindImage)
	root := t.TempDir()
	touch(t, filepath.Join(root, "1617235200999.jpg"), time.Now())

	rr, err := Run(context.Background(), baseConfig(root), newFakeStore(), nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.Summary.Updated != 1 {
		t.Fatalf("summary 不符：%+v", rr.Summary)
	}

	fi, _ := os.Stat(filepath.Join(root, "1617235200999.jpg"))
	if !fi.ModTime().Equal(time.Unix(1617235200, 0)) {
		t.Fatalf("毫秒应截断到秒，实际 mtime %v", fi.ModTime())
	}
}

func TestRun_SkipsInvalidNameAndContinues(t *testing.T) {
	stubClassify(t, domain.KindImage)
	root := t.TempDir()
	touch(t, filepath.Join(root, "holiday.jpg"), time.Now())
	touch(t, filepath.Join(root, "1617235200.jpg"), time.Now())

	rr, err := Run(context.Background(), baseConfig(root), newFakeStore(), nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.Summary.Updated != 1 || rr.Summary.Skipped != 1 {
		t.Fatalf("summary 不符：%+v", rr.Summary)
	}
	// items 按 Src 排序：数字名在前。
	if rr.Items[1].ErrorCode != domain.ErrCodeInvalidName {
		t.Fatalf("期望 error_code=%s，实际 %s", domain.ErrCodeInvalidName, rr.Items[1].ErrorCode)
	}
}

func TestRun_DryRunTouchesNothing(t *testing.T) {
	stubClassify(t, domain.KindImage)
	root := t.TempDir()
	orig := time.Date(2024, 12, 31, 0, 0, 0, 0, time.Local)
	touch(t, filepath.Join(root, "1617235200.jpg"), orig)

	eff := baseConfig(root)
	eff.Apply = false

	store := newFakeStore()
	rr, err := Run(context.Background(), eff, store, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !rr.DryRun || rr.Summary.Updated != 1 {
		t.Fatalf("report 不符：dry_run=%v summary=%+v", rr.DryRun, rr.Summary)
	}

	fi, _ := os.Stat(filepath.Join(root, "1617235200.jpg"))
	if !fi.ModTime().Equal(orig) {
		t.Fatalf("dry-run 不应改 mtime，实际 %v", fi.ModTime())
	}
	if len(store.written) != 0 {
		t.Fatalf("dry-run 不应写元数据：%v", store.written)
	}
}

func TestRun_MoveToArchivesAfterRepair(t *testing.T) {
	stubClassify(t, domain.KindImage)
	root := t.TempDir()
	moveTo := t.TempDir()
	touch(t, filepath.Join(root, "1617235200.jpg"), time.Now())

	eff := baseConfig(root)
	eff.MoveTo = moveTo

	rr, err := Run(context.Background(), eff, newFakeStore(), nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.Summary.Updated != 1 {
		t.Fatalf("summary 不符：%+v", rr.Summary)
	}

	at := time.Unix(1617235200, 0)
	wantDst := filepath.Join(moveTo, at.Format("2006"), at.Format("01"), "1617235200.jpg")
	fi, err := os.Stat(wantDst)
	if err != nil {
		t.Fatalf("归档文件不存在：%v", err)
	}
	// 归档不得丢失修复后的 mtime。
	if !fi.ModTime().Equal(at) {
		t.Fatalf("期望 mtime %v，实际 %v", at, fi.ModTime())
	}
	if _, err := os.Stat(filepath.Join(root, "1617235200.jpg")); !os.IsNotExist(err) {
		t.Fatalf("源文件应已消失：%v", err)
	}
}

func TestRun_BadRoot(t *testing.T) {
	eff := baseConfig(filepath.Join(t.TempDir(), "不存在"))
	_, err := Run(context.Background(), eff, newFakeStore(), nil)
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if config.Code(err) != config.ErrCodeBadRoot {
		t.Fatalf("期望 %s，实际 %s", config.ErrCodeBadRoot, config.Code(err))
	}
}

// recordObserver 记录事件调用（并发安全，与真实实现的契约一致）。
type recordObserver struct {
	mu         sync.Mutex
	startCalls int
	phaseNames []string
	fileCalls  int
}

func (o *recordObserver) OnStart(command string, eff config.EffectiveConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phaseNames = append(o.phaseNames, name)
}

func (o *recordObserver) OnFileDone(idx, total int, res domain.FileResult, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fileCalls++
}

func TestRun_EmitsObserverEvents(t *testing.T) {
	stubClassify(t, domain.KindImage)
	root := t.TempDir()
	touch(t, filepath.Join(root, "1617235200.jpg"), time.Now())
	touch(t, filepath.Join(root, "bad.jpg"), time.Now())

	obs := &recordObserver{}
	if _, err := Run(context.Background(), baseConfig(root), newFakeStore(), obs); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if obs.startCalls != 1 {
		t.Fatalf("期望 OnStart 调用 1 次，实际 %d", obs.startCalls)
	}
	if len(obs.phaseNames) != 1 || obs.phaseNames[0] != "scan" {
		t.Fatalf("phase 事件不符：%v", obs.phaseNames)
	}
	if obs.fileCalls != 2 {
		t.Fatalf("期望 OnFileDone 调用 2 次，实际 %d", obs.fileCalls)
	}
}
