package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Zhima-Mochi/synology-scripts/internal/domain"
)

func TestCLI_NoTTY_StdoutOnlyRunReportJSON(t *testing.T) {
	// 这个测试锁定对外契约：stdout 非 TTY 时只能输出一个 RunReport JSON（进度/配置必须走 stderr 或直接禁用）。
	root := t.TempDir()

	if err := os.WriteFile(filepath.Join(root, "1617235200.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("读取 cwd 失败：%v", err)
	}
	repoRoot := filepath.Clean(filepath.Join(wd, "..", ".."))

	// dry-run + goexif：不依赖外部 exiftool，也不落盘。
	cmd := exec.Command("go", "run", "./cmd/mediakit", "repair", root, "--backend=goexif")
	cmd.Dir = repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("命令执行失败：%v\nstderr=%s\nstdout=%s", err, stderr.String(), stdout.String())
	}

	// stdout 必须是单个 JSON。
	var rr domain.RunReport
	if err := json.Unmarshal(stdout.Bytes(), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout.String())
	}
	if rr.Command != "repair" || !rr.DryRun {
		t.Fatalf("report 不符：command=%q dry_run=%v", rr.Command, rr.DryRun)
	}
	// 进度/配置不应出现在 stdout。
	if strings.Contains(stdout.String(), "配置（生效）") || strings.Contains(stdout.String(), "进度:") {
		t.Fatalf("stdout 不应包含进度/配置输出：%q", stdout.String())
	}

	// stderr 至少应包含最终摘要行。
	if !strings.Contains(stderr.String(), "完成：updated=") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr.String())
	}

	// dry-run 禁止落盘报告。
	if _, err := os.Stat(filepath.Join(root, reportFileName)); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应写 %s：%v", reportFileName, err)
	}
}
