package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/Zhima-Mochi/synology-scripts/internal/app"
	"github.com/Zhima-Mochi/synology-scripts/internal/app/mover"
	"github.com/Zhima-Mochi/synology-scripts/internal/app/repair"
	"github.com/Zhima-Mochi/synology-scripts/internal/config"
	"github.com/Zhima-Mochi/synology-scripts/internal/domain"
	"github.com/Zhima-Mochi/synology-scripts/internal/infra/fsx"
	"github.com/Zhima-Mochi/synology-scripts/internal/meta"
)

// reportFileName 是 apply 时落盘的报告文件名（原子写入到 root 下）。
const reportFileName = "mediakit-report.json"

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "repair", "move":
		if code := runCmd(args[0], args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func runCmd(command string, args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printCmdUsage(command)
			return 0
		}
	}

	cli, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printCmdUsage(command)
		return 2
	}

	setupLogging(cli.Verbose)

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		emitReport(reportForPreconditionError(command, cli, err))
		return 1
	}

	// goexif 只读：repair --apply 的每个文件都会先改 mtime、后在元数据
	// 写入上失败。这种配置永远不可能成功，必须在触碰任何文件前整体拒绝。
	if command == "repair" && eff.Apply && eff.Backend == "goexif" {
		err := &config.Error{
			Code: domain.ErrCodeToolMissing,
			Err:  fmt.Errorf("repair --apply 需要可写的元数据后端：goexif 只读，请改用 --backend=exiftool"),
		}
		emitReport(reportForPreconditionError(command, cli, err))
		return 1
	}

	store, closeStore, err := newStore(eff.Backend)
	if err != nil {
		emitReport(reportForPreconditionError(command, cli, err))
		return 1
	}
	defer closeStore()

	progressW, interactive := pickProgressWriter()
	var obs app.Observer
	var ui *progressUI
	if interactive {
		ui = newProgressUI(progressW)
		obs = ui
	}

	var rr domain.RunReport
	switch command {
	case "repair":
		rr, err = repair.Run(context.Background(), eff, store, obs)
	case "move":
		rr, err = mover.Run(context.Background(), eff, store, obs)
	}
	if ui != nil {
		ui.stop()
	}
	if err != nil {
		emitReport(reportForPreconditionError(command, cli, err))
		return 1
	}

	// apply：报告原子落盘到 root 下；dry-run 禁止写任何东西。
	if eff.Apply {
		if werr := writeReportFile(eff.Root, rr); werr != nil {
			fmt.Fprintf(os.Stderr, "写入 %s 失败：%v\n", reportFileName, werr)
			emitReport(rr)
			return 1
		}
	}

	emitReport(rr)

	// 批处理跑完即成功：单文件 skip/fail 只体现在 report 里，
	// 非零退出码只留给前置条件失败（1）与用法错误（2）。
	return 0
}

// newStore 按 backend 构建元数据后端。
// exiftool 二进制缺失属于前置条件失败（tool_missing），不进入批处理。
func newStore(backend string) (meta.Store, func(), error) {
	switch backend {
	case "goexif":
		return meta.NewGoexifStore(), func() {}, nil
	default:
		s, err := meta.NewExiftoolStore()
		if err != nil {
			return nil, nil, &config.Error{
				Code: domain.ErrCodeToolMissing,
				Err:  fmt.Errorf("启动 exiftool 失败（需要 PATH 中有 exiftool，或改用 --backend=goexif）：%w", err),
			}
		}
		return s, func() { _ = s.Close() }, nil
	}
}

func setupLogging(verbose bool) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}
}

func parseArgs(args []string) (config.CLIArgs, error) {
	cli := config.CLIArgs{}

	takeValue := func(i *int, name string) (string, error) {
		if *i+1 >= len(args) {
			return "", fmt.Errorf("%s 需要一个值", name)
		}
		*i++
		return args[*i], nil
	}
	parseBool := func(name, v string) (bool, error) {
		switch v {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return false, fmt.Errorf("%s 只能是 true 或 false，实际是 %q", name, v)
		}
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--target":
			v, err := takeValue(&i, a)
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.Target, cli.TargetSet = v, true
		case strings.HasPrefix(a, "--target="):
			cli.Target, cli.TargetSet = strings.TrimPrefix(a, "--target="), true
		case a == "--move-to":
			v, err := takeValue(&i, a)
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.MoveTo, cli.MoveToSet = v, true
		case strings.HasPrefix(a, "--move-to="):
			cli.MoveTo, cli.MoveToSet = strings.TrimPrefix(a, "--move-to="), true
		case a == "--recursive":
			cli.Recursive, cli.RecursiveSet = true, true
		case strings.HasPrefix(a, "--recursive="):
			v, err := parseBool("--recursive", strings.TrimPrefix(a, "--recursive="))
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.Recursive, cli.RecursiveSet = v, true
		case a == "--apply":
			cli.Apply, cli.ApplySet = true, true
		case strings.HasPrefix(a, "--apply="):
			v, err := parseBool("--apply", strings.TrimPrefix(a, "--apply="))
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.Apply, cli.ApplySet = v, true
		case a == "--collision":
			v, err := takeValue(&i, a)
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.Collision, cli.CollisionSet = v, true
		case strings.HasPrefix(a, "--collision="):
			cli.Collision, cli.CollisionSet = strings.TrimPrefix(a, "--collision="), true
		case a == "--backend":
			v, err := takeValue(&i, a)
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.Backend, cli.BackendSet = v, true
		case strings.HasPrefix(a, "--backend="):
			cli.Backend, cli.BackendSet = strings.TrimPrefix(a, "--backend="), true
		case a == "--after":
			v, err := takeValue(&i, a)
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.After, cli.AfterSet = v, true
		case strings.HasPrefix(a, "--after="):
			cli.After, cli.AfterSet = strings.TrimPrefix(a, "--after="), true
		case a == "--before":
			v, err := takeValue(&i, a)
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.Before, cli.BeforeSet = v, true
		case strings.HasPrefix(a, "--before="):
			cli.Before, cli.BeforeSet = strings.TrimPrefix(a, "--before="), true
		case a == "--pattern":
			v, err := takeValue(&i, a)
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.Patterns = append(cli.Patterns, v)
			cli.PatternsSet = true
		case strings.HasPrefix(a, "--pattern="):
			cli.Patterns = append(cli.Patterns, strings.TrimPrefix(a, "--pattern="))
			cli.PatternsSet = true
		case a == "--verbose" || a == "-v":
			cli.Verbose, cli.VerboseSet = true, true
		case strings.HasPrefix(a, "-"):
			return config.CLIArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if cli.Root != "" {
				return config.CLIArgs{}, fmt.Errorf("重复的根路径：%q 与 %q", cli.Root, a)
			}
			cli.Root = a
		}
	}

	return cli, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  mediakit repair <root> [flags]
  mediakit move <root> --target <dir> [flags]

命令：
  repair  按文件名（Unix 时间戳）修复 mtime 与元数据时间字段（默认 dry-run）
  move    按元数据日期（mtime 兜底）归档到 <target>/<YYYY>/<MM>/（默认 dry-run）

使用 "mediakit repair --help" 或 "mediakit move --help" 查看详细说明。
`)
}

func printCmdUsage(command string) {
	switch command {
	case "repair":
		fmt.Fprint(os.Stdout, `用法：
  mediakit repair <root> [--apply] [--recursive] [--move-to <dir>] [flags]

参数：
  --apply       执行写入（默认 dry-run，只预演不落盘）
  --recursive   递归处理子目录（默认只处理 root 直接内容）
  --move-to     修复成功后直接归档到该目录的 <YYYY>/<MM>/ 下
  --collision   归档重名策略：counter|timestamp（默认 counter）
  --backend     元数据后端：exiftool|goexif（默认 exiftool；goexif 只能读）
  --after       只处理 mtime 晚于该时刻的文件（严格比较）
  --before      只处理 mtime 早于该时刻的文件（严格比较）
  --pattern     basename glob（可重复；默认内置媒体扩展名集合）
  -v, --verbose 输出调试日志（stderr）
  -h, --help    显示帮助
`)
	case "move":
		fmt.Fprint(os.Stdout, `用法：
  mediakit move <root> --target <dir> [--apply] [--recursive] [flags]

说明：
  root 可以是目录（批量）或单个文件。归档位置由元数据日期字段决定
  （DateTimeOriginal 优先），全部缺失时回退文件 mtime。

参数：
  --target      归档根目录（必填）；文件落到 <target>/<YYYY>/<MM>/ 下
  --apply       执行移动（默认 dry-run，只预演不落盘）
  --recursive   递归处理子目录
  --collision   重名策略：counter|timestamp（默认 counter）
  --backend     元数据后端：exiftool|goexif（默认 exiftool）
  --after       只处理 mtime 晚于该时刻的文件（严格比较）
  --before      只处理 mtime 早于该时刻的文件（严格比较）
  --pattern     basename glob（可重复）
  -v, --verbose 输出调试日志（stderr）
  -h, --help    显示帮助
`)
	}
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintf(os.Stdout, "完成：updated=%d moved=%d skipped=%d failed=%d\n",
			rr.Summary.Updated, rr.Summary.Moved, rr.Summary.Skipped, rr.Summary.Failed,
		)
		if rr.Summary.Failed > 0 {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed {
					continue
				}
				src := it.Src
				if src == "" {
					src = "<unknown>"
				}
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", src, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintf(os.Stderr, "完成：updated=%d moved=%d skipped=%d failed=%d\n",
		rr.Summary.Updated, rr.Summary.Moved, rr.Summary.Skipped, rr.Summary.Failed,
	)
}

// reportForPreconditionError 把前置条件失败合成为单条 failed 报告，
// 保证 stdout JSON 契约在任何路径下都成立。
func reportForPreconditionError(command string, cli config.CLIArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	code := config.Code(err)
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	rr := domain.RunReport{
		Command:    command,
		Root:       cli.Root,
		DryRun:     !(cli.ApplySet && cli.Apply),
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.FileResult{{
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(root string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(root, reportFileName, b)
}

func isTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}
