// Copyright 2016 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package debug

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sunyihoo/evmsync/internal/flags"
	"github.com/sunyihoo/evmsync/log"
)

var (
	verbosityFlag = &cli.IntFlag{
		Name:     "verbosity",
		Usage:    "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value:    3,
		Category: flags.LoggingCategory,
	}
	logVmoduleFlag = &cli.StringFlag{
		Name:     "log.vmodule",
		Usage:    "Per-module verbosity: comma-separated list of <pattern>=<level> (e.g. eth/*=5,p2p=4)",
		Value:    "",
		Category: flags.LoggingCategory,
	}
	logFormatFlag = &cli.StringFlag{
		Name:     "log.format",
		Usage:    "Log format to use (json|logfmt|terminal)",
		Category: flags.LoggingCategory,
	}
	logFileFlag = &cli.StringFlag{
		Name:     "log.file",
		Usage:    "Write logs to a file",
		Category: flags.LoggingCategory,
	}
	logRotateFlag = &cli.BoolFlag{
		Name:     "log.rotate",
		Usage:    "Enables log file rotation",
		Category: flags.LoggingCategory,
	}
	logMaxSizeMBsFlag = &cli.IntFlag{
		Name:     "log.maxsize",
		Usage:    "Maximum size in MBs of a single log file",
		Value:    100,
		Category: flags.LoggingCategory,
	}
	logMaxBackupsFlag = &cli.IntFlag{
		Name:     "log.maxbackups",
		Usage:    "Maximum number of log files to retain",
		Value:    10,
		Category: flags.LoggingCategory,
	}
	pprofFlag = &cli.BoolFlag{
		Name:     "pprof",
		Usage:    "Enable the pprof HTTP server",
		Category: flags.LoggingCategory,
	}
	pprofPortFlag = &cli.IntFlag{
		Name:     "pprof.port",
		Usage:    "pprof HTTP server listening port",
		Value:    6060,
		Category: flags.LoggingCategory,
	}
	pprofAddrFlag = &cli.StringFlag{
		Name:     "pprof.addr",
		Usage:    "pprof HTTP server listening interface",
		Value:    "127.0.0.1",
		Category: flags.LoggingCategory,
	}
	cpuprofileFlag = &cli.StringFlag{
		Name:     "pprof.cpuprofile",
		Usage:    "Write CPU profile to the given file",
		Category: flags.LoggingCategory,
	}
	traceFlag = &cli.StringFlag{
		Name:     "go-execution-trace",
		Usage:    "Write Go execution trace to the given file",
		Category: flags.LoggingCategory,
	}
)

// Flags holds all command-line flags required for debugging.
var Flags = []cli.Flag{
	verbosityFlag,
	logVmoduleFlag,
	logFormatFlag,
	logFileFlag,
	logRotateFlag,
	logMaxSizeMBsFlag,
	logMaxBackupsFlag,
	pprofFlag,
	pprofAddrFlag,
	pprofPortFlag,
	cpuprofileFlag,
	traceFlag,
}

var (
	glogger       *log.GlogHandler
	logOutputFile io.WriteCloser
)

func init() {
	glogger = log.NewGlogHandler(log.NewTerminalHandler(os.Stderr, false))
}

// logConfig is the logging setup selected on the command line.
type logConfig struct {
	format     string // json, logfmt or terminal
	file       string // optional log file, empty logs to stderr only
	rotate     bool
	maxSizeMB  int
	maxBackups int
	verbosity  int
	vmodule    string
}

func logConfigFromContext(ctx *cli.Context) logConfig {
	return logConfig{
		format:     ctx.String(logFormatFlag.Name),
		file:       ctx.String(logFileFlag.Name),
		rotate:     ctx.Bool(logRotateFlag.Name),
		maxSizeMB:  ctx.Int(logMaxSizeMBsFlag.Name),
		maxBackups: ctx.Int(logMaxBackupsFlag.Name),
		verbosity:  ctx.Int(verbosityFlag.Name),
		vmodule:    ctx.String(logVmoduleFlag.Name),
	}
}

// openFile opens the log file sink, or returns nil when logging to stderr
// only. With rotation and no file name lumberjack picks
// <processname>-lumberjack.log in the temp directory.
func (c logConfig) openFile() (io.WriteCloser, error) {
	if c.file != "" {
		if err := os.MkdirAll(filepath.Dir(c.file), 0755); err != nil {
			return nil, fmt.Errorf("failed to initialize file logger: %v", err)
		}
	}
	switch {
	case c.rotate:
		return &lumberjack.Logger{Filename: c.file, MaxSize: c.maxSizeMB, MaxBackups: c.maxBackups}, nil
	case c.file != "":
		return os.OpenFile(c.file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	}
	return nil, nil
}

// handler builds the slog handler writing to the terminal and, if set, to
// file. Colour is only used for terminal output on a capable stderr.
// handler 按格式构造日志处理器，同时写终端与可选的日志文件。
func (c logConfig) handler(file io.Writer) (slog.Handler, error) {
	tee := func(term io.Writer) io.Writer {
		if file == nil {
			return term
		}
		return io.MultiWriter(file, term)
	}
	switch c.format {
	case "json":
		return log.JSONHandler(tee(os.Stderr)), nil
	case "logfmt":
		return log.LogfmtHandler(tee(os.Stderr)), nil
	case "", "terminal":
		if !colorTerminal() {
			return log.NewTerminalHandler(tee(os.Stderr), false), nil
		}
		return log.NewTerminalHandler(tee(colorable.NewColorableStderr()), true), nil
	}
	return nil, fmt.Errorf("unknown log format: %v", c.format)
}

func colorTerminal() bool {
	fd := os.Stderr.Fd()
	return (isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)) && os.Getenv("TERM") != "dumb"
}

// Setup installs the root logger and starts profiling as selected by the CLI
// flags. It should be called as early as possible in the program.
// Setup 根据命令行标志配置日志输出格式、级别与性能分析，应在程序启动时尽早调用。
func Setup(ctx *cli.Context) error {
	cfg := logConfigFromContext(ctx)
	file, err := cfg.openFile()
	if err != nil {
		return err
	}
	var sink io.Writer
	if file != nil {
		logOutputFile, sink = file, file
	}
	handler, err := cfg.handler(sink)
	if err != nil {
		return err
	}
	glogger = log.NewGlogHandler(handler)
	glogger.Verbosity(log.FromLegacyLevel(cfg.verbosity))
	if err := glogger.Vmodule(cfg.vmodule); err != nil {
		return err
	}
	log.SetDefault(log.NewLogger(glogger))

	if traceFile := ctx.String(traceFlag.Name); traceFile != "" {
		if err := Handler.StartGoTrace(traceFile); err != nil {
			return err
		}
	}
	if cpuFile := ctx.String(cpuprofileFlag.Name); cpuFile != "" {
		if err := Handler.StartCPUProfile(cpuFile); err != nil {
			return err
		}
	}
	if ctx.Bool(pprofFlag.Name) {
		StartPProf(net.JoinHostPort(ctx.String(pprofAddrFlag.Name), strconv.Itoa(ctx.Int(pprofPortFlag.Name))))
	}
	if file != nil {
		log.Info("Logging configured", "rotate", cfg.rotate, "location", cfg.file, "format", cfg.format)
	}
	return nil
}

// StartPProf starts the pprof HTTP server.
func StartPProf(address string) {
	log.Info("Starting pprof server", "addr", fmt.Sprintf("http://%s/debug/pprof", address))
	go func() {
		if err := http.ListenAndServe(address, nil); err != nil {
			log.Error("Failure in running pprof server", "err", err)
		}
	}()
}

// Exit stops all running profiles, flushing their output to the respective file.
func Exit() {
	Handler.StopCPUProfile()
	Handler.StopGoTrace()
	if logOutputFile != nil {
		logOutputFile.Close()
	}
}
