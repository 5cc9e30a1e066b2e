// Copyright 2014 The go-ethereum Authors
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

package log

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

var errVmoduleSyntax = errors.New("expect comma-separated list of filename=N")

// GlogHandler filters records by a global verbosity, optionally raised for
// individual source files through a vmodule ruleset such as
// "downloader=5,p2p/*=4". It forwards the records it keeps to origin.
// GlogHandler 按全局详细度过滤日志，并可通过 vmodule 规则为特定源文件提高详细度。
type GlogHandler struct {
	origin slog.Handler

	level    atomic.Int32
	override atomic.Bool // set when patterns is non-empty

	lock      sync.RWMutex
	patterns  []pattern
	siteCache map[uintptr]slog.Level // call site => effective level
}

type pattern struct {
	re    *regexp.Regexp
	level slog.Level
}

// NewGlogHandler wraps h. The initial verbosity is info.
func NewGlogHandler(h slog.Handler) *GlogHandler {
	g := &GlogHandler{origin: h, siteCache: make(map[uintptr]slog.Level)}
	g.level.Store(int32(LevelInfo))
	return g
}

// Verbosity sets the global level.
func (h *GlogHandler) Verbosity(level slog.Level) {
	h.level.Store(int32(level))
}

// Vmodule installs a per-file ruleset. Each rule is path=N where N is a 0-5
// verbosity; a path without ".go" matches every file of that package and
// "*" matches any number of directories.
// Vmodule 设置按文件的规则，格式为 path=N。
func (h *GlogHandler) Vmodule(ruleset string) error {
	var filter []pattern
	for _, rule := range strings.Split(ruleset, ",") {
		if rule = strings.TrimSpace(rule); rule == "" {
			continue
		}
		path, verbosity, ok := strings.Cut(rule, "=")
		path, verbosity = strings.TrimSpace(path), strings.TrimSpace(verbosity)
		if !ok || path == "" || verbosity == "" || strings.Contains(verbosity, "=") {
			return errVmoduleSyntax
		}
		n, err := strconv.Atoi(verbosity)
		if err != nil {
			return errVmoduleSyntax
		}
		level := FromLegacyLevel(n)
		if level == LevelCrit {
			continue
		}
		filter = append(filter, pattern{re: compileVmodule(path), level: level})
	}
	h.lock.Lock()
	defer h.lock.Unlock()

	h.patterns = filter
	h.siteCache = make(map[uintptr]slog.Level)
	h.override.Store(len(filter) != 0)
	return nil
}

func compileVmodule(path string) *regexp.Regexp {
	expr := ".*"
	for _, comp := range strings.Split(path, "/") {
		switch comp {
		case "":
		case "*":
			expr += "(/.*)?"
		default:
			expr += "/" + regexp.QuoteMeta(comp)
		}
	}
	if !strings.HasSuffix(path, ".go") {
		expr += `/[^/]+\.go`
	}
	return regexp.MustCompile(expr + "$")
}

// Enabled is permissive while vmodule rules exist since the decision then
// depends on the call site, known only in Handle.
func (h *GlogHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return h.override.Load() || slog.Level(h.level.Load()) <= lvl
}

func (h *GlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(h.origin.WithAttrs(attrs))
}

func (h *GlogHandler) WithGroup(name string) slog.Handler {
	return h.derive(h.origin.WithGroup(name))
}

// derive copies the filter settings onto a handler wrapping origin.
func (h *GlogHandler) derive(origin slog.Handler) *GlogHandler {
	h.lock.RLock()
	child := &GlogHandler{
		origin:    origin,
		patterns:  append([]pattern(nil), h.patterns...),
		siteCache: maps.Clone(h.siteCache),
	}
	h.lock.RUnlock()

	child.level.Store(h.level.Load())
	child.override.Store(h.override.Load())
	return child
}

func (h *GlogHandler) Handle(ctx context.Context, r slog.Record) error {
	if slog.Level(h.level.Load()) <= r.Level {
		return h.origin.Handle(ctx, r)
	}
	if h.siteLevel(r.PC) <= r.Level {
		return h.origin.Handle(ctx, r)
	}
	return nil
}

// siteLevel resolves the vmodule level of a call site, caching the result.
// Sites matching no rule resolve to crit.
func (h *GlogHandler) siteLevel(pc uintptr) slog.Level {
	h.lock.RLock()
	lvl, ok := h.siteCache[pc]
	h.lock.RUnlock()
	if ok {
		return lvl
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()

	h.lock.Lock()
	defer h.lock.Unlock()

	lvl = LevelCrit
	for _, rule := range h.patterns {
		if rule.re.MatchString("+" + frame.File) {
			lvl = rule.level
		}
	}
	h.siteCache[pc] = lvl
	return lvl
}
