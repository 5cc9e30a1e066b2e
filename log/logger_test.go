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
	"bytes"
	"encoding/json"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestWriteTimeTermFormat(t *testing.T) {
	var b bytes.Buffer
	writeTimeTermFormat(&b, time.Date(2024, 3, 7, 9, 5, 2, 45_000_000, time.UTC))
	require.Equal(t, "03-07|09:05:02.045", b.String())
}

func TestFormatSlogValue(t *testing.T) {
	huge, _ := new(big.Int).SetString("1000000000000000000000", 10)
	tests := []struct {
		in   slog.Value
		want string
	}{
		{slog.Int64Value(99999), "99999"},
		{slog.Int64Value(1234567), "1,234,567"},
		{slog.Int64Value(-1234567), "-1,234,567"},
		{slog.Uint64Value(100000), "100,000"},
		{slog.AnyValue(huge), "1,000,000,000,000,000,000,000"},
		{slog.AnyValue(new(big.Int).Neg(huge)), "-1,000,000,000,000,000,000,000"},
		{slog.AnyValue((*big.Int)(nil)), "<nil>"},
		{slog.AnyValue(uint256.NewInt(123456)), "123,456"},
		{slog.StringValue("plain"), "plain"},
		{slog.StringValue("two words"), `"two words"`},
		{slog.StringValue("a\"b"), `"a\"b"`},
		{slog.BoolValue(true), "true"},
		{slog.AnyValue(nil), "<nil>"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, string(FormatSlogValue(tt.in, nil)), "value %v", tt.in)
	}
}

func TestTerminalHandler(t *testing.T) {
	var out bytes.Buffer
	l := NewLogger(NewTerminalHandlerWithLevel(&out, LevelInfo, false))

	l.Debug("hidden")
	require.Zero(t, out.Len())

	l.Info("first", "k", "abcdef", "z", 1)
	l.Info("second", "k", "a", "z", 1)
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "INFO ["))
	require.Contains(t, lines[0], "logger_test.go:")
	require.Contains(t, lines[0], "k=abcdef z=1")
	require.Contains(t, lines[1], "k=a"+strings.Repeat(" ", 6)+"z=1")
}

func TestTerminalHandlerColor(t *testing.T) {
	var out bytes.Buffer
	NewLogger(NewTerminalHandler(&out, true)).Warn("careful")
	require.True(t, strings.HasPrefix(out.String(), levelColors[LevelWarn]+"WARN "+colorReset))
}

func TestOddArguments(t *testing.T) {
	var out bytes.Buffer
	NewLogger(NewTerminalHandler(&out, false)).Info("odd", "dangling")
	require.Contains(t, out.String(), errorKey)
}

func TestLogfmtHandler(t *testing.T) {
	var out bytes.Buffer
	l := NewLogger(LogfmtHandlerWithLevel(&out, LevelInfo))
	l.Debug("hidden")
	l.Info("hello", "n", big.NewInt(5), "u", uint256.NewInt(7))

	line := out.String()
	require.Contains(t, line, "lvl=info")
	require.Contains(t, line, "msg=hello")
	require.Contains(t, line, "n=5")
	require.Contains(t, line, "u=7")
	require.True(t, strings.HasPrefix(line, "t="))
	require.NotContains(t, line, "hidden")
}

func TestJSONHandler(t *testing.T) {
	var out bytes.Buffer
	NewLogger(JSONHandler(&out)).Error("broken", "block", big.NewInt(12))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	require.Equal(t, "error", rec["lvl"])
	require.Equal(t, "broken", rec["msg"])
	require.Equal(t, "12", rec["block"])
	require.Contains(t, rec, "t")
}

func TestNewHandler(t *testing.T) {
	for _, name := range []string{"", "terminal", "logfmt", "json"} {
		h, err := NewHandler(name, new(bytes.Buffer), false)
		require.NoError(t, err, name)
		require.NotNil(t, h)
	}
	_, err := NewHandler("xml", new(bytes.Buffer), false)
	require.Error(t, err)
}

func TestLevels(t *testing.T) {
	require.Equal(t, LevelCrit, FromLegacyLevel(0))
	require.Equal(t, LevelError, FromLegacyLevel(1))
	require.Equal(t, LevelWarn, FromLegacyLevel(2))
	require.Equal(t, LevelInfo, FromLegacyLevel(3))
	require.Equal(t, LevelDebug, FromLegacyLevel(4))
	require.Equal(t, LevelTrace, FromLegacyLevel(5))
	require.Equal(t, LevelTrace, FromLegacyLevel(9))
	require.Equal(t, LevelCrit, FromLegacyLevel(-1))

	lvl, ok := LevelFromString(" DEBUG ")
	require.True(t, ok)
	require.Equal(t, LevelDebug, lvl)
	_, ok = LevelFromString("loud")
	require.False(t, ok)

	require.Equal(t, "INFO ", LevelAlignedString(LevelInfo))
	require.Equal(t, "TRACE", LevelAlignedString(LevelTrace))
	require.Equal(t, "unknown", LevelString(slog.Level(3)))
}

func TestGlogHandler(t *testing.T) {
	var out bytes.Buffer
	glog := NewGlogHandler(NewTerminalHandler(&out, false))
	glog.Verbosity(LevelWarn)
	l := NewLogger(glog)

	l.Info("quiet")
	require.Zero(t, out.Len())
	l.Warn("loud")
	require.Contains(t, out.String(), "loud")

	require.NoError(t, glog.Vmodule("logger_test.go=4"))
	out.Reset()
	l.Debug("by file")
	l.Trace("too deep")
	require.Contains(t, out.String(), "by file")
	require.NotContains(t, out.String(), "too deep")

	require.NoError(t, glog.Vmodule("unrelated/*=5"))
	out.Reset()
	l.Debug("filtered")
	require.Zero(t, out.Len())

	require.ErrorIs(t, glog.Vmodule("nolevel"), errVmoduleSyntax)
	require.ErrorIs(t, glog.Vmodule("file.go=x"), errVmoduleSyntax)
}

func TestSetDefault(t *testing.T) {
	prev := Root()
	defer SetDefault(prev)

	var out bytes.Buffer
	SetDefault(NewLogger(NewTerminalHandler(&out, false)))
	New("peer", "p1").Info("child")
	require.Contains(t, out.String(), "peer=p1")
}
