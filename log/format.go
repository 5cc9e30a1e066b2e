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
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/holiman/uint256"
)

const (
	timeFormat        = "2006-01-02T15:04:05-0700"
	floatFormat       = 'f'
	termMsgJust       = 40 // message column width when attributes follow
	termCtxMaxPadding = 40 // widest value that still takes part in column alignment
)

var spaces = bytes.Repeat([]byte{' '}, termMsgJust)

// levelColors holds the ANSI escape used for each level name.
var levelColors = map[slog.Level]string{
	LevelCrit:  "\x1b[35m",
	LevelError: "\x1b[31m",
	LevelWarn:  "\x1b[33m",
	LevelInfo:  "\x1b[32m",
	LevelDebug: "\x1b[36m",
	LevelTrace: "\x1b[34m",
}

const colorReset = "\x1b[0m"

// TerminalStringer is implemented by values that have a shorter rendering
// for the terminal than their String method, such as abbreviated hashes.
// TerminalStringer 供类型提供终端下更简短的显示形式。
type TerminalStringer interface {
	TerminalString() string
}

func (h *TerminalHandler) format(buf []byte, r slog.Record, usecolor bool) []byte {
	var color string
	if usecolor {
		color = levelColors[r.Level]
	}
	if buf == nil {
		buf = make([]byte, 0, 30+termMsgJust)
	}
	b := bytes.NewBuffer(buf)

	if color != "" {
		b.WriteString(color)
		b.WriteString(LevelAlignedString(r.Level))
		b.WriteString(colorReset)
	} else {
		b.WriteString(LevelAlignedString(r.Level))
	}
	b.WriteByte('[')
	writeTimeTermFormat(b, r.Time)
	b.WriteString("] ")
	b.WriteString(h.Source(r).String())
	b.WriteByte(' ')

	msg := escapeMessage(r.Message)
	b.WriteString(msg)
	if r.NumAttrs()+len(h.attrs) > 0 && len(msg) < termMsgJust {
		b.Write(spaces[:termMsgJust-len(msg)])
	}
	h.formatAttributes(b, r, color)
	return b.Bytes()
}

// formatAttributes writes the handler and record attributes as key=value
// pairs, padding each value to the widest one seen for its key.
func (h *TerminalHandler) formatAttributes(buf *bytes.Buffer, r slog.Record, color string) {
	total := len(h.attrs) + r.NumAttrs()
	n := 0
	write := func(attr slog.Attr) {
		n++
		buf.WriteByte(' ')
		if color != "" {
			buf.WriteString(color)
			buf.Write(appendEscapeString(buf.AvailableBuffer(), attr.Key))
			buf.WriteString(colorReset)
		} else {
			buf.Write(appendEscapeString(buf.AvailableBuffer(), attr.Key))
		}
		buf.WriteByte('=')

		val := FormatSlogValue(attr.Value, buf.AvailableBuffer())
		width := utf8.RuneCount(val)
		pad := h.fieldPadding[attr.Key]
		if width > pad && width <= termCtxMaxPadding {
			pad = width
			h.fieldPadding[attr.Key] = pad
		}
		buf.Write(val)
		if n < total && pad > width {
			buf.Write(spaces[:pad-width])
		}
	}
	for _, attr := range h.attrs {
		write(attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		write(attr)
		return true
	})
	buf.WriteByte('\n')
}

// FormatSlogValue renders v for the terminal. Integers get thousands
// separators and nil pointers print as <nil>.
// FormatSlogValue 为终端输出格式化属性值：整数带千位分隔符，空指针输出 <nil>。
func FormatSlogValue(v slog.Value, tmp []byte) (result []byte) {
	var value any
	defer func() {
		if err := recover(); err != nil {
			if isNil(value) {
				result = []byte("<nil>")
				return
			}
			panic(err)
		}
	}()

	switch v.Kind() {
	case slog.KindString:
		return appendEscapeString(tmp, v.String())
	case slog.KindInt64:
		return appendInt64(tmp, v.Int64())
	case slog.KindUint64:
		return appendUint64(tmp, v.Uint64(), false)
	case slog.KindFloat64:
		return strconv.AppendFloat(tmp, v.Float64(), floatFormat, 3, 64)
	case slog.KindBool:
		return strconv.AppendBool(tmp, v.Bool())
	case slog.KindTime:
		return v.Time().AppendFormat(tmp, timeFormat)
	case slog.KindDuration:
		value = v.Duration()
	default:
		value = v.Any()
	}
	if value == nil {
		return []byte("<nil>")
	}
	switch v := value.(type) {
	case *big.Int:
		return appendBigInt(tmp, v)
	case *uint256.Int:
		return appendU256(tmp, v)
	case error:
		return appendEscapeString(tmp, v.Error())
	case TerminalStringer:
		return appendEscapeString(tmp, v.TerminalString())
	case fmt.Stringer:
		return appendEscapeString(tmp, v.String())
	}
	formatted := fmt.Appendf(tmp, "%+v", value)
	return appendEscapeString(tmp[:0], string(formatted))
}

func appendInt64(dst []byte, n int64) []byte {
	if n < 0 {
		return appendUint64(dst, uint64(-n), true)
	}
	return appendUint64(dst, uint64(n), false)
}

// appendUint64 writes n with a comma every three digits. Values below
// 100000 are written plainly.
func appendUint64(dst []byte, n uint64, neg bool) []byte {
	if n < 100000 {
		if neg {
			return strconv.AppendInt(dst, -int64(n), 10)
		}
		return strconv.AppendInt(dst, int64(n), 10)
	}
	digits := strconv.AppendUint(nil, n, 10)
	if neg {
		dst = append(dst, '-')
	}
	return appendGrouped(dst, digits)
}

// appendGrouped copies the decimal digits into dst, inserting commas.
func appendGrouped(dst, digits []byte) []byte {
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	dst = append(dst, digits[:lead]...)
	for i := lead; i < len(digits); i += 3 {
		dst = append(dst, ',')
		dst = append(dst, digits[i:i+3]...)
	}
	return dst
}

// FormatLogfmtUint64 formats n with thousands separators.
func FormatLogfmtUint64(n uint64) string {
	return string(appendUint64(nil, n, false))
}

func appendBigInt(dst []byte, n *big.Int) []byte {
	if n.IsUint64() {
		return appendUint64(dst, n.Uint64(), false)
	}
	if n.IsInt64() {
		return appendInt64(dst, n.Int64())
	}
	text := n.Text(10)
	if text[0] == '-' {
		dst = append(dst, '-')
		text = text[1:]
	}
	return appendGrouped(dst, []byte(text))
}

func appendU256(dst []byte, n *uint256.Int) []byte {
	if n.IsUint64() {
		return appendUint64(dst, n.Uint64(), false)
	}
	return append(dst, n.PrettyDec(',')...)
}

// appendEscapeString appends s, quoted when it holds a space or '=' and
// Go-escaped when it holds control, quote or non-ASCII characters.
// appendEscapeString 追加字符串：含空格或等号时加引号，含控制字符或非 ASCII 字符时转义。
func appendEscapeString(dst []byte, s string) []byte {
	quote := false
	for _, r := range s {
		if r == ' ' || r == '=' {
			quote = true
			continue
		}
		if r <= '"' || r > '~' {
			return strconv.AppendQuote(dst, s)
		}
	}
	if quote {
		dst = append(dst, '"')
		dst = append(dst, s...)
		return append(dst, '"')
	}
	return append(dst, s...)
}

// escapeMessage quotes the log message only when it carries characters that
// would break the line format. Tabs and line breaks are left alone.
func escapeMessage(s string) string {
	for _, r := range s {
		if r == '\r' || r == '\n' || r == '\t' {
			continue
		}
		if r < ' ' || r > '~' || r == '=' {
			return strconv.Quote(s)
		}
	}
	return s
}

// writeTimeTermFormat writes t as "MM-DD|HH:MM:SS.mmm".
func writeTimeTermFormat(buf *bytes.Buffer, t time.Time) {
	_, month, day := t.Date()
	hour, min, sec := t.Clock()

	writePosIntWidth(buf, int(month), 2)
	buf.WriteByte('-')
	writePosIntWidth(buf, day, 2)
	buf.WriteByte('|')
	writePosIntWidth(buf, hour, 2)
	buf.WriteByte(':')
	writePosIntWidth(buf, min, 2)
	buf.WriteByte(':')
	writePosIntWidth(buf, sec, 2)
	buf.WriteByte('.')
	writePosIntWidth(buf, t.Nanosecond()/int(time.Millisecond), 3)
}

// writePosIntWidth writes the non-negative i zero-padded to width digits.
func writePosIntWidth(b *bytes.Buffer, i, width int) {
	if i < 0 {
		panic("negative int")
	}
	var digits [20]byte
	pos := len(digits)
	for i >= 10 || width > 1 {
		pos--
		digits[pos] = byte('0' + i%10)
		i /= 10
		width--
	}
	pos--
	digits[pos] = byte('0' + i)
	b.Write(digits[pos:])
}
