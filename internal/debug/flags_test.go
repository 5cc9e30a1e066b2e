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
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

func newContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range Flags {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestLogConfigFromContext(t *testing.T) {
	cfg := logConfigFromContext(newContext(t, "--log.format", "json", "--verbosity", "5", "--log.vmodule", "p2p=4"))
	assert.Equal(t, logConfig{
		format:     "json",
		maxSizeMB:  100,
		maxBackups: 10,
		verbosity:  5,
		vmodule:    "p2p=4",
	}, cfg)
}

func TestLogConfigOpenFile(t *testing.T) {
	file, err := logConfig{}.openFile()
	require.NoError(t, err)
	assert.Nil(t, file)

	path := filepath.Join(t.TempDir(), "logs", "evmsync.log")
	file, err = logConfig{file: path}.openFile()
	require.NoError(t, err)
	_, err = file.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, file.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	file, err = logConfig{file: path, rotate: true, maxSizeMB: 7, maxBackups: 2}.openFile()
	require.NoError(t, err)
	lj, ok := file.(*lumberjack.Logger)
	require.True(t, ok)
	assert.Equal(t, 7, lj.MaxSize)
	assert.Equal(t, 2, lj.MaxBackups)
}

func TestLogConfigHandler(t *testing.T) {
	var buf bytes.Buffer
	for _, format := range []string{"json", "logfmt", "terminal", ""} {
		h, err := logConfig{format: format}.handler(&buf)
		require.NoError(t, err, format)
		assert.NotNil(t, h)
	}
	_, err := logConfig{format: "xml"}.handler(nil)
	assert.EqualError(t, err, "unknown log format: xml")
}

func TestSetupRejectsBadVmodule(t *testing.T) {
	err := Setup(newContext(t, "--log.vmodule", "p2p=notalevel"))
	assert.Error(t, err)
}
