// Copyright 2023 The go-ethereum Authors
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

package flags

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestPathExpansion(t *testing.T) {
	home := HomeDir()
	t.Setenv("DDDXXX", "/tmp")
	tests := map[string]string{
		"/home/someuser/tmp": "/home/someuser/tmp",
		"~/tmp":              filepath.Join(home, "tmp"),
		"~thisOtherUser/b/":  "~thisOtherUser/b",
		"$DDDXXX/a/b":        "/tmp/a/b",
		"/a/b/":              "/a/b",
		"/a/b/../c":          "/a/c",
	}
	for test, expected := range tests {
		assert.Equal(t, expected, expandPath(test), test)
	}
}

func runApp(t *testing.T, flags []cli.Flag, args ...string) *cli.Context {
	t.Helper()
	var captured *cli.Context
	app := &cli.App{
		Flags:  flags,
		Writer: os.Stdout,
		Action: func(ctx *cli.Context) error {
			captured = ctx
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"app"}, args...)))
	return captured
}

func TestBigFlag(t *testing.T) {
	flag := &BigFlag{Name: "value", Value: big.NewInt(7)}
	ctx := runApp(t, []cli.Flag{flag}, "--value", "0x100")
	assert.Equal(t, big.NewInt(256), GlobalBig(ctx, "value"))
	assert.Equal(t, "7", flag.GetDefaultText())

	flag = &BigFlag{Name: "value", Value: big.NewInt(7)}
	ctx = runApp(t, []cli.Flag{flag})
	assert.Equal(t, big.NewInt(7), GlobalBig(ctx, "value"))
}

func TestDirectoryFlag(t *testing.T) {
	flag := &DirectoryFlag{Name: "datadir"}
	ctx := runApp(t, []cli.Flag{flag}, "--datadir", "/a/b/../c/")
	assert.Equal(t, "/a/c", ctx.String("datadir"))
}

func TestCheckExclusive(t *testing.T) {
	flags := []cli.Flag{&cli.BoolFlag{Name: "snap"}, &cli.BoolFlag{Name: "nosync"}}
	app := &cli.App{Flags: flags, Before: CheckExclusive, Action: func(*cli.Context) error { return nil }}
	assert.Error(t, app.Run([]string{"app", "--snap", "--nosync"}))
	assert.NoError(t, app.Run([]string{"app", "--snap"}))
}
