// Copyright 2019 The go-ethereum Authors
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
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/sunyihoo/evmsync/internal/version"
)

// NewApp creates an app with sane defaults.
// NewApp 创建带有统一版本信息的命令行应用。
func NewApp(usage string) *cli.App {
	git, _ := version.VCS()
	app := cli.NewApp()
	app.EnableBashCompletion = true
	app.Name = filepath.Base(os.Args[0])
	app.Version = version.WithCommit(git.Commit, git.Date)
	app.Usage = usage
	app.Copyright = "Copyright 2013-2026 The go-ethereum Authors"
	app.Before = func(ctx *cli.Context) error {
		return CheckExclusive(ctx)
	}
	return app
}

// exclusiveGroups lists flags that must not be combined.
var exclusiveGroups = [][]string{
	{"snap", "nosync"},
}

// CheckExclusive reports an error when more than one flag of an exclusive
// group is set.
// CheckExclusive 检查互斥的标志是否被同时设置。
func CheckExclusive(ctx *cli.Context) error {
	for _, group := range exclusiveGroups {
		var set []string
		for _, name := range group {
			if ctx.IsSet(name) {
				set = append(set, "--"+name)
			}
		}
		if len(set) > 1 {
			return fmt.Errorf("flags %v can't be used at the same time", set)
		}
	}
	return nil
}
