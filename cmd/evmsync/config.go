// Copyright 2017 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"

	"github.com/sunyihoo/evmsync/cmd/utils"
	"github.com/sunyihoo/evmsync/core"
	"github.com/sunyihoo/evmsync/eth"
	"github.com/sunyihoo/evmsync/eth/catalyst"
	"github.com/sunyihoo/evmsync/eth/ethconfig"
	"github.com/sunyihoo/evmsync/internal/flags"
	"github.com/sunyihoo/evmsync/internal/version"
	"github.com/sunyihoo/evmsync/log"
	"github.com/sunyihoo/evmsync/node"
)

var (
	dumpConfigCommand = &cli.Command{
		Action:      dumpConfig,
		Name:        "dumpconfig",
		Usage:       "Export configuration values in a TOML format",
		ArgsUsage:   "<dumpfile (optional)>",
		Flags:       append(append([]cli.Flag{}, nodeFlags...), rpcFlags...),
		Description: `Export configuration values in TOML format (to stdout by default).`,
	}

	configFileFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "TOML configuration file",
		Category: flags.EthCategory,
	}
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

type evmsyncConfig struct {
	Eth  ethconfig.Config
	Node node.Config
}

func loadConfig(file string, cfg *evmsyncConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

func defaultNodeConfig() node.Config {
	git, _ := version.VCS()
	cfg := node.DefaultConfig
	cfg.Name = clientIdentifier
	cfg.Version = version.WithCommit(git.Commit, git.Date)
	cfg.HTTP.Modules = append(cfg.HTTP.Modules, "eth")
	cfg.WS.Modules = append(cfg.WS.Modules, "eth")
	return cfg
}

// loadBaseConfig loads the evmsyncConfig based on the given command line
// parameters and config file.
// loadBaseConfig 依次应用默认值、配置文件与命令行标志，得到最终配置。
func loadBaseConfig(ctx *cli.Context) (evmsyncConfig, error) {
	// Load defaults.
	cfg := evmsyncConfig{
		Eth:  ethconfig.Defaults,
		Node: defaultNodeConfig(),
	}
	// Load config file.
	if file := ctx.String(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, err
		}
	}
	if file := ctx.String(utils.GenesisFlag.Name); file != "" {
		genesis, err := core.LoadGenesis(file)
		if err != nil {
			return cfg, err
		}
		cfg.Eth.Genesis = genesis
	}
	// Apply flags.
	utils.SetNodeConfig(ctx, &cfg.Node)
	utils.SetEthConfig(ctx, &cfg.Eth)
	return cfg, nil
}

// makeConfigNode loads evmsync configuration and creates a blank node instance.
func makeConfigNode(ctx *cli.Context) (*node.Node, evmsyncConfig) {
	cfg, err := loadBaseConfig(ctx)
	if err != nil {
		utils.Fatalf("%v", err)
	}
	stack, err := node.New(&cfg.Node)
	if err != nil {
		utils.Fatalf("Failed to create the protocol stack: %v", err)
	}
	return stack, cfg
}

// makeFullNode loads evmsync configuration and creates the Ethereum backend.
func makeFullNode(ctx *cli.Context) *node.Node {
	stack, cfg := makeConfigNode(ctx)

	backend, err := eth.New(stack, &cfg.Eth)
	if err != nil {
		utils.Fatalf("Failed to register the Ethereum service: %v", err)
	}
	if err := catalyst.Register(stack, backend); err != nil {
		utils.Fatalf("Failed to register the Engine API service: %v", err)
	}
	log.Info("Ethereum service registered", "network", backend.NetVersion(), "datadir", stack.DataDir())
	return stack
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg, err := loadBaseConfig(ctx)
	if err != nil {
		return err
	}
	comment := ""
	if cfg.Eth.Genesis != nil {
		cfg.Eth.Genesis = nil
		comment += "# Note: this config doesn't contain the genesis block.\n\n"
	}
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	dump := os.Stdout
	if ctx.NArg() > 0 {
		dump, err = os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer dump.Close()
	}
	dump.WriteString(comment)
	dump.Write(out)
	return nil
}
