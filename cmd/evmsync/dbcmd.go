// Copyright 2020 The go-ethereum Authors
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
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/sunyihoo/evmsync/core/rawdb"
	"github.com/sunyihoo/evmsync/ethdb"
	"github.com/sunyihoo/evmsync/log"
)

var (
	dbCommand = &cli.Command{
		Name:  "db",
		Usage: "Low level database operations",
		Subcommands: []*cli.Command{
			dbStatCmd,
		},
	}
	dbStatCmd = &cli.Command{
		Action: inspectStats,
		Name:   "stats",
		Usage:  "Print leveldb or pebble statistics and the stored chain heads",
		Flags:  append([]cli.Flag{}, nodeFlags...),
	}
)

func inspectStats(ctx *cli.Context) error {
	stack, cfg := makeConfigNode(ctx)
	defer stack.Close()

	db, err := stack.OpenDatabase("chaindata", cfg.Eth.DatabaseCache, cfg.Eth.DatabaseHandles, "", true)
	if err != nil {
		return err
	}
	defer db.Close()

	showDBStats(db)
	showChainHeads(db)
	return nil
}

func showDBStats(db ethdb.KeyValueStater) {
	stats, err := db.Stat()
	if err != nil {
		log.Warn("Failed to read database stats", "error", err)
		return
	}
	fmt.Println(stats)
}

// showChainHeads prints the head markers the chain keeps in the database.
func showChainHeads(db ethdb.Database) {
	fmt.Printf("Head header:     %x\n", rawdb.ReadHeadHeaderHash(db))
	fmt.Printf("Head block:      %x\n", rawdb.ReadHeadBlockHash(db))
	fmt.Printf("Head fast block: %x\n", rawdb.ReadHeadFastBlockHash(db))
}
