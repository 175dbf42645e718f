// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/agora-dao/agora/genesis"
	"github.com/agora-dao/agora/log"
)

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".agora")
	}
	return ".agora"
}

func initLogger(ctx *cli.Context) {
	log.SetVerbosity(log.FromLegacyLevel(ctx.Int(verbosityFlag.Name)))

	output := os.Stdout
	if ctx.Bool(jsonLogsFlag.Name) || !isatty.IsTerminal(output.Fd()) {
		log.SetDefault(log.NewLogger(log.JSONHandler(output)))
	} else {
		log.SetDefault(log.NewLogger(log.LogfmtHandler(output)))
	}
}

func makeDataDir(ctx *cli.Context) (string, error) {
	dir := ctx.String(dataDirFlag.Name)
	if dir == "" {
		return "", errors.New("unable to infer default data dir, use -data-dir option")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", errors.Wrapf(err, "create data dir [%v]", dir)
	}
	return dir, nil
}

func loadGenesis(ctx *cli.Context) (*genesis.Genesis, error) {
	if path := ctx.String(genesisFlag.Name); path != "" {
		return genesis.Load(path)
	}
	return genesis.Devnet(), nil
}
