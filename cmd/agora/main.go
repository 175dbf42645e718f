// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/agora-dao/agora/api"
	"github.com/agora-dao/agora/auditdb"
	"github.com/agora-dao/agora/log"
	"github.com/agora-dao/agora/lvldb"
	"github.com/agora-dao/agora/metrics"
	"github.com/agora-dao/agora/node"
)

var (
	version   string
	gitCommit string
	release   = "dev"

	logger = log.WithContext("pkg", "main")
)

func fullVersion() string {
	if gitCommit == "" {
		return fmt.Sprintf("%s-%s", version, release)
	}
	return fmt.Sprintf("%s-%s-%s", version, release, gitCommit[:8])
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "agora",
		Usage:     "decentralized governance engine",
		Copyright: "2025 The Agora developers",
		Flags: []cli.Flag{
			dataDirFlag,
			genesisFlag,
			apiAddrFlag,
			apiCorsFlag,
			verbosityFlag,
			jsonLogsFlag,
			enableMetricsFlag,
			housekeepIntervalFlag,
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	initLogger(ctx)

	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
	}

	gene, err := loadGenesis(ctx)
	if err != nil {
		return err
	}
	dataDir, err := makeDataDir(ctx)
	if err != nil {
		return err
	}

	store, err := lvldb.New(filepath.Join(dataDir, "main.db"), lvldb.Options{})
	if err != nil {
		return err
	}
	defer store.Close()

	audit, err := auditdb.New(filepath.Join(dataDir, "audit.db"))
	if err != nil {
		return err
	}
	defer audit.Close()

	n, err := node.New(store, audit, gene, node.Options{
		HousekeepInterval: ctx.Duration(housekeepIntervalFlag.Name),
	})
	if err != nil {
		return err
	}
	defer n.Close()

	handler := api.New(n, audit, api.Options{
		AllowedOrigins: ctx.String(apiCorsFlag.Name),
		EnableMetrics:  ctx.Bool(enableMetricsFlag.Name),
	})
	listener, err := net.Listen("tcp", ctx.String(apiAddrFlag.Name))
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: handler}

	logger.Info("starting governance engine",
		"version", fullVersion(),
		"data-dir", dataDir,
		"api", "http://"+listener.Addr().String())

	runCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var goes errgroup.Group
	goes.Go(func() error {
		if err := n.Run(runCtx); err != context.Canceled {
			return err
		}
		return nil
	})
	goes.Go(func() error {
		if err := srv.Serve(listener); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	goes.Go(func() error {
		<-runCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return goes.Wait()
}
