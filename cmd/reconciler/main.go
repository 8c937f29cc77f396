package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/photon-storage/go-common/log"

	"github.com/gamevault/escrow-core/chain"
	"github.com/gamevault/escrow-core/cmd"
	"github.com/gamevault/escrow-core/cmd/runtime/version"
	"github.com/gamevault/escrow-core/config"
	"github.com/gamevault/escrow-core/database/mysql"
	"github.com/gamevault/escrow-core/escrow"
	"github.com/gamevault/escrow-core/inventory"
)

func main() {
	app := cli.App{
		Name:    "escrow-reconciler",
		Usage:   "reconciles on-chain escrow events with inventory state",
		Action:  exec,
		Version: version.Get(),
		Flags: []cli.Flag{
			cmd.ConfigPathFlag,
			cmd.VerbosityFlag,
			cmd.LogFormatFlag,
			cmd.LogFilenameFlag,
			cmd.LogColorFlag,
		},
	}

	app.Before = func(ctx *cli.Context) error {
		logLvl, err := log.ParseLevel(ctx.String(cmd.VerbosityFlag.Name))
		if err != nil {
			return err
		}

		logFmt, err := log.ParseFormat(ctx.String(cmd.LogFormatFlag.Name))
		if err != nil {
			return err
		}

		if err := log.Init(logLvl, logFmt); err != nil {
			return err
		}

		logFilename := ctx.String(cmd.LogFilenameFlag.Name)
		if logFilename != "" {
			if err := log.ConfigurePersistentLogging(logFilename, false); err != nil {
				log.Error("Failed to configuring logging to disk",
					"error", err)
			}
		}
		if ctx.IsSet(cmd.LogColorFlag.Name) {
			log.ForceColor()
		}

		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("running reconciler application failed", "error", err)
	}
}

func exec(ctx *cli.Context) error {
	cfg := &Config{}
	if err := config.Load(ctx.String(cmd.ConfigPathFlag.Name), cfg); err != nil {
		log.Fatal("fail on read config", "error", err)
	}

	db, err := mysql.NewMySQLDB(cfg.MySQL)
	if err != nil {
		log.Fatal("initialize mysql db error", "error", err)
	}

	if err := mysql.Migrate(db); err != nil {
		log.Fatal("migrate escrow tables error", "error", err)
	}

	source, err := chain.NewClient(cfg.NodeEndpoint, cfg.EscrowPackage)
	if err != nil {
		// Misconfigured contract id, not a transient failure.
		log.Fatal("invalid escrow contract package", "error", err)
	}

	reconciler := escrow.NewReconciler(
		escrow.NewStore(db),
		source,
		inventory.NewOracle(cfg.Inventory.Endpoint, cfg.Inventory.APIKey),
		escrow.Config{
			PollInterval: time.Duration(cfg.PollSeconds) * time.Second,
			PageSize:     cfg.PageSize,
		},
	)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")

		go reconciler.Stop()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.Info("Already shutting down, interrupt more to panic", "times", i-1)
			}
		}
		panic("Panic closing the reconciler service")
	}()
	reconciler.Run(ctx.Context)
	return nil
}

// InventoryConfig locates the third-party inventory service.
type InventoryConfig struct {
	Endpoint string `yaml:"endpoint" validate:"required"`
	APIKey   string `yaml:"api_key"`
}

// Config defines the config for the reconciler service.
type Config struct {
	MySQL         mysql.Config    `yaml:"mysql"`
	PollSeconds   uint64          `yaml:"poll_seconds" validate:"gt=0"`
	PageSize      int             `yaml:"page_size"`
	NodeEndpoint  string          `yaml:"node_endpoint" validate:"required"`
	EscrowPackage string          `yaml:"escrow_package" validate:"required"`
	Inventory     InventoryConfig `yaml:"inventory"`
}
