package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/photon-storage/go-common/log"

	"github.com/gamevault/escrow-core/api/server"
	"github.com/gamevault/escrow-core/api/service"
	"github.com/gamevault/escrow-core/cmd"
	"github.com/gamevault/escrow-core/cmd/runtime/version"
	"github.com/gamevault/escrow-core/config"
	"github.com/gamevault/escrow-core/database/mysql"
	"github.com/gamevault/escrow-core/inventory"
)

func main() {
	app := cli.App{
		Name:    "escrow-api",
		Usage:   "read api over the escrow reconciliation core",
		Action:  exec,
		Version: version.Get(),
		Flags: []cli.Flag{
			cmd.ConfigPathFlag,
			cmd.VerbosityFlag,
			cmd.LogFormatFlag,
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

		return log.Init(logLvl, logFmt)
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("running api application failed", "error", err)
	}
}

func exec(ctx *cli.Context) error {
	cfg := &Config{}
	if err := config.Load(ctx.String(cmd.ConfigPathFlag.Name), cfg); err != nil {
		log.Fatal("reading api config failed", "error", err)
	}

	db, err := mysql.NewMySQLDB(cfg.MySQL)
	if err != nil {
		log.Fatal("initialize mysql db error", "error", err)
	}

	oracle := inventory.NewOracle(cfg.Inventory.Endpoint, cfg.Inventory.APIKey)
	server.New(cfg.Port, service.New(db, oracle)).Run()
	return nil
}

// InventoryConfig locates the third-party inventory service.
type InventoryConfig struct {
	Endpoint string `yaml:"endpoint" validate:"required"`
	APIKey   string `yaml:"api_key"`
}

// Config defines the config for the api service.
type Config struct {
	Port      int             `yaml:"port" validate:"gt=0"`
	MySQL     mysql.Config    `yaml:"mysql"`
	Inventory InventoryConfig `yaml:"inventory"`
}
