package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/notekeeper/internal/admin/cli"
	"github.com/dmitrijs2005/notekeeper/internal/dbx"
	"github.com/dmitrijs2005/notekeeper/internal/logging"
	"github.com/dmitrijs2005/notekeeper/internal/server"
	"github.com/dmitrijs2005/notekeeper/internal/server/config"
	"github.com/dmitrijs2005/notekeeper/internal/server/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := logging.NewJSONLogger(os.Stderr, cfg.LogLevel)

	sqlDB, m, vault, err := server.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	db := dbx.NewSQLDatabase(sqlDB)

	app := cli.NewApp(
		services.NewUserService(db, m, vault, server.NewNotifier(cfg, logger), cfg, logger),
		services.NewAdminService(db, m, vault, logger),
		services.NewExpiryReaper(db, m, cfg.ReaperInterval, logger),
		cfg.AdminKey,
		os.Stdin,
		os.Stdout,
	)
	return app.Run(ctx, cli.CommandArgs(os.Args[1:]))
}
