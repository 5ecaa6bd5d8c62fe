// Command mboximport loads an mbox archive into the record store as pending
// email records for one account.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"offer-parser/internal/config"
	"offer-parser/internal/intake"
	"offer-parser/internal/logger"
	"offer-parser/internal/repository/sqlstore"
	"offer-parser/internal/service"
)

func main() {
	var (
		path        = flag.String("mbox", "", "path to the mbox file (- for stdin)")
		address     = flag.String("account", "", "mailbox address the messages belong to")
		displayName = flag.String("name", "", "display name used when the account is created")
	)
	flag.Parse()

	if *path == "" || *address == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	appLogger := logger.New()
	appLogger.SetLevel(cfg.LogLevel)

	if err := run(context.Background(), cfg, appLogger, *path, *address, *displayName); err != nil {
		appLogger.Error("Import failed:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, appLogger *logger.Logger, path, address, displayName string) error {
	store, err := sqlstore.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("set DATABASE_URL or SQLITE_PATH: %w", err)
	}
	defer store.Close()

	ingest := service.NewIngestService(store.Emails, store.Accounts, nil, appLogger)
	account, err := ingest.CreateAccount(ctx, address, displayName)
	if err != nil {
		return err
	}

	in := os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	log := appLogger.WithFields(map[string]interface{}{"account": account.Address, "mbox": path})
	created, duplicates, failed := 0, 0, 0
	total, err := intake.ReadMbox(in, func(msg *intake.Message) error {
		_, isNew, err := ingest.Import(ctx, account.ID, msg)
		if err != nil {
			failed++
			log.Warnf("skipping message %q: %v", msg.MessageID, err)
			return nil
		}
		if isNew {
			created++
		} else {
			duplicates++
		}
		return nil
	}, func(index int, err error) {
		failed++
		log.Warnf("message %d could not be parsed: %v", index, err)
	})
	if err != nil {
		return err
	}

	log.WithFields(map[string]interface{}{
		"read":       total,
		"created":    created,
		"duplicates": duplicates,
		"failed":     failed,
	}).Info("Import finished")
	return nil
}
