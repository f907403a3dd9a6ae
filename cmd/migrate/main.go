// Command migrate applies or rolls back the embedded Postgres schema used by
// the identity directory, the Postgres session backend and the posts table.
//
// Usage:
//
//	migrate [-env .env] [up|down|version]
//
// DATABASE_URL is read from the environment or the .env file.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/MrEthical07/sessioncap/internal/config"
	"github.com/MrEthical07/sessioncap/internal/db/migrate"
	"github.com/MrEthical07/sessioncap/internal/logging"
)

func main() {
	envFile := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	cmd := "up"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	cfg, err := config.LoadDatabase(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := logging.NewLogger(cfg.LogLevel)

	if err := run(cfg.DatabaseURL, cmd, log); err != nil {
		log.Error("migrate failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func run(dsn, cmd string, log *slog.Logger) error {
	switch cmd {
	case "up", "down":
		if err := migrate.Run(dsn, migrate.Direction(cmd)); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown command %q (want up, down or version)", cmd)
	}

	v, dirty, err := migrate.Version(dsn)
	if err != nil {
		return err
	}
	log.Info("schema version", "version", v, "dirty", dirty)
	return nil
}
