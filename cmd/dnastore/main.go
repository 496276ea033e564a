// Command dnastore runs the DNA sample registry API and its maintenance tasks.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bgbm/dnastore/internal/account"
	"github.com/bgbm/dnastore/internal/app"
	"github.com/bgbm/dnastore/internal/config"
	"github.com/bgbm/dnastore/internal/logging"
	log "github.com/sirupsen/logrus"
)

const usage = `usage: dnastore [-config path] <command> [flags]

commands:
  serve          run the HTTP API (default)
  migrate        create or update the database schema
  create-staff   create an active staff account
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := flag.NewFlagSet("dnastore", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	configPath := global.String("config", "", "path to the YAML config file")
	if errParse := global.Parse(args); errParse != nil {
		return 2
	}

	resolved := config.ResolveConfigPath(*configPath)
	cfg, errLoad := config.Load(resolved)
	if errLoad != nil {
		fmt.Fprintln(os.Stderr, errLoad)
		return 1
	}
	closer, errLogging := logging.Setup(cfg.Log)
	if errLogging != nil {
		fmt.Fprintln(os.Stderr, errLogging)
		return 1
	}
	defer func() { _ = closer.Close() }()
	if !config.ConfigExists(resolved) {
		log.WithField("path", resolved).Warn("config file not found, using defaults and environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := "serve"
	rest := global.Args()
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	var errRun error
	switch command {
	case "serve":
		errRun = app.RunServer(ctx, cfg)
	case "migrate":
		errRun = app.Migrate(ctx, cfg)
	case "create-staff":
		errRun = createStaff(ctx, cfg, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}
	if errRun != nil {
		log.WithError(errRun).Errorf("%s failed", command)
		return 1
	}
	return 0
}

// createStaff parses the create-staff flags and creates the account.
func createStaff(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("create-staff", flag.ContinueOnError)
	username := fs.String("username", "", "login name")
	email := fs.String("email", "", "contact email")
	password := fs.String("password", "", "initial password (at least 8 characters)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	identity, errCreate := app.CreateStaff(ctx, cfg, account.StaffInput{
		Username: *username,
		Email:    *email,
		Password: *password,
	})
	if errCreate != nil {
		return errCreate
	}
	log.WithFields(log.Fields{"user_id": identity.User.ID, "username": identity.User.Username}).Info("staff account created")
	return nil
}
