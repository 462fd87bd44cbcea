package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/demystify-app/demystify-api/internal/app"
	"github.com/demystify-app/demystify-api/internal/auth"
	"github.com/demystify-app/demystify-api/internal/config"
	"github.com/demystify-app/demystify-api/internal/logging"
	"github.com/demystify-app/demystify-api/internal/security"
	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	errRun := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run dispatches to a subcommand; without one it starts the server.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve":
		return serve(ctx, args)
	case "init":
		return initConfig(args, stdout)
	case "generate-key":
		return generateKey(stdout)
	case "reencrypt":
		return reencrypt(ctx, args, stdout)
	case "create-admin":
		return createAdmin(ctx, args, stdout)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 0, "server port, overrides config and PORT")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	cfg, errLoad := loadConfig(*cfgPath)
	if errLoad != nil {
		return errLoad
	}
	if *port != 0 {
		if errValidate := validatePort(*port); errValidate != nil {
			return errValidate
		}
		cfg.Server.Port = *port
	}
	return app.RunServer(ctx, cfg)
}

func initConfig(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path to create")
	dsn := fs.String("dsn", "", "database DSN (PostgreSQL or SQLite)")
	dbPath := fs.String("db-path", "", "SQLite database file, used when -dsn is empty")
	port := fs.Int("port", 0, "server port")
	debug := fs.Bool("debug", false, "enable debug mode")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	if *port != 0 {
		if errValidate := validatePort(*port); errValidate != nil {
			return errValidate
		}
	}

	path := config.ResolveConfigPath(*cfgPath)
	req := app.InitRequest{DatabaseDSN: *dsn, DatabasePath: *dbPath, Port: *port, Debug: *debug}
	if errWrite := app.WriteConfigFile(path, req); errWrite != nil {
		return errWrite
	}
	_, errPrint := fmt.Fprintf(stdout, "wrote %s\nset gemini.api-key (or GEMINI_API_KEY) before starting the server\n", path)
	return errPrint
}

func generateKey(stdout io.Writer) error {
	key, errKey := security.GenerateKey()
	if errKey != nil {
		return errKey
	}
	_, errPrint := fmt.Fprintf(stdout, "ENCRYPTION_KEY=%s\n", key)
	return errPrint
}

func reencrypt(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("reencrypt", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	cfg, errLoad := loadConfig(*cfgPath)
	if errLoad != nil {
		return errLoad
	}
	users, history, errReencrypt := app.Reencrypt(ctx, cfg)
	if errReencrypt != nil {
		return errReencrypt
	}
	_, errPrint := fmt.Fprintf(stdout, "encrypted %d user(s) and %d analysis record(s)\n", users, history)
	return errPrint
}

func createAdmin(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	username := fs.String("username", "", "admin username")
	email := fs.String("email", "", "admin email")
	password := fs.String("password", "", "admin password")
	fullName := fs.String("full-name", "", "admin display name")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	cfg, errLoad := loadConfig(*cfgPath)
	if errLoad != nil {
		return errLoad
	}
	user, errCreate := app.CreateAdmin(ctx, cfg, auth.RegisterInput{
		Username: *username,
		Email:    *email,
		Password: *password,
		FullName: *fullName,
	})
	if errCreate != nil {
		return errCreate
	}
	_, errPrint := fmt.Fprintf(stdout, "created admin %q (id %d)\n", user.Username, user.ID)
	return errPrint
}

// loadConfig reads configuration and applies logging before anything else logs.
func loadConfig(path string) (config.Config, error) {
	cfg, errLoad := config.Load(path)
	if errLoad != nil {
		return config.Config{}, errLoad
	}
	// The rotating log file stays open for the life of the process.
	if _, errLog := logging.Setup(cfg.Logging, cfg.Server.Debug); errLog != nil {
		return config.Config{}, errLog
	}
	return cfg, nil
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
