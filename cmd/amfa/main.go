// Command amfa is an interactive terminal client for the authentication flow.
// Each line typed is an intent handed to the flow controller, and the
// resulting step is drawn back to the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/gateway"
	"github.com/MrEthical07/authflow/metrics/export/prometheus"
	"github.com/MrEthical07/authflow/notify"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, "amfa:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer, getenv func(string) string) error {
	cfg, start, err := parseArgs(args, getenv)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := gateway.New(gateway.Config{
		BaseURL:    cfg.Backend.URL,
		PathPrefix: cfg.Backend.PathPrefix,
		UserAgent:  cfg.Backend.UserAgent,
	}, logger)
	if err != nil {
		return err
	}

	queue := notify.NewQueue(notify.WithLimit(5))
	scr := &screen{out: out, queue: queue}

	ctrl, err := authflow.New().
		WithConfig(cfg.controllerConfig()).
		WithBackend(client).
		WithSessionStore(store).
		WithNotificationSink(queue).
		WithViewObserver(scr.observe).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	logger.Info("amfa started",
		zap.String("backend", cfg.Backend.URL),
		zap.String("store", cfg.Store.Driver),
	)

	scr.setBusy(true)
	_, err = ctrl.Start(ctx, start)
	scr.setBusy(false)
	// Other start errors were shown as notifications.
	if errors.Is(err, authflow.ErrInvalidLocation) || errors.Is(err, authflow.ErrControllerClosed) {
		return err
	}

	r := &repl{ctrl: ctrl, screen: scr, metrics: prometheus.NewExporter(ctrl)}
	return r.run(ctx, in)
}

// parseArgs layers flags over the file and environment configuration.
func parseArgs(args []string, getenv func(string) string) (config, string, error) {
	fs := flag.NewFlagSet("amfa", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "YAML config file (default $"+envConfig+" or "+defaultConfigPath+")")
		backend    = fs.String("backend", "", "backend base URL")
		driver     = fs.String("store", "", "session store driver: file, memory or redis")
		storePath  = fs.String("store-path", "", "session file for the file driver")
		redisAddr  = fs.String("redis-addr", "", "redis address; empty runs an embedded redis")
		logFile    = fs.String("log-file", "", "log destination")
		logLevel   = fs.String("log-level", "", "debug, info, warn or error")
		start      = fs.String("start", "/", "initial location")
	)
	if err := fs.Parse(args); err != nil {
		return config{}, "", err
	}

	cfg, err := loadConfig(*configPath, getenv)
	if err != nil {
		return config{}, "", err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend.URL = *backend
		case "store":
			cfg.Store.Driver = *driver
		case "store-path":
			cfg.Store.Path = *storePath
		case "redis-addr":
			cfg.Store.Redis.Addr = *redisAddr
		case "log-file":
			cfg.Log.File = *logFile
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
	return cfg, *start, cfg.validate()
}
