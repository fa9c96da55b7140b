// Command rongd is the rong daemon.
// It holds in-memory copies of files and serves load/save/inspect commands
// to any number of clients over a Unix domain socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/spf13/pflag"

	"github.com/Paranoid-AF/rong"
)

func main() {
	flags := pflag.NewFlagSet("rongd", pflag.ContinueOnError)
	configPath := flags.String("config", "", "config file (default "+rong.ConfigPath()+")")
	socketFlag := flags.String("socket", "", "socket path (overrides config and RONG_SOCKET)")
	verbose := flags.BoolP("verbose", "v", false, "log every request and response")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if *showVersion {
		fmt.Println("rongd", rong.Version)
		os.Exit(0)
	}

	var cfg *rong.Config
	var err error
	if *configPath != "" {
		cfg, err = rong.LoadConfigFile(*configPath)
	} else {
		cfg, err = rong.LoadConfig()
	}
	if err != nil {
		fatal(err)
	}

	logOut, err := openLog(cfg.Server.LogFile)
	if err != nil {
		fatal(err)
	}
	level := parseLevel(rong.ResolveLogLevel(cfg))
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})))

	for _, w := range rong.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}

	socketPath := *socketFlag
	if socketPath == "" {
		socketPath = rong.ResolveSocketPath(cfg)
	}

	// A client's broken pipe or a closed terminal must not take the
	// shared daemon down.
	signal.Ignore(syscall.SIGHUP, syscall.SIGPIPE)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	caught := make(chan os.Signal, 1)
	go func() {
		sig := <-sigCh
		caught <- sig
		cancel()
	}()

	if cfg.Server.DebugAgent {
		if err := agent.Listen(agent.Options{}); err != nil {
			slog.Warn("gops agent failed", "error", err)
		} else {
			defer agent.Close()
		}
	}

	slog.Info("starting", "socket", socketPath, "version", rong.Version)

	ds, err := openSocket(socketPath)
	if err != nil {
		slog.Error("failed to start server", "error", err, "fatal", true)
		os.Exit(1)
	}

	srv := NewServer(ds.listener, Options{
		Banner:       cfg.Server.Banner,
		ReadChunk:    cfg.Server.ReadChunk,
		MaxRequest:   cfg.Server.MaxRequest,
		WriteTimeout: cfg.Server.WriteTimeout,
	})

	slog.Info("ready", "pid", os.Getpid())
	if err := srv.Serve(ctx); err != nil {
		ds.Close()
		slog.Error("server error", "error", err, "fatal", true)
		os.Exit(1)
	}
	ds.Close()

	sig := "none"
	select {
	case s := <-caught:
		sig = s.String()
	default:
	}
	slog.Info("server exited", "signal", sig)
}

func openLog(path string) (io.Writer, error) {
	if path == "" {
		return os.Stderr, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

func parseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
