// Command rong sends one command to the rong daemon, starting the daemon
// first if needed.
//
// Usage:
//
//	rong [flags] <command> [args...]
//	rong [flags] <file>...          # same as: rong load <file>...
//	rong                            # same as: rong list
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/Paranoid-AF/rong"
	"github.com/Paranoid-AF/rong/client"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("rong", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "config file (default "+rong.ConfigPath()+")")
	socketFlag := flags.String("socket", "", "daemon socket path")
	noStart := flags.Bool("no-start", false, "do not start a daemon if none is running")
	colorMode := flags.String("color", "", "colorize errors: auto, always or never")
	verbose := flags.BoolP("verbose", "v", false, "log connection details to stderr")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if *showVersion {
		fmt.Fprintln(stdout, "rong", rong.Version)
		return exitOK
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	var cfg *rong.Config
	var err error
	if *configPath != "" {
		cfg, err = rong.LoadConfigFile(*configPath)
	} else {
		cfg, err = rong.LoadConfig()
	}
	if err != nil {
		fmt.Fprintf(stderr, "rong: %v\n", err)
		return exitFailure
	}
	for _, w := range rong.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}

	mode := cfg.Client.Color
	if *colorMode != "" {
		mode = *colorMode
	}
	red := errorColor(mode, stderr)

	socketPath := *socketFlag
	if socketPath == "" {
		socketPath = rong.ResolveSocketPath(cfg)
	}
	var daemonArgs []string
	if *configPath != "" {
		daemonArgs = append(daemonArgs, "--config", *configPath)
	}

	ctx := context.Background()
	conn, err := client.Connect(ctx, client.DaemonOptions{
		Socket:       socketPath,
		Daemon:       rong.ResolveDaemonPath(cfg),
		Args:         daemonArgs,
		StartTimeout: cfg.Client.StartTimeout,
		Timeout:      rong.ResolveClientTimeout(cfg),
		NoStart:      *noStart,
	})
	if err != nil {
		red.Fprintf(stderr, "rong: cannot reach daemon at %s: %v\n", socketPath, err)
		return exitFailure
	}
	defer conn.Close()
	slog.Debug("connected", "socket", socketPath, "server", conn.Server.String())

	if cwd, err := os.Getwd(); err == nil {
		if _, err := conn.Do(ctx, "cd", cwd); err != nil {
			red.Fprintf(stderr, "rong: %v\n", err)
			return exitFailure
		}
	}

	cache := client.NewCommandCache(cfg.Client.CommandCacheTTL)
	name, cmdArgs, err := classify(ctx, cache, conn, flags.Args())
	if err != nil {
		red.Fprintf(stderr, "rong: %v\n", err)
		return exitFailure
	}

	resp, err := conn.Do(ctx, name, cmdArgs...)
	if err != nil {
		var serr *client.ServerError
		if errors.As(err, &serr) {
			red.Fprintln(stderr, formatError(serr))
		} else {
			red.Fprintf(stderr, "rong: %v\n", err)
		}
		return exitFailure
	}
	writeResponse(stdout, resp)
	return exitOK
}

// classify decides what the command line asks for. A first argument that
// names a daemon command is that command; anything else is a file list to
// load.
func classify(ctx context.Context, cache *client.CommandCache, conn *client.Conn, args []string) (string, []string, error) {
	if len(args) == 0 {
		return "list", nil, nil
	}
	ok, err := cache.IsCommand(ctx, conn, args[0])
	if err != nil {
		return "", nil, err
	}
	if ok {
		return args[0], args[1:], nil
	}
	return "load", args, nil
}

// writeResponse prints the payload of a successful response.
func writeResponse(w io.Writer, resp *rong.Response) {
	switch resp.Mode {
	case rong.Single:
		if resp.Message != "" {
			fmt.Fprintln(w, resp.Message)
		}
	case rong.Multi:
		for _, line := range resp.Lines {
			fmt.Fprintln(w, line)
		}
	case rong.MultiExact:
		io.WriteString(w, resp.Content())
	}
}

func formatError(err *client.ServerError) string {
	msg := "rong: " + err.Text()
	if err.HasHint() {
		msg += fmt.Sprintf("; try 'rong help %s'", err.Command)
	}
	return msg
}

func errorColor(mode string, w io.Writer) *color.Color {
	c := color.New(color.FgRed)
	switch mode {
	case "always":
		c.EnableColor()
	case "never":
		c.DisableColor()
	default:
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return c
}
