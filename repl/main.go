// Command rong-repl is an interactive shell for the rong daemon.
// Each line typed is sent as one request; the response is printed to stdout.
// Tab completes command names.
//
// Usage:
//
//	rong-repl                  # interactive
//	rong-repl > session.log    # prompt on screen, responses to file
//
// Lines starting with ':' are handled locally:
//
//	:raw   toggle raw mode (print response frames verbatim)
//	:quit  exit
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/Paranoid-AF/rong"
	"github.com/Paranoid-AF/rong/client"
	"github.com/Paranoid-AF/rong/wire"
)

const (
	prompt    = "rong> "
	rawPrompt = "rong[raw]> "
)

func main() {
	configPath := pflag.String("config", "", "config file (default "+rong.ConfigPath()+")")
	socketFlag := pflag.String("socket", "", "daemon socket path")
	noStart := pflag.Bool("no-start", false, "do not start a daemon if none is running")
	verbose := pflag.BoolP("verbose", "v", false, "log connection details to stderr")
	pflag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

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

	socketPath := *socketFlag
	if socketPath == "" {
		socketPath = rong.ResolveSocketPath(cfg)
	}
	var daemonArgs []string
	if *configPath != "" {
		daemonArgs = append(daemonArgs, "--config", *configPath)
	}

	ctx := context.Background()
	// The REPL waits on the user, not the daemon; only requests are bounded.
	conn, err := client.Connect(ctx, client.DaemonOptions{
		Socket:       socketPath,
		Daemon:       rong.ResolveDaemonPath(cfg),
		Args:         daemonArgs,
		StartTimeout: cfg.Client.StartTimeout,
		Timeout:      rong.ResolveClientTimeout(cfg),
		NoStart:      *noStart,
	})
	if err != nil {
		fatal(fmt.Errorf("cannot reach daemon at %s: %w", socketPath, err))
	}
	defer conn.Close()

	if cwd, err := os.Getwd(); err == nil {
		if _, err := conn.Do(ctx, "cd", cwd); err != nil {
			slog.Warn("cannot set working directory", "dir", cwd, "error", err)
		}
	}

	sockFd, err := conn.Fd()
	if err != nil {
		fatal(err)
	}

	editor, err := NewEditor()
	if err != nil {
		fatal(err)
	}
	defer editor.Close()

	cache := client.NewCommandCache(cfg.Client.CommandCacheTTL)
	editor.Wait = func() error {
		// Bytes already decoded past the last frame never show up in poll.
		if conn.Buffered() {
			return errStrayData
		}
		return waitReadable(editor.Fd(), sockFd)
	}
	editor.Complete = func(prefix string) []string {
		return cache.Complete(ctx, conn, prefix)
	}

	tty := editor.Tty()
	out := termWriter(os.Stdout)
	fmt.Fprintf(tty, "connected to rong v%s", conn.Server)
	if conn.Server.Banner != "" {
		fmt.Fprintf(tty, " (%s)", conn.Server.Banner)
	}
	fmt.Fprintf(tty, "\r\n")

	raw := false
	for {
		p := prompt
		if raw {
			p = rawPrompt
		}
		text, _, err := editor.ReadLine(p)
		if err == io.EOF || err == ErrInterrupt {
			break
		}
		if errors.Is(err, errDisconnected) || errors.Is(err, errStrayData) {
			fmt.Fprintf(tty, "%v\r\n", err)
			break
		}
		if err != nil {
			fmt.Fprintf(tty, "read error: %v\r\n", err)
			break
		}

		switch text {
		case "":
			continue
		case ":quit", ":q":
			return
		case ":raw":
			raw = !raw
			continue
		}

		resp, err := conn.Send(ctx, text, client.SendOptions{Raw: raw})
		if err == io.EOF {
			fmt.Fprintf(tty, "connection closed\r\n")
			break
		}
		if err != nil {
			fmt.Fprintf(tty, "error: %v\r\n", err)
			if errors.Is(err, client.ErrBroken) || errors.Is(err, client.ErrTimeout) || errors.Is(err, client.ErrServerClosed) {
				break
			}
			continue
		}

		name, _, _ := wire.Tokenize(text)
		writeResponse(out, name, resp, raw)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "rong-repl: %v\n", err)
	os.Exit(1)
}
