package command

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/Paranoid-AF/rong"
	"github.com/Paranoid-AF/rong/buffer"
)

// NewDefaultRegistry returns a registry holding every builtin command.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	for _, cmd := range builtins() {
		r.Register(cmd)
	}
	return r
}

func builtins() []*Command {
	return []*Command{
		{
			Name:        "cd",
			Usage:       "[dir]",
			Summary:     "change the working directory",
			Description: "Changes the working directory of this connection and prints it. Without an argument, changes to the home directory.",
			Run:         runCd,
		},
		{
			Name:        "pwd",
			Summary:     "print the working directory",
			Description: "Prints the working directory of this connection.",
			Run:         runPwd,
		},
		{
			Name:        "load",
			Usage:       "file...",
			Summary:     "load files into buffers",
			Description: "Reads each file into a new buffer. Fails without loading anything if a file is missing or already loaded.",
			Run:         runLoad,
		},
		{
			Name:        "cat",
			Usage:       "file...",
			Summary:     "print buffer contents",
			Description: "Prints the contents of the buffers, concatenated, exactly as held in memory.",
			Run:         runCat,
		},
		{
			Name:        "save",
			Usage:       "file...",
			Summary:     "write buffers to disk",
			Description: "Writes each buffer back to its file. Files that already match their buffer are left alone.",
			Run:         runSave,
		},
		{
			Name:        "kill",
			Usage:       "file...",
			Summary:     "drop buffers without saving",
			Description: "Removes the buffers from memory. Nothing is written to disk.",
			Run:         runKill,
		},
		{
			Name:        "list",
			Usage:       "[-l]",
			Summary:     "list loaded buffers",
			Description: "Prints the absolute path of every loaded buffer. With -l, also prints its size and whether the file on disk still matches.",
			Run:         runList,
		},
		{
			Name:        "diff",
			Usage:       "file...",
			Summary:     "compare buffers with disk",
			Description: "Prints a line diff from each file on disk to its buffer. Prints nothing for buffers that match.",
			Run:         runDiff,
		},
		{
			Name:        "help",
			Usage:       "[command|-]",
			Summary:     "describe commands",
			Description: "Without an argument, lists all commands. With a command name, describes it. With -, prints the command names on one line.",
			Run:         runHelp,
		},
		{
			Name:        "exit",
			Summary:     "close this connection",
			Description: "Closes the connection. The daemon keeps running.",
			Run:         runExit,
		},
	}
}

func runCd(c *Context, args []string) (rong.Response, error) {
	var dir string
	switch len(args) {
	case 0:
		home, err := os.UserHomeDir()
		if err != nil {
			home = "/"
		}
		dir = home
	case 1:
		dir = buffer.ResolvePath(c.Session.Dir, args[0])
	default:
		return rong.Response{}, errUsage
	}

	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return rong.Response{}, errors.New("Directory does not exist")
		}
		return rong.Response{}, err
	}
	if !info.IsDir() {
		return rong.Response{}, errors.New("Not a directory")
	}
	c.Session.Dir = dir
	return rong.OK(dir), nil
}

func runPwd(c *Context, args []string) (rong.Response, error) {
	if len(args) != 0 {
		return rong.Response{}, errUsage
	}
	return rong.OK(c.Session.Dir), nil
}

// resolveAll maps file arguments to absolute paths. At least one is
// required.
func resolveAll(c *Context, args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, errUsage
	}
	paths := make([]string, len(args))
	for i, a := range args {
		paths[i] = buffer.ResolvePath(c.Session.Dir, a)
	}
	return paths, nil
}

func runLoad(c *Context, args []string) (rong.Response, error) {
	paths, err := resolveAll(c, args)
	if err != nil {
		return rong.Response{}, err
	}
	if err := c.Store.Load(paths...); err != nil {
		return rong.Response{}, err
	}
	return rong.OK(), nil
}

func runCat(c *Context, args []string) (rong.Response, error) {
	paths, err := resolveAll(c, args)
	if err != nil {
		return rong.Response{}, err
	}
	data, err := c.Store.Cat(paths...)
	if err != nil {
		return rong.Response{}, err
	}
	return rong.Exact(data), nil
}

func runSave(c *Context, args []string) (rong.Response, error) {
	paths, err := resolveAll(c, args)
	if err != nil {
		return rong.Response{}, err
	}
	if _, err := c.Store.Save(paths...); err != nil {
		return rong.Response{}, err
	}
	return rong.OK(), nil
}

func runKill(c *Context, args []string) (rong.Response, error) {
	paths, err := resolveAll(c, args)
	if err != nil {
		return rong.Response{}, err
	}
	if err := c.Store.Kill(paths...); err != nil {
		return rong.Response{}, err
	}
	return rong.OK(), nil
}

func runList(c *Context, args []string) (rong.Response, error) {
	long := false
	switch {
	case len(args) == 0:
	case len(args) == 1 && args[0] == "-l":
		long = true
	default:
		return rong.Response{}, errUsage
	}

	paths := c.Store.Paths()
	if !long {
		return rong.Lines(paths), nil
	}
	lines := make([]string, 0, len(paths))
	for _, p := range paths {
		b, _ := c.Store.Get(p)
		st, err := c.Store.Status(p)
		if err != nil {
			return rong.Response{}, err
		}
		lines = append(lines, p+"\t"+strconv.Itoa(len(b.Content))+"\t"+string(st))
	}
	return rong.Lines(lines), nil
}

func runDiff(c *Context, args []string) (rong.Response, error) {
	paths, err := resolveAll(c, args)
	if err != nil {
		return rong.Response{}, err
	}
	var lines []string
	for _, p := range paths {
		d, err := c.Store.Diff(p)
		if err != nil {
			return rong.Response{}, err
		}
		lines = append(lines, d...)
	}
	return rong.Lines(lines), nil
}

func runHelp(c *Context, args []string) (rong.Response, error) {
	r := c.Registry
	switch {
	case len(args) == 0:
		var lines []string
		for _, name := range r.Names() {
			cmd, _ := r.Lookup(name)
			lines = append(lines, fmt.Sprintf("%s - %s", name, cmd.Summary))
		}
		return rong.Lines(lines), nil
	case len(args) == 1 && args[0] == "-":
		return rong.OK(strings.Join(r.Names(), " ")), nil
	case len(args) == 1:
		cmd, ok := r.Lookup(args[0])
		if !ok {
			return rong.Response{}, fmt.Errorf("No such command '%s'", args[0])
		}
		usage := cmd.Name
		if cmd.Usage != "" {
			usage += " " + cmd.Usage
		}
		return rong.Lines([]string{"Usage: " + usage, "", cmd.Description}), nil
	default:
		return rong.Response{}, errUsage
	}
}

func runExit(c *Context, args []string) (rong.Response, error) {
	c.Session.Closing = true
	return rong.OK(), nil
}
