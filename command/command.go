// Package command maps request lines to the handlers that serve them.
//
// Handlers are registered once at startup as explicit Command values. A
// handler either returns a response or an error; Dispatch turns the error
// into "ERR Command '<name>': <message>". A message ending in "." tells the
// client that more help is available for the command.
package command

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"

	"github.com/Paranoid-AF/rong"
	"github.com/Paranoid-AF/rong/buffer"
	"github.com/Paranoid-AF/rong/session"
	"github.com/Paranoid-AF/rong/wire"
)

// Context is what a handler may touch: its own session and the shared
// buffer store.
type Context struct {
	Session *session.Session
	Store   *buffer.Store
	// Registry is the registry dispatching the command, for help.
	Registry *Registry
}

// RunFunc implements a command.
type RunFunc func(c *Context, args []string) (rong.Response, error)

// Command is one entry of the command surface.
type Command struct {
	Name string
	// Usage is the argument synopsis, e.g. "file...".
	Usage string
	// Summary is a one-line description shown by "help".
	Summary string
	// Description is the longer text shown by "help <name>".
	Description string
	Run         RunFunc
}

// Registry holds the commands a server understands.
type Registry struct {
	commands map[string]*Command
	logger   *slog.Logger
}

// NewRegistry returns an empty registry. A nil logger uses slog.Default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		commands: make(map[string]*Command),
		logger:   logger,
	}
}

// Register adds cmd. It panics if the name is empty or already taken.
func (r *Registry) Register(cmd *Command) {
	if cmd.Name == "" || cmd.Run == nil {
		panic("command.Registry: command needs a name and a Run function")
	}
	if _, exists := r.commands[cmd.Name]; exists {
		panic(fmt.Sprintf("command.Registry: duplicate command %q", cmd.Name))
	}
	r.commands[cmd.Name] = cmd
}

// Lookup returns the command registered under name.
func (r *Registry) Lookup(name string) (*Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Names returns all command names in lexicographic order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HandleLine parses one request line and dispatches it. It always returns
// exactly one response.
func (r *Registry) HandleLine(c *Context, line string) rong.Response {
	name, args, err := wire.Tokenize(line)
	if err != nil {
		if errors.Is(err, wire.ErrEmptyRequest) {
			return rong.Err("Empty request")
		}
		return rong.Err("Malformed request: " + err.Error())
	}
	return r.Dispatch(c, name, args)
}

// Dispatch runs the command called name. Unknown commands, handler errors
// and handler panics all become ERR responses; none of them escape.
func (r *Registry) Dispatch(c *Context, name string, args []string) (resp rong.Response) {
	cmd, ok := r.commands[name]
	if !ok {
		return commandError(name, "Unrecognized command.")
	}
	if c.Registry == nil {
		c.Registry = r
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("command panicked", "command", name, "panic", p, "stack", string(debug.Stack()))
			resp = commandError(name, "internal error")
		}
	}()

	resp, err := cmd.Run(c, args)
	if err != nil {
		return commandError(name, err.Error())
	}
	if !resp.Status.Valid() {
		resp.Status = rong.StatusOK
	}
	return resp
}

func commandError(name, msg string) rong.Response {
	return rong.Err(fmt.Sprintf("Command '%s': %s", name, msg))
}

// errUsage is returned for a wrong number of arguments. The trailing "."
// makes the client point at help.
var errUsage = errors.New("Wrong number of arguments.")
