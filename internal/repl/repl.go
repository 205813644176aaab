// Package repl is the interactive prompt of client mode: it reads
// command lines, runs them on the remote server, and renders the
// responses.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"retsh/internal/client"
	"retsh/internal/errors"
	"retsh/internal/proto"
	"retsh/util"
)

const prompt = "rsh> "

// Shell is the subset of the client the prompt drives.
type Shell interface {
	ExecuteCommand(ctx context.Context, command string, args []string) (proto.CommandResponse, error)
	Ping(ctx context.Context) error
	Disconnect(ctx context.Context) error
	State() client.ConnState
	SessionID() proto.SessionID
}

// Repl reads lines from in and writes results to out and errOut.
type Repl struct {
	shell  Shell
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	log    *util.Logger
}

// New builds a prompt over an already connected shell.
func New(shell Shell, in io.Reader, out, errOut io.Writer, logger *util.Logger) *Repl {
	return &Repl{shell: shell, in: in, out: out, errOut: errOut, log: logger.With("repl")}
}

// Run loops until EOF, an exit builtin, or ctx cancellation.  The
// remote session is disconnected on the way out.
func (r *Repl) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "type 'help' for builtins, 'exit' to leave")

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if ctx.Err() != nil {
			break
		}
		fmt.Fprint(r.out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		handled, exit := r.builtin(ctx, line)
		if exit {
			break
		}
		if handled {
			continue
		}

		tokens, err := SplitCommandLine(line)
		if err != nil {
			fmt.Fprintf(r.errOut, "parse error: %v\n", err)
			continue
		}

		resp, err := r.shell.ExecuteCommand(ctx, tokens[0], tokens[1:])
		if err != nil {
			if errors.Is(err, errors.ErrNotConnected) {
				fmt.Fprintln(r.errOut, "not connected")
			} else {
				fmt.Fprintf(r.errOut, "error: %v\n", err)
			}
			continue
		}
		r.render(resp)
	}

	if err := r.shell.Disconnect(ctx); err != nil {
		r.log.Debug("disconnect on exit: %v", err)
	}
	return scanner.Err()
}

// builtin handles prompt-local commands.  handled means the line must
// not be sent to the server; exit means the prompt should stop.
func (r *Repl) builtin(ctx context.Context, line string) (handled, exit bool) {
	switch line {
	case "exit", "quit":
		return true, true
	case "help":
		fmt.Fprint(r.out, helpText)
		return true, false
	case "status":
		r.printStatus(ctx)
		return true, false
	case "clear":
		// ANSI clear screen and home.
		fmt.Fprint(r.out, "\x1b[2J\x1b[H")
		return true, false
	}
	return false, false
}

const helpText = `builtins:
  help     show this help
  status   connection state, session id, server liveness
  clear    clear the screen
  exit     disconnect and leave (also: quit)
anything else runs remotely, quoting is shell-like
`

func (r *Repl) printStatus(ctx context.Context) {
	state := r.shell.State()
	fmt.Fprintf(r.out, "state:   %s\n", state)
	if state == client.StateConnected {
		fmt.Fprintf(r.out, "session: %s\n", r.shell.SessionID())
		if err := r.shell.Ping(ctx); err != nil {
			fmt.Fprintf(r.out, "server:  unreachable (%v)\n", err)
		} else {
			fmt.Fprintf(r.out, "server:  alive\n")
		}
	}
}

// render prints one command response the way a local shell would:
// stdout and stderr verbatim, anything abnormal summarized after.
func (r *Repl) render(resp proto.CommandResponse) {
	if len(resp.Stdout) > 0 {
		r.out.Write(resp.Stdout)
		if resp.Stdout[len(resp.Stdout)-1] != '\n' {
			fmt.Fprintln(r.out)
		}
	}
	if len(resp.Stderr) > 0 {
		r.errOut.Write(resp.Stderr)
		if resp.Stderr[len(resp.Stderr)-1] != '\n' {
			fmt.Fprintln(r.errOut)
		}
	}

	switch resp.Status {
	case proto.StatusSuccess:
	case proto.StatusTimeout:
		fmt.Fprintln(r.errOut, "command timed out")
	case proto.StatusKilled:
		fmt.Fprintln(r.errOut, "command killed")
	default:
		fmt.Fprintf(r.errOut, "command failed: exit code %d\n", resp.ExitCode)
	}
}
