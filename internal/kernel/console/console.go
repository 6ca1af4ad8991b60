// Package console implements the kernel console: a byte input stream, an
// output sink, and the interactive command interpreter behind
// debug_send_command. The console is boot-lifetime singleton state; it is
// initialized once and never torn down.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kestrelos/kestrel/internal/kernel/status"
)

// InputDepth is the buffered capacity of the input stream.
const InputDepth = 1024

// Command is one interpreter entry.
type Command struct {
	Name string
	Help string
	Run  func(c *Console, args []string) error
}

// Console is the kernel console.
type Console struct {
	input chan byte

	mu   sync.Mutex
	sink io.Writer
	cmds map[string]Command

	logger *zap.Logger
}

// New creates a console writing output to sink. Built-in commands are
// registered immediately.
func New(sink io.Writer, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Console{
		input:  make(chan byte, InputDepth),
		sink:   sink,
		cmds:   make(map[string]Command),
		logger: logger,
	}
	c.Register(Command{
		Name: "help",
		Help: "list registered commands",
		Run: func(c *Console, args []string) error {
			for _, cmd := range c.Commands() {
				fmt.Fprintf(c, "%-12s %s\n", cmd.Name, cmd.Help)
			}
			return nil
		},
	})
	c.Register(Command{
		Name: "echo",
		Help: "write arguments to the console",
		Run: func(c *Console, args []string) error {
			fmt.Fprintln(c, strings.Join(args, " "))
			return nil
		},
	})
	return c
}

// Register installs a command, replacing any previous one of the same name.
func (c *Console) Register(cmd Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmds[cmd.Name] = cmd
}

// Commands returns the registered commands in arbitrary order.
func (c *Console) Commands() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Command, 0, len(c.cmds))
	for _, cmd := range c.cmds {
		out = append(out, cmd)
	}
	return out
}

// SetSink replaces the output sink.
func (c *Console) SetSink(w io.Writer) {
	c.mu.Lock()
	c.sink = w
	c.mu.Unlock()
}

// PushInput feeds bytes into the input stream, dropping any the stream has
// no room for. Returns the count accepted.
func (c *Console) PushInput(data []byte) int {
	for i, b := range data {
		select {
		case c.input <- b:
		default:
			return i
		}
	}
	return len(data)
}

// Getchar blocks until an input byte is available or ctx is done. The
// context stands in for whatever terminates a blocked thread.
func (c *Console) Getchar(ctx context.Context) (byte, error) {
	select {
	case b := <-c.input:
		return b, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// TryGetchar returns the next input byte if one is available right now.
func (c *Console) TryGetchar() (byte, bool) {
	select {
	case b := <-c.input:
		return b, true
	default:
		return 0, false
	}
}

// Write emits bytes to the output sink. It never fails from the kernel's
// point of view; sink errors are logged and swallowed.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		if _, err := sink.Write(p); err != nil {
			c.logger.Warn("console sink write failed", zap.Error(err))
		}
	}
	return len(p), nil
}

// Putc emits one byte to the output sink.
func (c *Console) Putc(b byte) {
	c.Write([]byte{b})
}

// RunScript dispatches one interpreter line: a command name followed by
// whitespace-separated arguments. Unknown commands fail with ErrUnavailable;
// the command's own error is passed through.
func (c *Console) RunScript(line string) error {
	fields := strings.Fields(strings.TrimSuffix(line, "\n"))
	if len(fields) == 0 {
		return nil
	}

	c.mu.Lock()
	cmd, ok := c.cmds[fields[0]]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("unknown console command", zap.String("command", fields[0]))
		return fmt.Errorf("command %q: %w", fields[0], status.ErrUnavailable)
	}

	c.logger.Info("console command", zap.String("command", fields[0]), zap.Int("args", len(fields)-1))
	return cmd.Run(c, fields[1:])
}
