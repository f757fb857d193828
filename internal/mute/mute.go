// Package mute switches the audio on and off.
package mute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/andresmejia3/hush/internal/utils"
)

// Controller sets the mute state. Implementations must tolerate being asked
// for the state they are already in.
type Controller interface {
	SetMute(ctx context.Context, mute bool) error
}

// Command runs an external program to change the mute state.
// Every "{mute}" in Args becomes 1 or 0 and every "{bool}" becomes true or false.
type Command struct {
	Args   []string
	Logger *slog.Logger

	// run is replaced in tests.
	run func(ctx context.Context, args []string) error

	mu      sync.Mutex
	applied bool
	state   bool
}

// NewCommand builds a Command from an argv template.
func NewCommand(args []string, logger *slog.Logger) (*Command, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, errors.New("mute command is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Command{Args: args, Logger: logger, run: runSafe}, nil
}

func runSafe(ctx context.Context, args []string) error {
	c := utils.NewSafeCommand(ctx, args[0], args[1:]...)
	if err := c.Run(); err != nil {
		if c.Stderr.Len() > 0 {
			return fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(c.Stderr.String()))
		}
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return nil
}

// Expand fills the placeholders for the given state.
func Expand(args []string, mute bool) []string {
	num, word := "0", "false"
	if mute {
		num, word = "1", "true"
	}
	r := strings.NewReplacer("{mute}", num, "{bool}", word)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

// SetMute runs the command unless the last successful call already applied mute.
func (c *Command) SetMute(ctx context.Context, mute bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applied && c.state == mute {
		return nil
	}
	if err := c.run(ctx, Expand(c.Args, mute)); err != nil {
		return err
	}
	c.applied, c.state = true, mute
	c.Logger.Debug("mute applied", "mute", mute)
	return nil
}

// DryRun only logs what it would do.
type DryRun struct {
	Logger *slog.Logger
}

func (d DryRun) SetMute(ctx context.Context, mute bool) error {
	l := d.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Info("dry run: set mute", "mute", mute)
	return nil
}
