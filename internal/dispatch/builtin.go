package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// MessageSink receives the text of built-in message actions.
type MessageSink interface {
	Show(name, text string) error
}

// CommandRunner runs the command line of built-in command actions.
type CommandRunner interface {
	Run(ctx context.Context, cmdline string) error
}

// LogSink writes messages to the structured log.
type LogSink struct{}

// Show implements MessageSink.
func (LogSink) Show(name, text string) error {
	log.Info().Str("event", "message_action").Str("action", name).Msg(text)
	return nil
}

// ExecRunner runs commands directly, without a shell. Fields are split on
// white space.
type ExecRunner struct {
	Dir string
}

// Run implements CommandRunner.
func (r ExecRunner) Run(ctx context.Context, cmdline string) error {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Dir = r.Dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("command timed out: %w", ctx.Err())
		}
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return fmt.Errorf("command failed: %w, stderr: %s", err, s)
		}

		return fmt.Errorf("command failed: %w", err)
	}

	return nil
}
