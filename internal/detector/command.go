package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"medwarehouse/internal/detection"
	"medwarehouse/internal/services"
	"medwarehouse/internal/textutil"
)

// Executor runs a command and returns its stdout and stderr.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (stdout, stderr []byte, err error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Command runs `<argv...> <image>` and parses a JSON array from stdout.
type Command struct {
	argv []string
	exec Executor
}

// NewCommand builds a command detector. A nil executor uses os/exec.
func NewCommand(argv []string, executor Executor) (*Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "detector", "init", "detector.command is empty", nil)
	}
	if executor == nil {
		executor = commandExecutor{}
	}
	return &Command{argv: append([]string(nil), argv...), exec: executor}, nil
}

// Binary is the executable the detector invokes.
func (c *Command) Binary() string {
	return c.argv[0]
}

func (c *Command) Describe() string {
	return "command: " + strings.Join(c.argv, " ")
}

func (c *Command) Detect(ctx context.Context, imagePath string) ([]detection.Detection, error) {
	args := append(append([]string(nil), c.argv[1:]...), imagePath)
	stdout, stderr, err := c.exec.Run(ctx, c.argv[0], args)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "detector", "command", imagePath, ctx.Err())
		}
		detail := strings.TrimSpace(textutil.Tail(string(stderr), 300))
		return nil, services.Wrap(services.ErrExternalTool, "detector", "command", fmt.Sprintf("%s: %s", imagePath, detail), err)
	}
	var dets []detection.Detection
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &dets); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "detector", "decode", imagePath, err)
	}
	dets, err = validate(dets)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "detector", "decode", imagePath, err)
	}
	return dets, nil
}
