package simulator

//go:generate mockgen -source visualizer.go -destination ./mocks/mock_visualizer.go -package mocks

import (
	"context"
	"io"
	"os/exec"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// Visualizer turns a saved report into something viewable. It never reads arena state directly.
type Visualizer interface {
	Visualize(ctx context.Context, reportPath string) error
}

// CommandVisualizer runs an external program with the report path appended to Args,
// e.g. Command "python3" and Args ["graph.py"]
type CommandVisualizer struct {
	Command string
	Args    []string
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *slog.Logger
}

func (v *CommandVisualizer) Visualize(ctx context.Context, reportPath string) error {
	if v.Command == "" {
		return errors.New("no visualization command configured")
	}

	args := append(append([]string(nil), v.Args...), reportPath)
	cmd := exec.CommandContext(ctx, v.Command, args...)
	cmd.Stdout = v.Stdout
	cmd.Stderr = v.Stderr

	logger := v.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("CommandVisualizer::Visualize", slog.String("Command", v.Command), slog.Any("Args", args))

	err := cmd.Run()
	if err != nil {
		return errors.Wrapf(err, "visualization command %s failed", v.Command)
	}

	return nil
}
