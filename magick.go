package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// commandRunner runs an external program and returns what it wrote to stderr.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

type drawStep struct {
	name string
	args []string
}

// MagickCompositor renders portraits with the ImageMagick command line tool.
// Every step rewrites the same file and is awaited before the next starts.
type MagickCompositor struct {
	bin         string
	stepTimeout time.Duration
	run         commandRunner
	log         *slog.Logger
}

func NewMagickCompositor(bin string, stepTimeout time.Duration, logger *slog.Logger) *MagickCompositor {
	return &MagickCompositor{
		bin:         bin,
		stepTimeout: stepTimeout,
		run:         execRunner{},
		log:         logger,
	}
}

// resolveTool checks that the configured binary is on PATH.
func resolveTool(bin string) (string, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrToolNotFound, bin, err)
	}
	return path, nil
}

func (m *MagickCompositor) Render(ctx context.Context, sub CharacterSubmission, path string) error {
	health, err := parseHealth(sub.CharacterHealth)
	if err != nil {
		return err
	}

	for _, step := range drawSteps(strings.TrimSpace(sub.CharacterName), health, path) {
		if err := m.runStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (m *MagickCompositor) runStep(ctx context.Context, step drawStep) error {
	if m.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.stepTimeout)
		defer cancel()
	}

	start := time.Now()
	stderr, err := m.run.Run(ctx, m.bin, step.args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = fmt.Errorf("%w: %s", ErrToolNotFound, m.bin)
		} else if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &StepError{Step: step.name, Stderr: strings.TrimSpace(string(stderr)), Err: err}
	}
	m.log.Debug("draw step done", "step", step.name, "elapsed", time.Since(start))
	return nil
}

// drawSteps builds the argument lists for each ImageMagick invocation.
// The name is always a single argv element and never reaches a shell.
func drawSteps(name string, health int, path string) []drawStep {
	steps := []drawStep{
		{
			name: "canvas",
			args: []string{"-size", fmt.Sprintf("%dx%d", canvasSize, canvasSize), "xc:" + canvasColor, path},
		},
		{
			name: "label",
			args: []string{path, "-gravity", "North", "-pointsize", fmt.Sprint(labelPointSize),
				"-annotate", fmt.Sprintf("+0+%d", labelOffsetY), escapeAnnotateText(name), path},
		},
		{
			name: "bar-background",
			args: []string{path, "-fill", barBackgroundColor,
				"-draw", rectangle(barLeft, barTop, barRight, barBottom), path},
		},
	}
	if health > 0 {
		steps = append(steps, drawStep{
			name: "bar-foreground",
			args: []string{path, "-fill", barForegroundColor,
				"-draw", rectangle(barLeft, barTop, foregroundRight(health), barBottom), path},
		})
	}
	return steps
}

func rectangle(x0, y0, x1, y1 int) string {
	return fmt.Sprintf("rectangle %d,%d %d,%d", x0, y0, x1, y1)
}

// escapeAnnotateText stops ImageMagick from expanding percent escapes,
// backslash sequences, or a leading @ (read text from file) in user text.
func escapeAnnotateText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", "%%")
	if strings.HasPrefix(s, "@") {
		s = `\` + s
	}
	return s
}
