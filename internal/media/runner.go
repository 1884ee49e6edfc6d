// Package media drives the external ffmpeg/ffprobe tooling for audio
// assembly and video rendering.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"quran-video-service/internal/entity"
)

// CommandLog captures one external command invocation for diagnostics.
type CommandLog struct {
	Command  string
	Args     []string
	ExitCode int
	Stderr   string
}

// StageError is a pipeline failure attributed to assembly or render, with
// the command context that produced it.
type StageError struct {
	Stage entity.Stage
	Msg   string
	Log   CommandLog
	Err   error
}

func (e *StageError) Error() string {
	if e.Log.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Msg)
	}
	return fmt.Sprintf("%s: %s (cmd=%s exit=%d)", e.Stage, e.Msg, e.Log.Command, e.Log.ExitCode)
}

func (e *StageError) Unwrap() error { return e.Err }

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// stderrTail keeps the end of a stderr dump, which is where ffmpeg puts
// the actual failure reason.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	const max = 400
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
