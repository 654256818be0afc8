// Package pipeline adapts an external speech-recognition command into the
// compute function the job resolver expects. Audio extraction and ASR live
// entirely in that command; this package only runs it and normalizes its
// output.
package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/berios/subtitle-backend/internal/jobs"
	"github.com/berios/subtitle-backend/internal/subtitles"
	"github.com/berios/subtitle-backend/pkg/log"
)

// CommandRunner invokes a configured command with the video URL and target
// language as arguments and expects a subtitle payload as JSON on stdout.
type CommandRunner struct {
	command string
}

func NewCommandRunner(command string) (*CommandRunner, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, fmt.Errorf("pipeline command is required")
	}
	return &CommandRunner{command: command}, nil
}

// Compute satisfies jobs.ComputeFunc.
func (r *CommandRunner) Compute(ctx context.Context, jobKey string, params jobs.Params) ([]byte, error) {
	cmdPath, err := exec.LookPath(r.command)
	if err != nil {
		return nil, fmt.Errorf("pipeline command not found: %w", err)
	}

	args := []string{params.URL}
	if params.Language != "" {
		args = append(args, "--language", params.Language)
	}

	cmd := exec.CommandContext(ctx, cmdPath, args...)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("pipeline failed for %s: %s", jobKey, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("pipeline failed for %s: %w", jobKey, err)
	}

	payload, err := subtitles.Decode(output)
	if err != nil {
		return nil, err
	}
	payload = payload.WithDetectedLanguage()

	normalized, err := payload.Encode()
	if err != nil {
		return nil, err
	}
	log.Info("Pipeline produced %d bytes for %s (language=%s)", len(normalized), jobKey, payload.Language)
	return normalized, nil
}
