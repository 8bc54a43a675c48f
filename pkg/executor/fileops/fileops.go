package fileops

import (
	"context"
	"fmt"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor"
)

func RemoveFile(ctx context.Context, exec executor.Executor, path string) error {
	result, err := executor.RunAndCapture(ctx, exec, "rm", "-f", path)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w\nstderr: %s", path, err, result.Stderr)
	}
	return nil
}

// CreateDirectory creates path, escalating with sudo when privileged.
func CreateDirectory(ctx context.Context, exec executor.Executor, path string, privileged bool) error {
	command, args := "mkdir", []string{"-p", path}
	if privileged {
		command, args = "sudo", append([]string{"mkdir"}, args...)
	}

	result, err := executor.RunAndCapture(ctx, exec, command, args...)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w\nstderr: %s", path, err, result.Stderr)
	}
	return nil
}
