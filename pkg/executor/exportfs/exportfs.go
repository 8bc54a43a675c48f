// Package exportfs manages NFS exports on the host.
package exportfs

import (
	"context"
	"fmt"
	"strings"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor"
)

type ExportOptions struct {
	Client  string
	Path    string
	Options []string
}

// Export publishes Path to Client without touching /etc/exports.
func Export(ctx context.Context, exec executor.Executor, opts ExportOptions) error {
	target := fmt.Sprintf("%s:%s", opts.Client, opts.Path)
	args := []string{"exportfs", "-o", strings.Join(opts.Options, ","), target}

	result, err := executor.RunAndCapture(ctx, exec, "sudo", args...)
	if err != nil {
		return fmt.Errorf("exportfs %s failed: %w\nstderr: %s", target, err, result.Stderr)
	}
	return nil
}

// Unexport withdraws a previous Export.
func Unexport(ctx context.Context, exec executor.Executor, client, path string) error {
	target := fmt.Sprintf("%s:%s", client, path)

	result, err := executor.RunAndCapture(ctx, exec, "sudo", "exportfs", "-u", target)
	if err != nil {
		return fmt.Errorf("exportfs -u %s failed: %w\nstderr: %s", target, err, result.Stderr)
	}
	return nil
}
