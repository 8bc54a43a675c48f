package qemuimg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor"
)

type OverlayOptions struct {
	BackingFile       string
	BackingFileFormat string
	OutputFile        string
	SizeGB            int64
}

// CreateOverlay creates a qcow2 image backed by BackingFile.
func CreateOverlay(ctx context.Context, exec executor.Executor, opts OverlayOptions) error {
	args := []string{
		"create",
		"-b", opts.BackingFile,
		"-F", opts.BackingFileFormat,
		"-f", "qcow2",
		opts.OutputFile,
		fmt.Sprintf("%dG", opts.SizeGB),
	}

	result, err := executor.RunAndCapture(ctx, exec, "qemu-img", args...)
	if err != nil {
		return fmt.Errorf("qemu-img create failed: %w\nstdout: %s\nstderr: %s",
			err, result.Stdout, result.Stderr)
	}

	return nil
}

// Format reports the on-disk format of an image, e.g. "qcow2" or "raw".
func Format(ctx context.Context, exec executor.Executor, imagePath string) (string, error) {
	result, err := executor.RunAndCapture(ctx, exec, "qemu-img", "info", "--output=json", imagePath)
	if err != nil {
		return "", fmt.Errorf("qemu-img info failed: %w\nstderr: %s", err, result.Stderr)
	}

	var info struct {
		Format string `json:"format"`
	}
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		return "", fmt.Errorf("could not parse qemu-img info output: %w", err)
	}
	if info.Format == "" {
		return "", fmt.Errorf("qemu-img info reported no format for %s", imagePath)
	}

	return info.Format, nil
}
