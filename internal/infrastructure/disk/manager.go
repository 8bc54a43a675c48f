package disk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor/fileops"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor/qemuimg"
)

// Manager manages disk operations.
type Manager struct {
	logger *slog.Logger
}

// NewManager creates a new disk manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger: logger.With(slog.String("component", "disk")),
	}
}

type OverlayRequest struct {
	BaseImagePath string
	DiskPath      string
	SizeGB        int64
}

// CreateOverlay creates a qcow2 disk backed by the box image, leaving the box
// untouched.
func (m *Manager) CreateOverlay(ctx context.Context, exec executor.Executor, req OverlayRequest) error {
	m.logger.Debug("creating qcow2 overlay",
		slog.String("path", req.DiskPath),
		slog.String("base", req.BaseImagePath),
		slog.Int64("size_gb", req.SizeGB),
	)

	backingFileFormat, err := qemuimg.Format(ctx, exec, req.BaseImagePath)
	if err != nil {
		return err
	}

	switch backingFileFormat {
	case "qcow2", "raw":
	default:
		return fmt.Errorf("unsupported backing file format: %s", backingFileFormat)
	}

	err = qemuimg.CreateOverlay(ctx, exec, qemuimg.OverlayOptions{
		BackingFile:       req.BaseImagePath,
		BackingFileFormat: backingFileFormat,
		OutputFile:        req.DiskPath,
		SizeGB:            req.SizeGB,
	})
	if err != nil {
		return err
	}

	m.logger.Info("created qcow2 overlay",
		slog.String("path", req.DiskPath),
		slog.Int64("size_gb", req.SizeGB),
	)

	return nil
}

// Remove deletes a disk. Failures are logged, not returned, so teardown of
// the remaining resources continues.
func (m *Manager) Remove(ctx context.Context, exec executor.Executor, path string) {
	m.logger.Debug("deleting disk", slog.String("path", path))

	if err := fileops.RemoveFile(ctx, exec, path); err != nil {
		m.logger.Warn("failed to delete disk",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
