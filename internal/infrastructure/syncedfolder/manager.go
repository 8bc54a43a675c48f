package syncedfolder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/provision"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor/exportfs"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor/fileops"
)

// Manager exports synced folders on the host and mounts them in the guest.
type Manager struct {
	host      executor.Executor
	baseDir   string
	guestUser string
	uid, gid  int
	logger    *slog.Logger
}

// NewManager creates a manager resolving relative host paths against baseDir.
func NewManager(host executor.Executor, baseDir, guestUser string, logger *slog.Logger) *Manager {
	return &Manager{
		host:      host,
		baseDir:   baseDir,
		guestUser: guestUser,
		uid:       os.Getuid(),
		gid:       os.Getgid(),
		logger:    logger.With(slog.String("component", "syncedfolder")),
	}
}

// HostPath returns the absolute host directory of folder.
func (m *Manager) HostPath(folder provision.SyncedFolder) (string, error) {
	path := folder.HostPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.baseDir, path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("could not resolve host path %s: %w", folder.HostPath, err)
	}
	return abs, nil
}

// ShareName derives the VirtualBox share name from the guest path.
func ShareName(guestPath string) string {
	name := strings.ReplaceAll(strings.Trim(guestPath, "/"), "/", "_")
	if name == "" {
		return "root"
	}
	return name
}

// Export publishes NFS folders to the guest. Other transports need no host
// side preparation here.
func (m *Manager) Export(ctx context.Context, folder provision.SyncedFolder, guestAddr string) error {
	if folder.Type != provision.SYNCED_FOLDER_NFS {
		return nil
	}

	hostPath, err := m.HostPath(folder)
	if err != nil {
		return err
	}

	err = exportfs.Export(ctx, m.host, exportfs.ExportOptions{
		Client:  guestAddr,
		Path:    hostPath,
		Options: m.exportOptions(),
	})
	if err != nil {
		return err
	}

	m.logger.Info("exported synced folder",
		slog.String("path", hostPath),
		slog.String("client", guestAddr),
	)
	return nil
}

// Unexport reverts Export.
func (m *Manager) Unexport(ctx context.Context, folder provision.SyncedFolder, guestAddr string) error {
	if folder.Type != provision.SYNCED_FOLDER_NFS {
		return nil
	}

	hostPath, err := m.HostPath(folder)
	if err != nil {
		return err
	}
	return exportfs.Unexport(ctx, m.host, guestAddr, hostPath)
}

// Mount mounts folder inside the guest. hostAddr is the host as seen from
// the guest and is only used by NFS. A folder already mounted at its guest
// path is left alone, so Mount can run again on a provisioned machine.
func (m *Manager) Mount(ctx context.Context, guest executor.Executor, folder provision.SyncedFolder, hostAddr string) error {
	args, err := m.mountArgs(folder, hostAddr)
	if err != nil {
		return err
	}

	if mounted(ctx, guest, folder.GuestPath) {
		m.logger.Info("synced folder already mounted", slog.String("guest_path", folder.GuestPath))
		return nil
	}

	if err := fileops.CreateDirectory(ctx, guest, executor.Quote(folder.GuestPath), true); err != nil {
		return err
	}

	result, err := executor.RunAndCapture(ctx, guest, "sudo", args...)
	if err != nil {
		return fmt.Errorf("failed to mount %s: %w\nstderr: %s", folder.GuestPath, err, result.Stderr)
	}

	m.logger.Info("mounted synced folder",
		slog.String("guest_path", folder.GuestPath),
		slog.String("type", transportName(folder.Type)),
	)
	return nil
}

// mounted reports whether path is a mount point in the guest. Any failure
// to tell counts as not mounted; the mount itself then reports the error.
func mounted(ctx context.Context, guest executor.Executor, path string) bool {
	exitCode, err := guest.Execute(ctx, io.Discard, io.Discard, "mountpoint", "-q", executor.Quote(path))
	return err == nil && exitCode == 0
}

func (m *Manager) mountArgs(folder provision.SyncedFolder, hostAddr string) ([]string, error) {
	switch folder.Type {
	case provision.SYNCED_FOLDER_NFS:
		hostPath, err := m.HostPath(folder)
		if err != nil {
			return nil, err
		}

		proto := "tcp"
		if udp, _ := folder.Options["nfs_udp"].(bool); udp {
			proto = "udp"
		}

		return []string{
			"mount", "-t", "nfs",
			"-o", "vers=3,proto=" + proto,
			executor.Quote(hostAddr + ":" + hostPath),
			executor.Quote(folder.GuestPath),
		}, nil

	case provision.SYNCED_FOLDER_DEFAULT:
		// vboxsf has no chown/chmod: owner and modes are fixed for the whole share.
		user := executor.Quote(m.guestUser)
		options := fmt.Sprintf("uid=$(id -u %s),gid=$(id -g %s),dmode=777,fmode=777", user, user)

		return []string{
			"mount", "-t", "vboxsf",
			"-o", options,
			executor.Quote(ShareName(folder.GuestPath)),
			executor.Quote(folder.GuestPath),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported synced folder type: %s", folder.Type)
	}
}

func (m *Manager) exportOptions() []string {
	return []string{
		"rw",
		"sync",
		"no_subtree_check",
		"all_squash",
		"anonuid=" + strconv.Itoa(m.uid),
		"anongid=" + strconv.Itoa(m.gid),
	}
}

func transportName(t provision.SyncedFolderType) string {
	if t == provision.SYNCED_FOLDER_DEFAULT {
		return "vboxsf"
	}
	return string(t)
}
