package virtualbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/infrastructure/syncedfolder"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/provision"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/runtime"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor/vboxmanage"
)

const (
	sshForwardRule = "ssh"
	loopback       = "127.0.0.1"
	// Addresses of the host and the guest on the VirtualBox NAT network.
	natHostAddress  = "10.0.2.2"
	natGuestAddress = "10.0.2.15"
)

type Options struct {
	BoxOVF  string
	SSHPort int
}

// Manager manages VirtualBox VMs through VBoxManage.
type Manager struct {
	exec    executor.Executor
	folders *syncedfolder.Manager
	opts    Options
	logger  *slog.Logger
}

func NewManager(exec executor.Executor, folders *syncedfolder.Manager, opts Options, logger *slog.Logger) *Manager {
	return &Manager{
		exec:    exec,
		folders: folders,
		opts:    opts,
		logger:  logger.With(slog.String("component", "virtualbox")),
	}
}

func (m *Manager) Name() provision.ProviderName {
	return provision.PROVIDER_VIRTUALBOX
}

// Up imports and configures the machine on first use, then starts it.
func (m *Manager) Up(ctx context.Context, machine provision.Machine) (runtime.Endpoint, error) {
	if machine.VirtualBox == nil {
		return runtime.Endpoint{}, fmt.Errorf("machine %s has no virtualbox settings", machine.Hostname)
	}
	name := machine.Hostname

	state, err := vboxmanage.State(ctx, m.exec, name)
	switch {
	case errors.Is(err, vboxmanage.ErrMachineNotFound):
		m.logger.Debug("machine not registered, importing", slog.String("vm", name))
		if err := m.create(ctx, machine); err != nil {
			return runtime.Endpoint{}, err
		}
		state = "poweroff"
	case err != nil:
		return runtime.Endpoint{}, fmt.Errorf("could not query VM state: %w", err)
	}

	if state != "running" {
		if err := vboxmanage.Start(ctx, m.exec, name, machine.VirtualBox.GUI); err != nil {
			return runtime.Endpoint{}, fmt.Errorf("could not start VM: %w", err)
		}
		m.logger.Info("started VM", slog.String("vm", name), slog.Bool("gui", machine.VirtualBox.GUI))
	} else {
		m.logger.Info("machine already running", slog.String("vm", name))
	}

	return m.endpoint(), nil
}

// Endpoint returns how to reach the running machine.
func (m *Manager) Endpoint(ctx context.Context, machine provision.Machine) (runtime.Endpoint, error) {
	state, err := vboxmanage.State(ctx, m.exec, machine.Hostname)
	if err != nil {
		return runtime.Endpoint{}, err
	}
	if state != "running" {
		return runtime.Endpoint{}, fmt.Errorf("machine %s is %s, not running", machine.Hostname, state)
	}
	return m.endpoint(), nil
}

// Destroy powers the machine off and deletes it with its disks.
func (m *Manager) Destroy(ctx context.Context, machine provision.Machine) error {
	name := machine.Hostname

	state, err := vboxmanage.State(ctx, m.exec, name)
	if errors.Is(err, vboxmanage.ErrMachineNotFound) {
		m.logger.Info("machine not registered, nothing to destroy", slog.String("vm", name))
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not query VM state: %w", err)
	}

	if state == "running" || state == "paused" {
		if err := vboxmanage.PowerOff(ctx, m.exec, name); err != nil {
			return fmt.Errorf("could not power off VM: %w", err)
		}
	}

	if err := vboxmanage.Unregister(ctx, m.exec, name); err != nil {
		return fmt.Errorf("could not delete VM: %w", err)
	}
	m.logger.Info("deleted VM", slog.String("vm", name))

	return nil
}

// create imports the box and configures it. A machine that fails
// configuration is unregistered again so the next Up starts from scratch.
func (m *Manager) create(ctx context.Context, machine provision.Machine) error {
	name := machine.Hostname

	if err := vboxmanage.Import(ctx, m.exec, vboxmanage.ImportOptions{OVFPath: m.opts.BoxOVF, Name: name}); err != nil {
		return fmt.Errorf("could not import box: %w", err)
	}

	if err := m.configure(ctx, machine); err != nil {
		if cleanupErr := vboxmanage.Unregister(ctx, m.exec, name); cleanupErr != nil {
			m.logger.Warn("failed to remove partially created VM",
				slog.String("vm", name),
				slog.String("error", cleanupErr.Error()),
			)
		}
		return err
	}

	m.logger.Info("created VM",
		slog.String("vm", name),
		slog.Int("memory_mib", machine.VirtualBox.MemoryMiB),
		slog.Int("cpus", machine.VirtualBox.CPUs),
	)
	return nil
}

func (m *Manager) configure(ctx context.Context, machine provision.Machine) error {
	name := machine.Hostname
	settings := machine.VirtualBox

	err := vboxmanage.Modify(ctx, m.exec, name, vboxmanage.ModifyOptions{
		MemoryMiB: settings.MemoryMiB,
		CPUs:      settings.CPUs,
	})
	if err != nil {
		return err
	}

	for _, customization := range settings.Customizations {
		if _, err := vboxmanage.Run(ctx, m.exec, substituteID(customization, name)...); err != nil {
			return fmt.Errorf("could not apply customization: %w", err)
		}
	}

	for _, folder := range machine.SyncedFolders {
		if folder.Type != provision.SYNCED_FOLDER_DEFAULT {
			continue
		}

		hostPath, err := m.folders.HostPath(folder)
		if err != nil {
			return err
		}

		err = vboxmanage.AddSharedFolder(ctx, m.exec, name, vboxmanage.SharedFolderOptions{
			Name:     syncedfolder.ShareName(folder.GuestPath),
			HostPath: hostPath,
		})
		if err != nil {
			return fmt.Errorf("could not add shared folder: %w", err)
		}
	}

	err = vboxmanage.AddNATPortForward(ctx, m.exec, name, vboxmanage.PortForward{
		Name:      sshForwardRule,
		HostIP:    loopback,
		HostPort:  m.opts.SSHPort,
		GuestPort: 22,
	})
	if err != nil {
		return fmt.Errorf("could not forward SSH port: %w", err)
	}
	return nil
}

func (m *Manager) endpoint() runtime.Endpoint {
	return runtime.Endpoint{
		Address:      loopback,
		Port:         m.opts.SSHPort,
		GuestAddress: natGuestAddress,
		HostAddress:  natHostAddress,
	}
}

func substituteID(args []string, id string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if arg == provision.VMIDPlaceholder {
			arg = id
		}
		out[i] = arg
	}
	return out
}
