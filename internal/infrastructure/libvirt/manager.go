package libvirt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/infrastructure/disk"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/provision"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/runtime"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor"
	pkglibvirt "github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/libvirt"
	"github.com/google/uuid"
	"libvirt.org/go/libvirt"
	"libvirt.org/go/libvirtxml"
)

const addressPollInterval = 2 * time.Second

var (
	errMachineNotFound   = errors.New("machine not found")
	errMachineNotRunning = errors.New("machine not running")
	errNoLease           = errors.New("no DHCP lease yet")
)

type Options struct {
	Network        string
	DataDir        string
	BoxImage       string
	DiskSizeGB     int64
	NFSHostAddress string
	BootTimeout    time.Duration
}

// Manager manages libvirt VM operations.
type Manager struct {
	connManager *pkglibvirt.ConnectionManager
	disks       *disk.Manager
	opts        Options
	logger      *slog.Logger
}

// NewManager creates a new libvirt manager.
func NewManager(connManager *pkglibvirt.ConnectionManager, disks *disk.Manager, opts Options, logger *slog.Logger) *Manager {
	return &Manager{
		connManager: connManager,
		disks:       disks,
		opts:        opts,
		logger:      logger.With(slog.String("component", "libvirt")),
	}
}

func (m *Manager) Name() provision.ProviderName {
	return provision.PROVIDER_LIBVIRT
}

// Up defines and starts the machine, or starts it if it is already defined,
// and waits for its DHCP lease.
func (m *Manager) Up(ctx context.Context, machine provision.Machine) (runtime.Endpoint, error) {
	hypervisor, unlock, err := m.hypervisor()
	if err != nil {
		return runtime.Endpoint{}, err
	}
	defer unlock()

	domain, err := m.lookup(hypervisor, machine.Hostname)
	switch {
	case errors.Is(err, errMachineNotFound):
		domain, err = m.create(ctx, hypervisor, machine)
		if err != nil {
			return runtime.Endpoint{}, err
		}
	case err != nil:
		return runtime.Endpoint{}, err
	default:
		m.logger.Info("machine already defined", slog.String("vm", machine.Hostname))
		if state, _, _ := domain.GetState(); state != libvirt.DOMAIN_RUNNING {
			if err := domain.Create(); err != nil {
				return runtime.Endpoint{}, fmt.Errorf("could not start VM: %w", err)
			}
			m.logger.Info("started VM", slog.String("vm", machine.Hostname))
		}
	}
	defer domain.Free()

	waitCtx, cancel := context.WithTimeout(ctx, m.opts.BootTimeout)
	defer cancel()

	address, err := m.waitForAddress(waitCtx, domain, machine.Hostname)
	if err != nil {
		return runtime.Endpoint{}, err
	}

	return m.endpoint(address), nil
}

// Endpoint returns how to reach an already running machine.
func (m *Manager) Endpoint(ctx context.Context, machine provision.Machine) (runtime.Endpoint, error) {
	hypervisor, unlock, err := m.hypervisor()
	if err != nil {
		return runtime.Endpoint{}, err
	}
	defer unlock()

	domain, err := m.lookup(hypervisor, machine.Hostname)
	if err != nil {
		return runtime.Endpoint{}, err
	}
	defer domain.Free()

	if state, _, _ := domain.GetState(); state != libvirt.DOMAIN_RUNNING {
		return runtime.Endpoint{}, fmt.Errorf("%w: %s", errMachineNotRunning, machine.Hostname)
	}

	address, found, err := leaseAddress(domain)
	if err != nil {
		return runtime.Endpoint{}, err
	}
	if !found {
		return runtime.Endpoint{}, fmt.Errorf("%w: %s", errNoLease, machine.Hostname)
	}

	return m.endpoint(address), nil
}

// Destroy stops the machine, removes its disks and undefines it.
func (m *Manager) Destroy(ctx context.Context, machine provision.Machine) error {
	hypervisor, unlock, err := m.hypervisor()
	if err != nil {
		return err
	}
	defer unlock()

	domain, err := m.lookup(hypervisor, machine.Hostname)
	if errors.Is(err, errMachineNotFound) {
		m.logger.Info("machine not defined, nothing to destroy", slog.String("vm", machine.Hostname))
		return nil
	}
	if err != nil {
		return err
	}
	defer domain.Free()

	domainXML, err := toLibvirtXML(domain)
	if err != nil {
		return err
	}

	if state, _, _ := domain.GetState(); state != libvirt.DOMAIN_SHUTOFF {
		if err = domain.Destroy(); err != nil {
			return fmt.Errorf("could not destroy VM: %w", err)
		}
		m.logger.Debug("destroyed running VM", slog.String("vm", machine.Hostname))
	}

	if domainXML.Devices != nil {
		for _, d := range domainXML.Devices.Disks {
			if d.Device != "disk" || d.Source == nil || d.Source.File == nil {
				continue
			}
			m.disks.Remove(ctx, hypervisor.Executor, d.Source.File.File)
		}
	}

	if err = domain.Undefine(); err != nil {
		return fmt.Errorf("could not undefine VM: %w", err)
	}
	m.logger.Info("undefined VM from libvirt", slog.String("vm", machine.Hostname))

	return nil
}

// domainDefiner is the part of *libvirt.Connect used to register a domain.
type domainDefiner interface {
	DomainDefineXML(xmlConfig string) (*libvirt.Domain, error)
}

func (m *Manager) create(ctx context.Context, hypervisor runtime.HypervisorContext, machine provision.Machine) (*libvirt.Domain, error) {
	domain, err := m.define(ctx, hypervisor.Executor, hypervisor.Conn, machine)
	if err != nil {
		return nil, err
	}

	if err = domain.Create(); err != nil {
		domain.Free()
		return nil, fmt.Errorf("could not start VM from Libvirt XML: %w", err)
	}
	m.logger.Info("started VM",
		slog.String("vm", machine.Hostname),
		slog.Int("memory_mib", machine.Libvirt.MemoryMiB),
		slog.Int("cpus", machine.Libvirt.CPUs),
		slog.Bool("graphics", machine.Libvirt.GraphicsType != "none"),
	)

	return domain, nil
}

// define creates the overlay disk and registers the domain using it. The
// overlay is removed again when the domain cannot be registered.
func (m *Manager) define(ctx context.Context, exec executor.Executor, definer domainDefiner, machine provision.Machine) (*libvirt.Domain, error) {
	diskPath := filepath.Join(m.opts.DataDir, machine.Hostname+".qcow2")

	err := m.disks.CreateOverlay(ctx, exec, disk.OverlayRequest{
		BaseImagePath: m.opts.BoxImage,
		DiskPath:      diskPath,
		SizeGB:        m.opts.DiskSizeGB,
	})
	if err != nil {
		return nil, err
	}

	domain, err := defineDomain(definer, machine, diskPath, m.opts.Network)
	if err != nil {
		m.disks.Remove(ctx, exec, diskPath)
		return nil, err
	}
	m.logger.Debug("defined VM in libvirt", slog.String("vm", machine.Hostname))

	return domain, nil
}

func defineDomain(definer domainDefiner, machine provision.Machine, diskPath, network string) (*libvirt.Domain, error) {
	domainXML, err := buildDomain(machine, uuid.New(), diskPath, network)
	if err != nil {
		return nil, err
	}

	xmlStr, err := domainXML.Marshal()
	if err != nil {
		return nil, fmt.Errorf("could not serialize Libvirt XML to string: %w", err)
	}

	domain, err := definer.DomainDefineXML(xmlStr)
	if err != nil {
		return nil, fmt.Errorf("could not define VM from Libvirt XML: %w", err)
	}
	return domain, nil
}

func (m *Manager) hypervisor() (runtime.HypervisorContext, func(), error) {
	conn, exec, unlock, err := m.connManager.GetHypervisor()
	if err != nil {
		return runtime.HypervisorContext{}, nil, fmt.Errorf("failed to get hypervisor connection: %w", err)
	}

	return runtime.HypervisorContext{
		URI:      m.connManager.URI(),
		Conn:     conn,
		Executor: exec,
	}, unlock, nil
}

func (m *Manager) lookup(hypervisor runtime.HypervisorContext, name string) (*libvirt.Domain, error) {
	domain, err := hypervisor.Conn.LookupDomainByName(name)
	if err != nil {
		var libvirtErr libvirt.Error
		if errors.As(err, &libvirtErr) && libvirtErr.Code == libvirt.ERR_NO_DOMAIN {
			return nil, fmt.Errorf("%w: %s", errMachineNotFound, name)
		}
		return nil, fmt.Errorf("could not look up VM by name: %w", err)
	}
	return domain, nil
}

func (m *Manager) waitForAddress(ctx context.Context, domain *libvirt.Domain, name string) (string, error) {
	m.logger.Info("waiting for DHCP lease", slog.String("vm", name))

	var address string
	err := retry.Do(
		func() error {
			leased, found, err := leaseAddress(domain)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if !found {
				return errNoLease
			}
			address = leased
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(addressPollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", fmt.Errorf("could not get address of %s: %w", name, err)
	}

	m.logger.Info("machine has address", slog.String("vm", name), slog.String("address", address))
	return address, nil
}

func (m *Manager) endpoint(address string) runtime.Endpoint {
	return runtime.Endpoint{
		Address:      address,
		Port:         22,
		GuestAddress: address,
		HostAddress:  m.opts.NFSHostAddress,
	}
}

func leaseAddress(domain *libvirt.Domain) (string, bool, error) {
	ifaces, err := domain.ListAllInterfaceAddresses(libvirt.DOMAIN_INTERFACE_ADDRESSES_SRC_LEASE)
	if err != nil {
		return "", false, fmt.Errorf("could not list interface addresses: %w", err)
	}

	for _, iface := range ifaces {
		for _, addr := range iface.Addrs {
			if addr.Type == libvirt.IP_ADDR_TYPE_IPV4 {
				return addr.Addr, true, nil
			}
		}
	}
	return "", false, nil
}

func toLibvirtXML(domain *libvirt.Domain) (libvirtxml.Domain, error) {
	domainXML := libvirtxml.Domain{}
	domainXMLString, err := domain.GetXMLDesc(libvirt.DOMAIN_XML_INACTIVE)
	if err != nil {
		return domainXML, fmt.Errorf("could not read domain XML: %w", err)
	}

	if err = domainXML.Unmarshal(domainXMLString); err != nil {
		return domainXML, fmt.Errorf("could not parse domain XML: %w", err)
	}
	return domainXML, nil
}
