package provision

import "fmt"

const (
	Hostname        = "SSGBERK-all"
	LibvirtBox      = "generic/ubuntu1604"
	VirtualBoxBox   = "ubuntu/xenial64"
	BootstrapScript = "bootstrap.sh"

	SharedHostPath  = "../.."
	SharedGuestPath = "/home/vagrant/StaticSiteGeneratorBenchmarks"

	DefaultMemoryMiB = 3022
	DefaultCPUs      = 2
)

// DefaultEnvironment is what an empty process environment resolves to.
func DefaultEnvironment() Environment {
	return Environment{
		KVM:        Resources{MemoryMiB: DefaultMemoryMiB, CPUs: DefaultCPUs},
		VirtualBox: Resources{MemoryMiB: DefaultMemoryMiB, CPUs: DefaultCPUs},
	}
}

// New builds the benchmark VM configuration.
func New(env Environment) *Config {
	cfg := &Config{}
	ProvisionBootstrap(cfg)
	ProviderLibvirt(cfg, env)
	ProviderVirtualBox(cfg, env)
	return cfg
}

// ProvisionBootstrap registers bootstrap.sh as a privileged shell step.
func ProvisionBootstrap(cfg *Config) {
	step := ShellProvisioner{
		Path:       BootstrapScript,
		Privileged: true,
	}

	for _, p := range cfg.VM.Provisioners {
		if p == step {
			return
		}
	}
	cfg.VM.Provisioners = append(cfg.VM.Provisioners, step)
}

// ProviderLibvirt attaches the KVM block. The project is shared over NFS
// with synchronous TCP semantics.
func ProviderLibvirt(cfg *Config, env Environment) {
	settings := &LibvirtSettings{
		MemoryMiB: env.KVM.MemoryMiB,
		CPUs:      env.KVM.CPUs,
	}
	if !env.ShowVM {
		settings.GraphicsType = "none"
	}

	cfg.VM.setProvider(&Provider{
		Name: PROVIDER_LIBVIRT,
		Override: Override{
			Hostname: Hostname,
			Box:      LibvirtBox,
			SyncedFolders: []SyncedFolder{
				{
					HostPath:  SharedHostPath,
					GuestPath: SharedGuestPath,
					Type:      SYNCED_FOLDER_NFS,
					Options:   map[string]any{"nfs_udp": false},
				},
			},
		},
		Libvirt: settings,
	})
}

// ProviderVirtualBox attaches the VirtualBox block.
//
// The vboxsf shared folder filesystem has no chown/chmod. Ownership and
// modes are fixed at mount time for the whole share, so the folder is
// mounted 777 owned by vagrant. Most software copes with that; some does
// not. See mitchellh/vagrant#4997.
func ProviderVirtualBox(cfg *Config, env Environment) {
	cfg.VM.setProvider(&Provider{
		Name: PROVIDER_VIRTUALBOX,
		Override: Override{
			Hostname: Hostname,
			Box:      VirtualBoxBox,
			SyncedFolders: []SyncedFolder{
				{
					HostPath:  SharedHostPath,
					GuestPath: SharedGuestPath,
				},
			},
		},
		VirtualBox: &VirtualBoxSettings{
			GUI:       env.ShowVM,
			MemoryMiB: env.VirtualBox.MemoryMiB,
			CPUs:      env.VirtualBox.CPUs,
			// NAT DNS through the host resolver, much faster on Windows hosts
			// (mitchellh/vagrant#1807).
			Customizations: [][]string{
				{"modifyvm", VMIDPlaceholder, "--natdnshostresolver1", "on"},
				{"modifyvm", VMIDPlaceholder, "--natdnsproxy1", "on"},
			},
		},
	})
}

func (vm *VM) setProvider(p *Provider) {
	for i, existing := range vm.Providers {
		if existing.Name == p.Name {
			vm.Providers[i] = p
			return
		}
	}
	vm.Providers = append(vm.Providers, p)
}

// ProviderNames returns the configured providers in declaration order.
func (c *Config) ProviderNames() []ProviderName {
	names := make([]ProviderName, len(c.VM.Providers))
	for i, p := range c.VM.Providers {
		names[i] = p.Name
	}
	return names
}

// Resolve applies exactly one provider block and returns the resulting machine.
func (c *Config) Resolve(name ProviderName) (Machine, error) {
	if _, err := ParseProviderName(string(name)); err != nil {
		return Machine{}, err
	}

	for _, p := range c.VM.Providers {
		if p.Name != name {
			continue
		}

		machine := Machine{
			Provider:      p.Name,
			Hostname:      p.Override.Hostname,
			Box:           p.Override.Box,
			Provisioners:  append([]ShellProvisioner(nil), c.VM.Provisioners...),
			SyncedFolders: append([]SyncedFolder(nil), p.Override.SyncedFolders...),
			Libvirt:       p.Libvirt,
			VirtualBox:    p.VirtualBox,
		}
		if err := machine.validate(); err != nil {
			return Machine{}, err
		}
		return machine, nil
	}

	return Machine{}, fmt.Errorf("%w: %s", ErrProviderNotConfigured, name)
}

func (m Machine) validate() error {
	var memory, cpus int
	switch {
	case m.Libvirt != nil:
		memory, cpus = m.Libvirt.MemoryMiB, m.Libvirt.CPUs
	case m.VirtualBox != nil:
		memory, cpus = m.VirtualBox.MemoryMiB, m.VirtualBox.CPUs
	default:
		return fmt.Errorf("provider %s has no settings", m.Provider)
	}

	if memory <= 0 {
		return fmt.Errorf("provider %s: memory must be positive, got %d", m.Provider, memory)
	}
	if cpus <= 0 {
		return fmt.Errorf("provider %s: cpu count must be positive, got %d", m.Provider, cpus)
	}
	return nil
}
