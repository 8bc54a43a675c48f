package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/provision"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

type Config struct {
	ShowVM     bool
	KVM        provision.Resources
	VirtualBox provision.Resources

	LogLevel         string
	LogFormat        string
	TelemetryEnabled bool

	VagrantDir string

	LibvirtURI        string
	LibvirtNetwork    string
	LibvirtDataDir    string
	LibvirtBoxImage   string
	LibvirtDiskSizeGB int64
	NFSHostAddress    string

	VirtualBoxBoxOVF  string
	VirtualBoxSSHPort int

	SSHUser     string
	SSHKey      string
	BootTimeout time.Duration
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("kvm_mem", provision.DefaultMemoryMiB)
	v.SetDefault("kvm_cpu", provision.DefaultCPUs)
	v.SetDefault("vb_mem", provision.DefaultMemoryMiB)
	v.SetDefault("vb_cpu", provision.DefaultCPUs)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("telemetry_enabled", false)
	v.SetDefault("vagrant_dir", ".")
	v.SetDefault("libvirt_uri", "qemu:///system")
	v.SetDefault("libvirt_network", "default")
	v.SetDefault("libvirt_data_dir", "/var/lib/libvirt/images")
	v.SetDefault("libvirt_box_image", "")
	v.SetDefault("libvirt_disk_size_gb", 40)
	v.SetDefault("nfs_host_address", "192.168.122.1")
	v.SetDefault("virtualbox_box_ovf", "")
	v.SetDefault("virtualbox_ssh_port", 2222)
	v.SetDefault("ssh_user", "vagrant")
	v.SetDefault("ssh_key", "~/.vagrant.d/insecure_private_key")
	v.SetDefault("boot_timeout", "5m")

	v.SetEnvPrefix("ssgberk")
	v.AutomaticEnv()

	// Presence alone enables the console, even with an empty value.
	_, showVM := os.LookupEnv("SSGBERK_SHOW_VM")

	cfg := &Config{
		ShowVM:           showVM,
		LogLevel:         strings.ToLower(v.GetString("log_level")),
		LogFormat:        strings.ToLower(v.GetString("log_format")),
		TelemetryEnabled: v.GetBool("telemetry_enabled"),
		VagrantDir:       v.GetString("vagrant_dir"),
		LibvirtURI:       v.GetString("libvirt_uri"),
		LibvirtNetwork:   v.GetString("libvirt_network"),
		LibvirtDataDir:   v.GetString("libvirt_data_dir"),
		LibvirtBoxImage:  v.GetString("libvirt_box_image"),
		NFSHostAddress:   v.GetString("nfs_host_address"),
		VirtualBoxBoxOVF: v.GetString("virtualbox_box_ovf"),
		SSHUser:          v.GetString("ssh_user"),
		SSHKey:           v.GetString("ssh_key"),
	}

	ints := []struct {
		key    string
		target *int
	}{
		{"kvm_mem", &cfg.KVM.MemoryMiB},
		{"kvm_cpu", &cfg.KVM.CPUs},
		{"vb_mem", &cfg.VirtualBox.MemoryMiB},
		{"vb_cpu", &cfg.VirtualBox.CPUs},
		{"virtualbox_ssh_port", &cfg.VirtualBoxSSHPort},
	}
	for _, i := range ints {
		value, err := cast.ToIntE(v.Get(i.key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", i.key, err)
		}
		*i.target = value
	}

	diskSize, err := cast.ToInt64E(v.Get("libvirt_disk_size_gb"))
	if err != nil {
		return nil, fmt.Errorf("invalid libvirt_disk_size_gb: %w", err)
	}
	cfg.LibvirtDiskSizeGB = diskSize

	bootTimeout, err := cast.ToDurationE(v.Get("boot_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid boot_timeout: %w", err)
	}
	cfg.BootTimeout = bootTimeout

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"kvm memory", c.KVM.MemoryMiB},
		{"kvm cpu count", c.KVM.CPUs},
		{"virtualbox memory", c.VirtualBox.MemoryMiB},
		{"virtualbox cpu count", c.VirtualBox.CPUs},
		{"virtualbox ssh port", c.VirtualBoxSSHPort},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}

	if c.LibvirtDiskSizeGB <= 0 {
		return fmt.Errorf("libvirt disk size must be positive, got %d", c.LibvirtDiskSizeGB)
	}

	if c.BootTimeout <= 0 {
		return fmt.Errorf("boot timeout must be positive, got %s", c.BootTimeout)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.LogFormat)
	}

	return nil
}

// ValidateRuntime checks what bringing up a VM on the given provider needs
// beyond the configuration emitter.
func (c *Config) ValidateRuntime(provider provision.ProviderName) error {
	switch provider {
	case provision.PROVIDER_LIBVIRT:
		if c.LibvirtBoxImage == "" {
			return fmt.Errorf("libvirt box image: not set (SSGBERK_LIBVIRT_BOX_IMAGE)")
		}
		if err := validateFileExists(c.LibvirtBoxImage); err != nil {
			return fmt.Errorf("libvirt box image: %w", err)
		}
	case provision.PROVIDER_VIRTUALBOX:
		if c.VirtualBoxBoxOVF == "" {
			return fmt.Errorf("virtualbox box ovf: not set (SSGBERK_VIRTUALBOX_BOX_OVF)")
		}
		if err := validateFileExists(c.VirtualBoxBoxOVF); err != nil {
			return fmt.Errorf("virtualbox box ovf: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", provision.ErrUnknownProvider, provider)
	}

	if err := validateFileExists(filepath.Join(c.VagrantDir, provision.BootstrapScript)); err != nil {
		return fmt.Errorf("bootstrap script: %w", err)
	}

	return nil
}

// Environment returns the inputs of the configuration emitter.
func (c *Config) Environment() provision.Environment {
	return provision.Environment{
		ShowVM:     c.ShowVM,
		KVM:        c.KVM,
		VirtualBox: c.VirtualBox,
	}
}

func validateFileExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", path)
	} else if err != nil {
		return fmt.Errorf("cannot access file: %w", err)
	}
	return nil
}
