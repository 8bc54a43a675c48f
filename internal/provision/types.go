package provision

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProvider       = errors.New("unknown provider")
	ErrProviderNotConfigured = errors.New("provider not configured")
)

// ProviderName identifies a hypervisor backend.
type ProviderName string

const (
	PROVIDER_LIBVIRT    ProviderName = "libvirt"
	PROVIDER_VIRTUALBOX ProviderName = "virtualbox"
)

// ParseProviderName validates a provider name coming from a flag or request.
func ParseProviderName(name string) (ProviderName, error) {
	switch ProviderName(name) {
	case PROVIDER_LIBVIRT, PROVIDER_VIRTUALBOX:
		return ProviderName(name), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

// SyncedFolderType selects the transport used to share a host directory.
// The empty value means the provider's default transport.
type SyncedFolderType string

const (
	SYNCED_FOLDER_DEFAULT SyncedFolderType = ""
	SYNCED_FOLDER_NFS     SyncedFolderType = "nfs"
)

// VMIDPlaceholder stands for the VM identifier inside VirtualBox customizations.
const VMIDPlaceholder = ":id"

// Config is the configuration object the provider and provisioner attach
// functions write into.
type Config struct {
	VM VM `json:"vm"`
}

// VM holds the settings shared by every provider plus the provider blocks.
type VM struct {
	Provisioners []ShellProvisioner `json:"provisioners,omitempty"`
	Providers    []*Provider        `json:"providers,omitempty"`
}

// ShellProvisioner runs a script inside the guest during bring-up.
type ShellProvisioner struct {
	Path       string `json:"path"`
	Privileged bool   `json:"privileged"`
}

// Provider is the block applied only when its backend is the active one.
type Provider struct {
	Name       ProviderName        `json:"name"`
	Override   Override            `json:"override"`
	Libvirt    *LibvirtSettings    `json:"libvirt,omitempty"`
	VirtualBox *VirtualBoxSettings `json:"virtualbox,omitempty"`
}

// Override carries VM level settings a provider block replaces.
type Override struct {
	Hostname      string         `json:"hostname"`
	Box           string         `json:"box"`
	SyncedFolders []SyncedFolder `json:"synced_folders,omitempty"`
}

type LibvirtSettings struct {
	// GraphicsType "none" disables the graphical console; empty keeps the
	// hypervisor default (VNC).
	GraphicsType string `json:"graphics_type,omitempty"`
	MemoryMiB    int    `json:"memory_mib"`
	CPUs         int    `json:"cpus"`
}

type VirtualBoxSettings struct {
	GUI            bool       `json:"gui"`
	MemoryMiB      int        `json:"memory_mib"`
	CPUs           int        `json:"cpus"`
	Customizations [][]string `json:"customizations,omitempty"`
}

// SyncedFolder maps a host directory into the guest.
type SyncedFolder struct {
	HostPath  string           `json:"host_path"`
	GuestPath string           `json:"guest_path"`
	Type      SyncedFolderType `json:"type,omitempty"`
	Options   map[string]any   `json:"options,omitempty"`
}

// Resources is the memory and CPU sizing of one provider.
type Resources struct {
	MemoryMiB int
	CPUs      int
}

// Environment holds the inputs the attach functions read from the process
// environment.
type Environment struct {
	ShowVM     bool
	KVM        Resources
	VirtualBox Resources
}

// Machine is the view of Config with a single provider applied.
type Machine struct {
	Provider      ProviderName
	Hostname      string
	Box           string
	Provisioners  []ShellProvisioner
	SyncedFolders []SyncedFolder
	Libvirt       *LibvirtSettings
	VirtualBox    *VirtualBoxSettings
}
