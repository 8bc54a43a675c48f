package libvirt

import (
	"fmt"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/provision"
	"github.com/google/uuid"
	"libvirt.org/go/libvirtxml"
)

// buildDomain translates a resolved libvirt machine into domain XML.
func buildDomain(machine provision.Machine, id uuid.UUID, diskPath, network string) (*libvirtxml.Domain, error) {
	if machine.Libvirt == nil {
		return nil, fmt.Errorf("machine %s has no libvirt settings", machine.Hostname)
	}
	settings := machine.Libvirt

	graphics, err := buildGraphics(settings.GraphicsType)
	if err != nil {
		return nil, err
	}

	return &libvirtxml.Domain{
		Type: "kvm",
		Name: machine.Hostname,
		UUID: id.String(),
		Memory: &libvirtxml.DomainMemory{
			Value: uint(settings.MemoryMiB),
			Unit:  "MiB",
		},
		CurrentMemory: &libvirtxml.DomainCurrentMemory{
			Value: uint(settings.MemoryMiB),
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Value: uint(settings.CPUs),
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Arch:    "x86_64",
				Machine: "pc",
				Type:    "hvm",
			},
			BootDevices: []libvirtxml.DomainBootDevice{{Dev: "hd"}},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
		},
		Devices: &libvirtxml.DomainDeviceList{
			Disks: []libvirtxml.DomainDisk{
				{
					Device: "disk",
					Driver: &libvirtxml.DomainDiskDriver{
						Name: "qemu",
						Type: "qcow2",
					},
					Source: &libvirtxml.DomainDiskSource{
						File: &libvirtxml.DomainDiskSourceFile{File: diskPath},
					},
					Target: &libvirtxml.DomainDiskTarget{
						Dev: "vda",
						Bus: "virtio",
					},
				},
			},
			Interfaces: []libvirtxml.DomainInterface{
				{
					Source: &libvirtxml.DomainInterfaceSource{
						Network: &libvirtxml.DomainInterfaceSourceNetwork{Network: network},
					},
					Model: &libvirtxml.DomainInterfaceModel{Type: "virtio"},
				},
			},
			Serials: []libvirtxml.DomainSerial{
				{
					Source: &libvirtxml.DomainChardevSource{
						Pty: &libvirtxml.DomainChardevSourcePty{},
					},
					Target: &libvirtxml.DomainSerialTarget{
						Port: uintPtr(0),
					},
				},
			},
			Consoles: []libvirtxml.DomainConsole{
				{
					Source: &libvirtxml.DomainChardevSource{
						Pty: &libvirtxml.DomainChardevSourcePty{},
					},
					Target: &libvirtxml.DomainConsoleTarget{
						Type: "serial",
						Port: uintPtr(0),
					},
				},
			},
			Graphics: graphics,
		},
	}, nil
}

func buildGraphics(graphicsType string) ([]libvirtxml.DomainGraphic, error) {
	switch graphicsType {
	case "none":
		return nil, nil
	case "", "vnc":
		return []libvirtxml.DomainGraphic{
			{VNC: &libvirtxml.DomainGraphicVNC{Port: -1, AutoPort: "yes"}},
		}, nil
	case "spice":
		return []libvirtxml.DomainGraphic{
			{Spice: &libvirtxml.DomainGraphicSpice{Port: -1, AutoPort: "yes"}},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported graphics type: %s", graphicsType)
	}
}

func uintPtr(v uint) *uint {
	return &v
}
