package libvirt

import (
	"testing"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/provision"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"libvirt.org/go/libvirtxml"
)

func resolveLibvirt(t *testing.T, env provision.Environment) provision.Machine {
	t.Helper()
	machine, err := provision.New(env).Resolve(provision.PROVIDER_LIBVIRT)
	require.NoError(t, err)
	return machine
}

func roundTrip(t *testing.T, domain *libvirtxml.Domain) libvirtxml.Domain {
	t.Helper()
	xmlStr, err := domain.Marshal()
	require.NoError(t, err)

	var parsed libvirtxml.Domain
	require.NoError(t, parsed.Unmarshal(xmlStr))
	return parsed
}

func TestBuildDomain_Headless(t *testing.T) {
	id := uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000001")
	machine := resolveLibvirt(t, provision.DefaultEnvironment())

	domain, err := buildDomain(machine, id, "/images/SSGBERK-all.qcow2", "default")
	require.NoError(t, err)
	parsed := roundTrip(t, domain)

	assert.Equal(t, "kvm", parsed.Type)
	assert.Equal(t, "SSGBERK-all", parsed.Name)
	assert.Equal(t, id.String(), parsed.UUID)
	assert.Equal(t, uint(3022), parsed.Memory.Value)
	assert.Equal(t, "MiB", parsed.Memory.Unit)
	assert.Equal(t, uint(2), parsed.VCPU.Value)
	assert.Empty(t, parsed.Devices.Graphics)

	require.Len(t, parsed.Devices.Disks, 1)
	assert.Equal(t, "/images/SSGBERK-all.qcow2", parsed.Devices.Disks[0].Source.File.File)
	assert.Equal(t, "vda", parsed.Devices.Disks[0].Target.Dev)

	require.Len(t, parsed.Devices.Interfaces, 1)
	require.NotNil(t, parsed.Devices.Interfaces[0].Source.Network)
	assert.Equal(t, "default", parsed.Devices.Interfaces[0].Source.Network.Network)
}

func TestBuildDomain_ShowVM(t *testing.T) {
	env := provision.DefaultEnvironment()
	env.ShowVM = true
	env.KVM = provision.Resources{MemoryMiB: 16384, CPUs: 8}
	machine := resolveLibvirt(t, env)

	domain, err := buildDomain(machine, uuid.New(), "/images/vm.qcow2", "bench")
	require.NoError(t, err)
	parsed := roundTrip(t, domain)

	assert.Equal(t, uint(16384), parsed.Memory.Value)
	assert.Equal(t, uint(8), parsed.VCPU.Value)
	require.Len(t, parsed.Devices.Graphics, 1)
	require.NotNil(t, parsed.Devices.Graphics[0].VNC)
	assert.Equal(t, "yes", parsed.Devices.Graphics[0].VNC.AutoPort)
	assert.Equal(t, "bench", parsed.Devices.Interfaces[0].Source.Network.Network)
}

func TestBuildGraphics(t *testing.T) {
	graphics, err := buildGraphics("spice")
	require.NoError(t, err)
	require.Len(t, graphics, 1)
	assert.NotNil(t, graphics[0].Spice)

	_, err = buildGraphics("sdl")
	assert.EqualError(t, err, "unsupported graphics type: sdl")
}

func TestBuildDomain_RequiresLibvirtSettings(t *testing.T) {
	machine, err := provision.New(provision.DefaultEnvironment()).Resolve(provision.PROVIDER_VIRTUALBOX)
	require.NoError(t, err)

	_, err = buildDomain(machine, uuid.New(), "/images/vm.qcow2", "default")
	assert.ErrorContains(t, err, "has no libvirt settings")
}
