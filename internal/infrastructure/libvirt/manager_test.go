package libvirt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/infrastructure/disk"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/provision"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor/executortest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"libvirt.org/go/libvirt"
)

type fakeDefiner struct {
	xml    string
	domain *libvirt.Domain
	err    error
}

func (f *fakeDefiner) DomainDefineXML(xmlConfig string) (*libvirt.Domain, error) {
	f.xml = xmlConfig
	return f.domain, f.err
}

func newTestManager() *Manager {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(nil, disk.NewManager(log), Options{
		Network:    "default",
		DataDir:    "/images",
		BoxImage:   "/boxes/box.img",
		DiskSizeGB: 40,
	}, log)
}

func newHost() *executortest.Recorder {
	host := executortest.NewRecorder("host")
	host.Respond("qemu-img info", executortest.Response{Stdout: `{"format": "qcow2"}`})
	return host
}

func TestDefine(t *testing.T) {
	host := newHost()
	definer := &fakeDefiner{domain: &libvirt.Domain{}}

	domain, err := newTestManager().define(context.Background(), host, definer, resolveLibvirt(t, provision.DefaultEnvironment()))
	require.NoError(t, err)
	assert.Same(t, definer.domain, domain)

	assert.Contains(t, definer.xml, "/images/SSGBERK-all.qcow2")
	assert.Equal(t, []string{
		"qemu-img info --output=json /boxes/box.img",
		"qemu-img create -b /boxes/box.img -F qcow2 -f qcow2 /images/SSGBERK-all.qcow2 40G",
	}, host.Commands())
}

func TestDefine_FailureRemovesOverlay(t *testing.T) {
	host := newHost()
	definer := &fakeDefiner{err: errors.New("operation failed: domain 'SSGBERK-all' already exists")}

	_, err := newTestManager().define(context.Background(), host, definer, resolveLibvirt(t, provision.DefaultEnvironment()))
	assert.ErrorContains(t, err, "could not define VM from Libvirt XML")
	assert.ErrorContains(t, err, "already exists")

	commands := host.Commands()
	require.NotEmpty(t, commands)
	assert.Equal(t, "rm -f /images/SSGBERK-all.qcow2", commands[len(commands)-1])
}

func TestDefine_OverlayFailureDefinesNothing(t *testing.T) {
	host := executortest.NewRecorder("host")
	host.Respond("qemu-img info", executortest.Response{Stdout: `{"format": "vmdk"}`})
	definer := &fakeDefiner{}

	_, err := newTestManager().define(context.Background(), host, definer, resolveLibvirt(t, provision.DefaultEnvironment()))
	assert.EqualError(t, err, "unsupported backing file format: vmdk")
	assert.Empty(t, definer.xml)
	assert.Equal(t, []string{"qemu-img info --output=json /boxes/box.img"}, host.Commands())
}
