package vagrantfile

import (
	"strings"
	"testing"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/provision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const headlessVagrantfile = `# -*- mode: ruby -*-
# vi: set ft=ruby :
# Generated by ssgberk-vm render. Re-run it instead of editing by hand.

Vagrant.configure("2") do |config|
  config.vm.provision "shell" do |sh|
    sh.path = "bootstrap.sh"
    sh.privileged = true
  end

  config.vm.provider :libvirt do |virt, override|
    override.vm.hostname = "SSGBERK-all"
    override.vm.box = "generic/ubuntu1604"
    virt.graphics_type = "none"
    virt.memory = 3022
    virt.cpus = 2
    override.vm.synced_folder "../..", "/home/vagrant/StaticSiteGeneratorBenchmarks", type: "nfs", nfs_udp: false
  end

  config.vm.provider :virtualbox do |vb, override|
    override.vm.hostname = "SSGBERK-all"
    override.vm.box = "ubuntu/xenial64"
    vb.customize ["modifyvm", :id, "--natdnshostresolver1", "on"]
    vb.customize ["modifyvm", :id, "--natdnsproxy1", "on"]
    vb.memory = 3022
    vb.cpus = 2
    override.vm.synced_folder "../..", "/home/vagrant/StaticSiteGeneratorBenchmarks"
  end
end
`

func TestRender_Headless(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	out, err := renderer.RenderToBytes(provision.New(provision.DefaultEnvironment()))
	require.NoError(t, err)
	assert.Equal(t, headlessVagrantfile, string(out))
}

func TestRender_ShowVM(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	env := provision.Environment{
		ShowVM:     true,
		KVM:        provision.Resources{MemoryMiB: 8192, CPUs: 4},
		VirtualBox: provision.Resources{MemoryMiB: 2048, CPUs: 1},
	}

	var out strings.Builder
	require.NoError(t, renderer.Render(&out, provision.New(env)))

	assert.NotContains(t, out.String(), "graphics_type")
	assert.Contains(t, out.String(), "    vb.gui = true\n")
	assert.Contains(t, out.String(), "    virt.memory = 8192\n    virt.cpus = 4\n")
	assert.Contains(t, out.String(), "    vb.memory = 2048\n    vb.cpus = 1\n")
}

func TestRubyString_Escapes(t *testing.T) {
	assert.Equal(t, `"plain"`, rubyString("plain"))
	assert.Equal(t, `"say \"hi\""`, rubyString(`say "hi"`))
	assert.Equal(t, `"\#{ENV}"`, rubyString("#{ENV}"))
	assert.Equal(t, `"C:\\vagrant"`, rubyString(`C:\vagrant`))
	assert.Equal(t, `"it's"`, rubyString("it's"))
}

func TestSyncedFolderArgs_SortsOptions(t *testing.T) {
	folder := provision.SyncedFolder{
		HostPath:  "src",
		GuestPath: "/srv",
		Type:      provision.SYNCED_FOLDER_NFS,
		Options: map[string]any{
			"nfs_version": 4,
			"mount":       true,
			"nfs_udp":     false,
			"owner":       "vagrant",
		},
	}

	assert.Equal(t,
		`"src", "/srv", type: "nfs", mount: true, nfs_udp: false, nfs_version: 4, owner: "vagrant"`,
		syncedFolderArgs(folder),
	)
}

func TestRubyArray(t *testing.T) {
	assert.Equal(t, `["modifyvm", :id, "--cpus", "2"]`, rubyArray([]string{"modifyvm", ":id", "--cpus", "2"}))
	assert.Equal(t, `[]`, rubyArray(nil))
}
