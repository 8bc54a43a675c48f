package virtualbox

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/infrastructure/syncedfolder"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/provision"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/internal/runtime"
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor/executortest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const notRegistered = "VBoxManage: error: Could not find a registered machine named 'SSGBERK-all'\n" +
	"VBoxManage: error: Details: code VBOX_E_OBJECT_NOT_FOUND (0x80bb0001), component VirtualBoxWrap, interface IVirtualBox\n"

func newTestManager(rec *executortest.Recorder) *Manager {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	folders := syncedfolder.NewManager(rec, "/work/repo/deployment/vagrant", "vagrant", log)
	return NewManager(rec, folders, Options{BoxOVF: "/boxes/xenial/box.ovf", SSHPort: 2222}, log)
}

func resolveVirtualBox(t *testing.T, env provision.Environment) provision.Machine {
	t.Helper()
	machine, err := provision.New(env).Resolve(provision.PROVIDER_VIRTUALBOX)
	require.NoError(t, err)
	return machine
}

func TestUp_CreatesMachine(t *testing.T) {
	rec := executortest.NewRecorder("host")
	rec.Respond("VBoxManage showvminfo", executortest.Response{ExitCode: 1, Stderr: notRegistered})

	endpoint, err := newTestManager(rec).Up(context.Background(), resolveVirtualBox(t, provision.DefaultEnvironment()))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"VBoxManage showvminfo SSGBERK-all --machinereadable",
		"VBoxManage import /boxes/xenial/box.ovf --vsys 0 --vmname SSGBERK-all",
		"VBoxManage modifyvm SSGBERK-all --memory 3022 --cpus 2",
		"VBoxManage modifyvm SSGBERK-all --natdnshostresolver1 on",
		"VBoxManage modifyvm SSGBERK-all --natdnsproxy1 on",
		"VBoxManage sharedfolder add SSGBERK-all --name home_vagrant_StaticSiteGeneratorBenchmarks --hostpath /work/repo",
		"VBoxManage modifyvm SSGBERK-all --natpf1 ssh,tcp,127.0.0.1,2222,,22",
		"VBoxManage startvm SSGBERK-all --type headless",
	}, rec.Commands())

	assert.Equal(t, runtime.Endpoint{
		Address:      "127.0.0.1",
		Port:         2222,
		GuestAddress: "10.0.2.15",
		HostAddress:  "10.0.2.2",
	}, endpoint)
}

func TestUp_ShowVMStartsGUI(t *testing.T) {
	rec := executortest.NewRecorder("host")
	rec.Respond("VBoxManage showvminfo", executortest.Response{Stdout: "VMState=\"poweroff\"\n"})

	env := provision.DefaultEnvironment()
	env.ShowVM = true
	_, err := newTestManager(rec).Up(context.Background(), resolveVirtualBox(t, env))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"VBoxManage showvminfo SSGBERK-all --machinereadable",
		"VBoxManage startvm SSGBERK-all --type gui",
	}, rec.Commands())
}

func TestUp_AlreadyRunning(t *testing.T) {
	rec := executortest.NewRecorder("host")
	rec.Respond("VBoxManage showvminfo", executortest.Response{Stdout: "VMState=\"running\"\n"})

	_, err := newTestManager(rec).Up(context.Background(), resolveVirtualBox(t, provision.DefaultEnvironment()))
	require.NoError(t, err)
	assert.Len(t, rec.Commands(), 1)
}

func TestUp_ImportFailure(t *testing.T) {
	rec := executortest.NewRecorder("host")
	rec.Respond("VBoxManage showvminfo", executortest.Response{ExitCode: 1, Stderr: notRegistered})
	rec.Respond("VBoxManage import", executortest.Response{ExitCode: 1, Stderr: "OVF not found"})

	_, err := newTestManager(rec).Up(context.Background(), resolveVirtualBox(t, provision.DefaultEnvironment()))
	assert.ErrorContains(t, err, "could not import box")
	assert.ErrorContains(t, err, "OVF not found")
}

func TestUp_ImportFailureLeavesNothingToRemove(t *testing.T) {
	rec := executortest.NewRecorder("host")
	rec.Respond("VBoxManage showvminfo", executortest.Response{ExitCode: 1, Stderr: notRegistered})
	rec.Respond("VBoxManage import", executortest.Response{ExitCode: 1})

	_, err := newTestManager(rec).Up(context.Background(), resolveVirtualBox(t, provision.DefaultEnvironment()))
	require.Error(t, err)
	assert.NotContains(t, rec.Commands(), "VBoxManage unregistervm SSGBERK-all --delete")
}

func TestUp_ConfigureFailureUnregisters(t *testing.T) {
	rec := executortest.NewRecorder("host")
	rec.Respond("VBoxManage showvminfo", executortest.Response{ExitCode: 1, Stderr: notRegistered})
	rec.Respond("VBoxManage sharedfolder", executortest.Response{ExitCode: 1, Stderr: "host path does not exist"})

	_, err := newTestManager(rec).Up(context.Background(), resolveVirtualBox(t, provision.DefaultEnvironment()))
	assert.ErrorContains(t, err, "could not add shared folder")

	commands := rec.Commands()
	assert.Equal(t, "VBoxManage unregistervm SSGBERK-all --delete", commands[len(commands)-1])
	assert.NotContains(t, commands, "VBoxManage startvm SSGBERK-all --type headless")
}

func TestUp_StateQueryFailure(t *testing.T) {
	rec := executortest.NewRecorder("host")
	rec.Respond("VBoxManage showvminfo", executortest.Response{
		ExitCode: 1,
		Stderr:   "VBoxManage: error: Failed to create the VirtualBox object!",
	})

	_, err := newTestManager(rec).Up(context.Background(), resolveVirtualBox(t, provision.DefaultEnvironment()))
	assert.ErrorContains(t, err, "could not query VM state")
	assert.Equal(t, []string{"VBoxManage showvminfo SSGBERK-all --machinereadable"}, rec.Commands())
}

func TestDestroy_StateQueryFailure(t *testing.T) {
	rec := executortest.NewRecorder("host")
	rec.Respond("VBoxManage showvminfo", executortest.Response{ExitCode: 126, Stderr: "permission denied"})

	err := newTestManager(rec).Destroy(context.Background(), resolveVirtualBox(t, provision.DefaultEnvironment()))
	assert.ErrorContains(t, err, "could not query VM state")
	assert.Len(t, rec.Commands(), 1)
}

func TestEndpoint_NotRunning(t *testing.T) {
	rec := executortest.NewRecorder("host")
	rec.Respond("VBoxManage showvminfo", executortest.Response{Stdout: "VMState=\"saved\"\n"})

	_, err := newTestManager(rec).Endpoint(context.Background(), resolveVirtualBox(t, provision.DefaultEnvironment()))
	assert.EqualError(t, err, "machine SSGBERK-all is saved, not running")
}

func TestDestroy(t *testing.T) {
	rec := executortest.NewRecorder("host")
	rec.Respond("VBoxManage showvminfo", executortest.Response{Stdout: "VMState=\"running\"\n"})

	require.NoError(t, newTestManager(rec).Destroy(context.Background(), resolveVirtualBox(t, provision.DefaultEnvironment())))

	assert.Equal(t, []string{
		"VBoxManage showvminfo SSGBERK-all --machinereadable",
		"VBoxManage controlvm SSGBERK-all poweroff",
		"VBoxManage unregistervm SSGBERK-all --delete",
	}, rec.Commands())
}

func TestDestroy_NotRegistered(t *testing.T) {
	rec := executortest.NewRecorder("host")
	rec.Respond("VBoxManage showvminfo", executortest.Response{ExitCode: 1, Stderr: notRegistered})

	require.NoError(t, newTestManager(rec).Destroy(context.Background(), resolveVirtualBox(t, provision.DefaultEnvironment())))
	assert.Len(t, rec.Commands(), 1)
}

func TestSubstituteID(t *testing.T) {
	args := []string{"modifyvm", ":id", "--natdnsproxy1", "on"}

	assert.Equal(t, []string{"modifyvm", "SSGBERK-all", "--natdnsproxy1", "on"}, substituteID(args, "SSGBERK-all"))
	assert.Equal(t, ":id", args[1])
}
