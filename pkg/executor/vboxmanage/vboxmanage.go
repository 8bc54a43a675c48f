// Package vboxmanage wraps the VBoxManage command line.
package vboxmanage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor"
)

const binary = "VBoxManage"

// ErrMachineNotFound is returned when VBoxManage reports no registered
// machine by the given name.
var ErrMachineNotFound = errors.New("machine not registered")

// Run executes VBoxManage with args and returns its stdout.
func Run(ctx context.Context, exec executor.Executor, args ...string) (string, error) {
	result, err := executor.RunAndCapture(ctx, exec, binary, args...)
	if err != nil {
		if machineNotFound(result.Stderr) {
			err = fmt.Errorf("%w: %w", ErrMachineNotFound, err)
		}
		return "", fmt.Errorf("VBoxManage %s failed: %w\nstderr: %s",
			strings.Join(args, " "), err, result.Stderr)
	}
	return result.Stdout, nil
}

func machineNotFound(stderr string) bool {
	return strings.Contains(stderr, "VBOX_E_OBJECT_NOT_FOUND") ||
		strings.Contains(stderr, "Could not find a registered machine")
}

type ImportOptions struct {
	OVFPath string
	Name    string
}

func Import(ctx context.Context, exec executor.Executor, opts ImportOptions) error {
	_, err := Run(ctx, exec, "import", opts.OVFPath, "--vsys", "0", "--vmname", opts.Name)
	return err
}

type ModifyOptions struct {
	MemoryMiB int
	CPUs      int
}

func Modify(ctx context.Context, exec executor.Executor, name string, opts ModifyOptions) error {
	_, err := Run(ctx, exec, "modifyvm", name,
		"--memory", strconv.Itoa(opts.MemoryMiB),
		"--cpus", strconv.Itoa(opts.CPUs),
	)
	return err
}

type SharedFolderOptions struct {
	Name     string
	HostPath string
}

func AddSharedFolder(ctx context.Context, exec executor.Executor, vm string, opts SharedFolderOptions) error {
	_, err := Run(ctx, exec, "sharedfolder", "add", vm, "--name", opts.Name, "--hostpath", opts.HostPath)
	return err
}

type PortForward struct {
	Name      string
	HostIP    string
	HostPort  int
	GuestPort int
}

// AddNATPortForward adds a TCP forwarding rule on the first NAT adapter.
func AddNATPortForward(ctx context.Context, exec executor.Executor, vm string, rule PortForward) error {
	forward := fmt.Sprintf("%s,tcp,%s,%d,,%d", rule.Name, rule.HostIP, rule.HostPort, rule.GuestPort)
	_, err := Run(ctx, exec, "modifyvm", vm, "--natpf1", forward)
	return err
}

func Start(ctx context.Context, exec executor.Executor, vm string, gui bool) error {
	startType := "headless"
	if gui {
		startType = "gui"
	}
	_, err := Run(ctx, exec, "startvm", vm, "--type", startType)
	return err
}

func PowerOff(ctx context.Context, exec executor.Executor, vm string) error {
	_, err := Run(ctx, exec, "controlvm", vm, "poweroff")
	return err
}

func Unregister(ctx context.Context, exec executor.Executor, vm string) error {
	_, err := Run(ctx, exec, "unregistervm", vm, "--delete")
	return err
}

// State returns the VMState value of showvminfo, e.g. "running" or "poweroff".
func State(ctx context.Context, exec executor.Executor, vm string) (string, error) {
	out, err := Run(ctx, exec, "showvminfo", vm, "--machinereadable")
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(out, "\n") {
		value, found := strings.CutPrefix(strings.TrimSpace(line), "VMState=")
		if found {
			return strings.Trim(value, `"`), nil
		}
	}
	return "", fmt.Errorf("VBoxManage showvminfo %s: no VMState in output", vm)
}
