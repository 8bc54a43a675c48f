package runtime

import (
	"github.com/fossabot/StaticSiteGeneratorBenchmarks/pkg/executor"
	"libvirt.org/go/libvirt"
)

// HypervisorContext holds runtime dependencies for interacting with a hypervisor.
// These fields are injected by the connection manager and contain active connections and executors.
type HypervisorContext struct {
	URI      string            `json:"-"`
	Conn     *libvirt.Connect  `json:"-"`
	Executor executor.Executor `json:"-"`
}

// Endpoint tells how to reach a booted machine.
type Endpoint struct {
	// Address and Port of the guest SSH daemon as reachable from the host.
	Address string
	Port    int
	// GuestAddress identifies the guest to host side services such as NFS.
	GuestAddress string
	// HostAddress is the host as seen from inside the guest.
	HostAddress string
}
