//go:build !windows

package deploy

// defaultNetworkMode is host networking on POSIX hosts, so bound ports
// are reachable without engine-level NAT.
func defaultNetworkMode() string {
	return "host"
}
