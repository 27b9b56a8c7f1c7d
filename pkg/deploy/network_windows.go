//go:build windows

package deploy

// defaultNetworkMode falls back to bridge networking on Windows, which
// has no host network driver.
func defaultNetworkMode() string {
	return "bridge"
}
