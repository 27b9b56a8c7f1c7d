//go:build windows

package runtime

import (
	"context"
	"net"

	winio "github.com/Microsoft/go-winio"
)

// DefaultSocket is the engine endpoint used when none is configured.
func DefaultSocket() string {
	return `npipe:////./pipe/docker_engine`
}

func dialPipe(ctx context.Context, addr string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, addr)
}
