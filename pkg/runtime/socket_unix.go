//go:build !windows

package runtime

import (
	"context"
	"net"

	"github.com/go-errors/errors"
)

// DefaultSocket is the engine endpoint used when none is configured.
func DefaultSocket() string {
	return "unix:///var/run/docker.sock"
}

func dialPipe(_ context.Context, _ string) (net.Conn, error) {
	return nil, errors.New("named pipes are only available on windows")
}
