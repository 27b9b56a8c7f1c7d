package runtime

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/sirupsen/logrus"
)

const (
	// fallbackAPIVersion keeps the client usable against engines too old to
	// answer the version probe.
	fallbackAPIVersion = "1.24"

	// dummyHost is a placeholder hostname for socket transports; the engine
	// ignores it but net/http requires one.
	dummyHost = "kswings-runtime"

	unixProtocol  = "unix"
	npipeProtocol = "npipe"
	tcpProtocol   = "tcp"
)

// Client speaks the container engine HTTP API over a local socket (or TCP,
// which exists for tests and remote engines). One instance is shared by the
// whole process; each request holds its own connection.
type Client struct {
	Log *logrus.Entry

	proto   string
	addr    string
	version string

	client *http.Client
	dial   func(ctx context.Context) (net.Conn, error)
}

// NewClient connects a client to the engine at the given endpoint and
// negotiates the API version. An empty endpoint selects the OS default
// socket. Reachability is not verified here; use Ping for that.
func NewClient(log *logrus.Entry, endpoint string) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultSocket()
	}
	proto, addr, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	c := &Client{
		Log:   log,
		proto: proto,
		addr:  addr,
	}

	switch proto {
	case unixProtocol:
		c.dial = func(ctx context.Context) (net.Conn, error) {
			return new(net.Dialer).DialContext(ctx, "unix", addr)
		}
	case npipeProtocol:
		c.dial = func(ctx context.Context) (net.Conn, error) {
			return dialPipe(ctx, addr)
		}
	case tcpProtocol:
		c.dial = func(ctx context.Context) (net.Conn, error) {
			return new(net.Dialer).DialContext(ctx, "tcp", addr)
		}
	}

	c.client = &http.Client{
		Transport: &http.Transport{
			DisableCompression: true,
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return c.dial(ctx)
			},
		},
	}

	c.negotiateVersion()

	return c, nil
}

// parseEndpoint splits an endpoint like "unix:///var/run/docker.sock",
// "npipe:////./pipe/docker_engine" or "tcp://127.0.0.1:2375" into protocol
// and address. A bare path is treated as a unix socket.
func parseEndpoint(endpoint string) (proto string, addr string, err error) {
	switch {
	case strings.HasPrefix(endpoint, "unix://"):
		return unixProtocol, strings.TrimPrefix(endpoint, "unix://"), nil
	case strings.HasPrefix(endpoint, "npipe://"):
		return npipeProtocol, strings.TrimPrefix(endpoint, "npipe://"), nil
	case strings.HasPrefix(endpoint, "tcp://"):
		return tcpProtocol, strings.TrimPrefix(endpoint, "tcp://"), nil
	case strings.HasPrefix(endpoint, "http://"):
		return tcpProtocol, strings.TrimPrefix(endpoint, "http://"), nil
	case strings.HasPrefix(endpoint, "/"):
		return unixProtocol, endpoint, nil
	}
	return "", "", errors.Errorf("unsupported runtime endpoint %q", endpoint)
}

// negotiateVersion probes the engine with a version-less GET /version so
// subsequent calls can prefix paths with /v<version>. On failure the
// fallback version is used and the client stays usable.
func (c *Client) negotiateVersion() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info, err := c.Version(ctx)
	if err != nil || info.APIVersion == "" {
		c.Log.WithError(err).Warnf("runtime version probe failed, assuming API v%s", fallbackAPIVersion)
		c.version = fallbackAPIVersion
		return
	}

	c.version = info.APIVersion
	c.Log.Infof("runtime API v%s (%s %s)", info.APIVersion, info.Platform(), info.Version)
}

// APIVersion returns the negotiated engine API version.
func (c *Client) APIVersion() string {
	return c.version
}

func (c *Client) apiPath(path string) string {
	if c.version == "" {
		return path
	}
	return "/v" + c.version + path
}

func (c *Client) host() string {
	if c.proto == tcpProtocol {
		return c.addr
	}
	return dummyHost
}

// Close releases idle connections. In-flight streams own their connections
// and are closed by their consumers.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
