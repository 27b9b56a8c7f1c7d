package runtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-errors/errors"
)

// HijackedResponse wraps the raw bidirectional connection handed back by
// the engine after an attach or interactive exec. Writes reach the
// process's stdin; Reader carries its output (multiplexed unless the
// process runs with a TTY).
type HijackedResponse struct {
	Conn   net.Conn
	Reader *bufio.Reader
}

// Close severs the connection, ending both directions.
func (h *HijackedResponse) Close() error {
	return h.Conn.Close()
}

// CloseWrite half-closes the connection, signalling EOF on the process's
// stdin while its output keeps flowing.
func (h *HijackedResponse) CloseWrite() error {
	if cw, ok := h.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return h.Conn.Close()
}

// ContainerAttach attaches to a container's standard streams over an
// upgraded connection. The container must run with OpenStdin for writes
// to land anywhere.
func (c *Client) ContainerAttach(ctx context.Context, id string, opts AttachOptions) (*HijackedResponse, error) {
	query := url.Values{}
	query.Set("stream", strconv.FormatBool(opts.Stream))
	query.Set("stdin", strconv.FormatBool(opts.Stdin))
	query.Set("stdout", strconv.FormatBool(opts.Stdout))
	query.Set("stderr", strconv.FormatBool(opts.Stderr))

	hijacked, err := c.hijack(ctx, "/containers/"+id+"/attach", query, nil)
	if err != nil {
		return nil, notFound(err, id)
	}
	return hijacked, nil
}

// ExecAttach starts a created exec instance and attaches to its streams
// over an upgraded connection.
func (c *Client) ExecAttach(ctx context.Context, execID string, opts ExecStartOptions) (*HijackedResponse, error) {
	return c.hijack(ctx, "/exec/"+execID+"/start", nil, opts)
}

// hijack performs a POST that upgrades the connection to a raw tcp
// stream. The standard transport cannot hand us the connection, so we
// dial and speak the request ourselves.
func (c *Client) hijack(ctx context.Context, path string, query url.Values, body any) (*HijackedResponse, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	u := &url.URL{
		Scheme:   "http",
		Host:     c.host(),
		Path:     c.apiPath(path),
		RawQuery: query.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "tcp")

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, &ConnectionError{Addr: c.addr, Err: err}
	}

	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, errors.Errorf("writing hijack request: %v", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close()
		return nil, errors.Errorf("reading hijack response: %v", err)
	}

	switch resp.StatusCode {
	case http.StatusSwitchingProtocols, http.StatusOK:
		// Engines answer 101 on modern API versions, plain 200 on older
		// ones; either way the connection is ours from here on.
		return &HijackedResponse{Conn: conn, Reader: br}, nil
	default:
		err := checkResponse(resp)
		conn.Close()
		if err == nil {
			err = fmt.Errorf("unexpected hijack status %d", resp.StatusCode)
		}
		return nil, err
	}
}
