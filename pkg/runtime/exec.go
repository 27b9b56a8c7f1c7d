package runtime

import (
	"context"
	"net/http"

	"github.com/go-errors/errors"
)

// ExecCreate registers a new exec instance inside a running container.
func (c *Client) ExecCreate(ctx context.Context, id string, opts ExecOptions) (*ExecCreated, error) {
	resp, err := c.do(ctx, http.MethodPost, "/containers/"+id+"/exec", nil, opts)
	if err != nil {
		return nil, notFound(err, id)
	}
	var created ExecCreated
	if err := decodeBody(resp, &created); err != nil {
		return nil, errors.Errorf("undecodable exec create response: %v", err)
	}
	if created.ID == "" {
		return nil, errors.New("exec create response carried no id")
	}
	return &created, nil
}

// ExecStart runs a previously created exec instance. With Detach set the
// engine answers once the process has been started; otherwise the
// response streams its output, which this detached variant does not
// support — use ExecAttach for interactive execs.
func (c *Client) ExecStart(ctx context.Context, execID string, opts ExecStartOptions) error {
	resp, err := c.do(ctx, http.MethodPost, "/exec/"+execID+"/start", nil, opts)
	if err != nil {
		return err
	}
	ensureClosed(resp)
	return nil
}

// ExecInspect reports the state of an exec instance, in particular its
// exit code once it has finished.
func (c *Client) ExecInspect(ctx context.Context, execID string) (*ExecInspectResult, error) {
	resp, err := c.do(ctx, http.MethodGet, "/exec/"+execID+"/json", nil, nil)
	if err != nil {
		return nil, err
	}
	var result ExecInspectResult
	if err := decodeBody(resp, &result); err != nil {
		return nil, errors.Errorf("undecodable exec inspect response: %v", err)
	}
	return &result, nil
}
