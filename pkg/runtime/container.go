package runtime

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-errors/errors"
)

// Ping checks that the engine socket answers at all.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/_ping", nil, nil)
	if err != nil {
		return err
	}
	ensureClosed(resp)
	return nil
}

// Version returns the engine's version record.
func (c *Client) Version(ctx context.Context) (*VersionInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, "/version", nil, nil)
	if err != nil {
		return nil, err
	}
	var info VersionInfo
	if err := decodeBody(resp, &info); err != nil {
		return nil, errors.Errorf("undecodable version response: %v", err)
	}
	return &info, nil
}

// Info returns the engine's opaque descriptive record.
func (c *Client) Info(ctx context.Context) (map[string]any, error) {
	resp, err := c.do(ctx, http.MethodGet, "/info", nil, nil)
	if err != nil {
		return nil, err
	}
	var info map[string]any
	if err := decodeBody(resp, &info); err != nil {
		return nil, errors.Errorf("undecodable info response: %v", err)
	}
	return info, nil
}

// ListContainers lists containers, optionally including stopped ones.
func (c *Client) ListContainers(ctx context.Context, all bool) ([]ContainerSummary, error) {
	query := url.Values{}
	if all {
		query.Set("all", "1")
	}
	resp, err := c.do(ctx, http.MethodGet, "/containers/json", query, nil)
	if err != nil {
		return nil, err
	}
	var containers []ContainerSummary
	if err := decodeBody(resp, &containers); err != nil {
		return nil, errors.Errorf("undecodable container listing: %v", err)
	}
	return containers, nil
}

// CreateContainer creates a new container and returns its engine-assigned
// id. A 2xx response lacking an id is treated as a failure.
func (c *Client) CreateContainer(ctx context.Context, opts CreateContainerOptions) (*CreatedContainer, error) {
	query := url.Values{}
	if opts.Name != "" {
		query.Set("name", opts.Name)
	}

	body := struct {
		*ContainerConfig
		HostConfig *HostConfig `json:"HostConfig,omitempty"`
	}{opts.Config, opts.HostConfig}

	resp, err := c.do(ctx, http.MethodPost, "/containers/create", query, body)
	if err != nil {
		return nil, err
	}
	var created CreatedContainer
	if err := decodeBody(resp, &created); err != nil {
		return nil, errors.Errorf("undecodable create response: %v", err)
	}
	if created.ID == "" {
		return nil, errors.New("create response carried no container id")
	}
	for _, warning := range created.Warnings {
		c.Log.Warn(warning)
	}
	return &created, nil
}

// InspectContainer returns details about the container.
func (c *Client) InspectContainer(ctx context.Context, id string) (*ContainerDetails, error) {
	resp, err := c.do(ctx, http.MethodGet, "/containers/"+id+"/json", nil, nil)
	if err != nil {
		return nil, notFound(err, id)
	}
	var details ContainerDetails
	if err := decodeBody(resp, &details); err != nil {
		return nil, errors.Errorf("undecodable inspect response: %v", err)
	}
	return &details, nil
}

// StartContainer starts the container. Starting an already-running
// container is not an error.
func (c *Client) StartContainer(ctx context.Context, id string) error {
	c.Log.Infof("starting container %s", id)
	return c.containerAction(ctx, id, "start", nil)
}

// StopContainer stops the container, giving it timeout seconds to exit
// before the engine kills it. A nil timeout uses the engine default.
func (c *Client) StopContainer(ctx context.Context, id string, timeout *int) error {
	c.Log.Infof("stopping container %s", id)
	query := url.Values{}
	if timeout != nil {
		query.Set("t", strconv.Itoa(*timeout))
	}
	return c.containerAction(ctx, id, "stop", query)
}

// RestartContainer restarts the container.
func (c *Client) RestartContainer(ctx context.Context, id string) error {
	c.Log.Infof("restarting container %s", id)
	return c.containerAction(ctx, id, "restart", nil)
}

// KillContainer sends a signal to the container, SIGKILL when empty.
func (c *Client) KillContainer(ctx context.Context, id string, signal string) error {
	c.Log.Infof("killing container %s", id)
	query := url.Values{}
	if signal != "" {
		query.Set("signal", signal)
	}
	return c.containerAction(ctx, id, "kill", query)
}

// PauseContainer pauses the container.
func (c *Client) PauseContainer(ctx context.Context, id string) error {
	return c.containerAction(ctx, id, "pause", nil)
}

// UnpauseContainer unpauses the container.
func (c *Client) UnpauseContainer(ctx context.Context, id string) error {
	return c.containerAction(ctx, id, "unpause", nil)
}

// RemoveContainer removes the container, optionally by force.
func (c *Client) RemoveContainer(ctx context.Context, id string, force bool) error {
	c.Log.Infof("removing container %s", id)
	query := url.Values{}
	if force {
		query.Set("force", "1")
	}
	resp, err := c.do(ctx, http.MethodDelete, "/containers/"+id, query, nil)
	if err != nil {
		return notFound(err, id)
	}
	ensureClosed(resp)
	return nil
}

// UpdateContainer mutates resource limits on a live container.
func (c *Client) UpdateContainer(ctx context.Context, id string, update UpdateConfig) error {
	c.Log.Infof("updating container %s", id)
	resp, err := c.do(ctx, http.MethodPost, "/containers/"+id+"/update", nil, update)
	if err != nil {
		return notFound(err, id)
	}
	ensureClosed(resp)
	return nil
}

func (c *Client) containerAction(ctx context.Context, id, action string, query url.Values) error {
	resp, err := c.do(ctx, http.MethodPost, "/containers/"+id+"/"+action, query, nil)
	if err != nil {
		return notFound(err, id)
	}
	ensureClosed(resp)
	return nil
}
