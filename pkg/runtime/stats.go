package runtime

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/go-errors/errors"
)

// ContainerStats takes a single statistics snapshot of the container.
func (c *Client) ContainerStats(ctx context.Context, id string) (*Stats, error) {
	query := url.Values{}
	query.Set("stream", "0")

	resp, err := c.do(ctx, http.MethodGet, "/containers/"+id+"/stats", query, nil)
	if err != nil {
		return nil, notFound(err, id)
	}
	var stats Stats
	if err := decodeBody(resp, &stats); err != nil {
		return nil, errors.Errorf("undecodable stats response: %v", err)
	}
	return &stats, nil
}

// ContainerStatsStream opens the engine's continuous stats stream, one
// JSON document per second until the caller closes it.
func (c *Client) ContainerStatsStream(ctx context.Context, id string) (io.ReadCloser, error) {
	query := url.Values{}
	query.Set("stream", "1")

	resp, err := c.do(ctx, http.MethodGet, "/containers/"+id+"/stats", query, nil)
	if err != nil {
		return nil, notFound(err, id)
	}
	return resp.Body, nil
}
