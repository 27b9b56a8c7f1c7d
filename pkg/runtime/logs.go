package runtime

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// ContainerLogs fetches a container's log stream. Unless the container
// runs with a TTY, the stream is multiplexed and must go through Demux
// or DemuxReader before anything reads it. The caller closes the stream.
func (c *Client) ContainerLogs(ctx context.Context, id string, opts LogsOptions) (io.ReadCloser, error) {
	query := url.Values{}
	query.Set("follow", strconv.FormatBool(opts.Follow))
	query.Set("stdout", strconv.FormatBool(opts.Stdout))
	query.Set("stderr", strconv.FormatBool(opts.Stderr))
	if opts.Timestamps {
		query.Set("timestamps", "1")
	}
	if opts.Tail != "" {
		query.Set("tail", opts.Tail)
	}

	resp, err := c.do(ctx, http.MethodGet, "/containers/"+id+"/logs", query, nil)
	if err != nil {
		return nil, notFound(err, id)
	}
	return resp.Body, nil
}
