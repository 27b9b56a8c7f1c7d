package runtime

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// PullImage asks the engine to pull an image and returns the progress
// stream, a sequence of JSON lines the caller must drain and close.
// References without a tag pull "latest".
func (c *Client) PullImage(ctx context.Context, ref string) (io.ReadCloser, error) {
	image, tag := splitImageRef(ref)
	c.Log.Infof("pulling image %s:%s", image, tag)

	query := url.Values{}
	query.Set("fromImage", image)
	query.Set("tag", tag)

	resp, err := c.do(ctx, http.MethodPost, "/images/create", query, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// splitImageRef separates an image reference into name and tag. Only a
// colon after the last slash counts as a tag separator, so registry
// ports ("host:5000/app") survive.
func splitImageRef(ref string) (image, tag string) {
	sep := strings.LastIndex(ref, ":")
	if sep < strings.LastIndex(ref, "/") {
		sep = -1
	}
	if sep == -1 {
		return ref, "latest"
	}
	return ref[:sep], ref[sep+1:]
}
