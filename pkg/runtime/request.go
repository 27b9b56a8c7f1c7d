package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// do performs one engine API round trip. The returned response's body is the
// caller's to close. Non-2xx statuses are turned into *Error with the body
// consumed, connect failures into *ConnectionError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
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

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ConnectionError{Addr: c.addr, Err: err}
	}

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// checkResponse consumes and closes the body of error responses so callers
// only ever see a closed body alongside a non-nil error.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return nil
	}
	defer resp.Body.Close()

	apiErr := &Error{Status: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	var body struct {
		Message string `json:"message"`
	}
	if jsonErr := json.Unmarshal(data, &body); jsonErr == nil && body.Message != "" {
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return apiErr
}

// decodeBody decodes a JSON response body into out and closes it.
func decodeBody(resp *http.Response, out any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// ensureClosed drains and closes a response body we have no use for.
func ensureClosed(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}
