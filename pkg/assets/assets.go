package assets

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/sirupsen/logrus"
	"github.com/spkg/bom"
)

const (
	downloadAttempts = 3

	// statusOriginTimeout is Cloudflare's "connection timed out" status. It
	// usually means the origin is briefly overloaded, so it is the one
	// failure worth waiting out before retrying.
	statusOriginTimeout = 522
)

// InstallScript names one asset to fetch during provisioning: where to
// get it and where inside the volume it lands.
type InstallScript struct {
	URI  string `json:"uri"`
	Path string `json:"path"`
}

// DownloadError is a download that failed on all attempts.
type DownloadError struct {
	URI  string
	Last error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("downloading %s: %v", e.URI, e.Last)
}

// Fetcher downloads provisioning assets over HTTP and rewrites their
// placeholder variables.
type Fetcher struct {
	Log *logrus.Entry

	client    *http.Client
	retryWait time.Duration
}

// NewFetcher returns a fetcher with production timeouts.
func NewFetcher(log *logrus.Entry) *Fetcher {
	return &Fetcher{
		Log:       log,
		client:    &http.Client{Timeout: 5 * time.Minute},
		retryWait: time.Minute,
	}
}

// DownloadFile fetches uri into dest, retrying up to three times. An
// origin timeout waits a minute before the next attempt; any other
// failure retries immediately. A failed attempt never leaves a partial
// file behind.
func (f *Fetcher) DownloadFile(ctx context.Context, uri, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.Wrap(err, 0)
	}

	var lastErr error
	for attempt := 1; attempt <= downloadAttempts; attempt++ {
		err := f.downloadOnce(ctx, uri, dest)
		if err == nil {
			return nil
		}
		lastErr = err
		f.Log.WithError(err).Warnf("download attempt %d/%d failed for %s", attempt, downloadAttempts, uri)

		if attempt == downloadAttempts {
			break
		}
		if isOriginTimeout(err) {
			select {
			case <-time.After(f.retryWait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return &DownloadError{URI: uri, Last: lastErr}
}

func (f *Fetcher) downloadOnce(ctx context.Context, uri, dest string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return errors.Wrap(err, 0)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}

	out, err := os.Create(dest)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(dest)
		}
	}()

	if _, err = io.Copy(out, resp.Body); err != nil {
		return errors.Errorf("writing %s: %v", dest, err)
	}
	return nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

func isOriginTimeout(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == statusOriginTimeout
}

// DownloadInstallScripts fetches every install script into root,
// substituting variables in each URI first. Individual failures are
// logged and skipped so one dead mirror cannot sink a provisioning run.
func (f *Fetcher) DownloadInstallScripts(ctx context.Context, scripts []InstallScript, vars map[string]string, root string) {
	for _, script := range scripts {
		uri := SubstituteVariables(script.URI, vars)
		dest := filepath.Join(root, script.Path)
		if err := f.DownloadFile(ctx, uri, dest); err != nil {
			f.Log.WithError(err).Errorf("skipping install script %s", script.Path)
		}
	}
}

// SubstituteVariables replaces {{key}} placeholders in s with their
// values. Unknown placeholders are left alone.
func SubstituteVariables(s string, vars map[string]string) string {
	for key, value := range vars {
		s = strings.ReplaceAll(s, "{{"+key+"}}", value)
	}
	return s
}

// ReplaceVariables rewrites {{key}} placeholders in every regular file
// under dir, preserving file modes. Symlinks are left alone since they
// may point outside the volume. Jar files are skipped: they are zip
// archives and a textual substitution would corrupt them.
func (f *Fetcher) ReplaceVariables(dir string, vars map[string]string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || strings.HasSuffix(path, ".jar") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return errors.Wrap(err, 0)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, 0)
		}

		content := string(bom.Clean(data))
		replaced := SubstituteVariables(content, vars)
		if replaced == content && len(data) == len(content) {
			return nil
		}
		return os.WriteFile(path, []byte(replaced), info.Mode())
	})
}
