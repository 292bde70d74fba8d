// Package paper talks to the upstream build oracle (the PaperMC v2 API) and
// defines the version, build and target types shared by the rest of axiom.
package paper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "https://api.papermc.io/v2"
	DefaultProject = "paper"
)

var (
	// ErrUpstreamUnavailable is returned when the oracle could not be reached
	// or kept failing after the bounded number of retries.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrNotFound is returned when the oracle answers 404.
	ErrNotFound = errors.New("not found upstream")
)

// StatusError records a non-retryable HTTP status from the oracle.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Options configures a Client.
type Options struct {
	BaseURL         string
	Project         string
	Timeout         time.Duration
	DownloadTimeout time.Duration
	Retries         int
	// RetryInterval is the initial backoff between attempts.
	RetryInterval time.Duration
	Logger        zerolog.Logger
}

// Client queries the oracle for versions and builds and opens artifact
// downloads. Every request is retried at most Retries times, and only for
// network errors and 5xx answers.
type Client struct {
	baseURL  string
	project  string
	meta     *http.Client
	download *http.Client
	retries  uint
	interval time.Duration
	log      zerolog.Logger
}

// NewClient creates a Client with defaults filled in.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Project == "" {
		opts.Project = DefaultProject
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 2 * time.Minute
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		project:  opts.Project,
		meta:     &http.Client{Timeout: opts.Timeout},
		download: &http.Client{Timeout: opts.DownloadTimeout},
		retries:  uint(opts.Retries),
		interval: opts.RetryInterval,
		log:      opts.Logger.With().Str("component", "paper").Logger(),
	}
}

type projectResponse struct {
	Versions []string `json:"versions"`
}

type buildsResponse struct {
	Builds []struct {
		Build     int    `json:"build"`
		Channel   string `json:"channel"`
		Downloads struct {
			Application struct {
				Name   string `json:"name"`
				SHA256 string `json:"sha256"`
			} `json:"application"`
		} `json:"downloads"`
	} `json:"builds"`
}

// Versions returns every version the project supports, oldest first.
func (c *Client) Versions(ctx context.Context) ([]string, error) {
	var body projectResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/projects/%s", c.baseURL, c.project), &body); err != nil {
		return nil, err
	}
	return body.Versions, nil
}

// Builds returns every build published for version, lowest number first.
func (c *Client) Builds(ctx context.Context, version string) ([]Build, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/versions/%s/builds", c.baseURL, c.project, url.PathEscape(version))

	var body buildsResponse
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return nil, err
	}

	builds := make([]Build, 0, len(body.Builds))
	for _, b := range body.Builds {
		name := b.Downloads.Application.Name
		builds = append(builds, Build{
			Version:  version,
			Number:   b.Build,
			Channel:  Channel(strings.ToLower(b.Channel)),
			FileName: name,
			SHA256:   strings.ToLower(b.Downloads.Application.SHA256),
			URL:      c.DownloadURL(version, b.Build, name),
		})
	}
	return builds, nil
}

// DownloadURL returns the artifact URL for a build.
func (c *Client) DownloadURL(version string, build int, file string) string {
	return fmt.Sprintf("%s/projects/%s/versions/%s/builds/%d/downloads/%s",
		c.baseURL, c.project, url.PathEscape(version), build, url.PathEscape(file))
}

// Open starts downloading rawURL. The caller must close the returned body.
// The size is -1 when the oracle does not announce a Content-Length.
func (c *Client) Open(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	resp, err := c.get(ctx, c.download, rawURL)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := c.get(ctx, c.meta, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUpstreamUnavailable, endpoint, err)
	}
	return nil
}

// get performs a GET with bounded retries. 4xx answers are never retried.
func (c *Client) get(ctx context.Context, hc *http.Client, endpoint string) (*http.Response, error) {
	attempt := 0
	op := func() (*http.Response, error) {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", "axiom")

		resp, err := hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()
		statusErr := &StatusError{URL: endpoint, Code: resp.StatusCode}
		if resp.StatusCode >= 500 {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.interval
	b.MaxInterval = 10 * c.interval

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.retries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Debug().Err(err).Int("attempt", attempt).Dur("retry_in", next).Msg("oracle request failed")
		}),
	)
	if err == nil {
		return resp, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}
