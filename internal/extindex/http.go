package extindex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/aidanlsb/assetcat/internal/guid"
)

// HTTPOptions configures an HTTP index client.
type HTTPOptions struct {
	BaseURL      string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// HTTP resolves keys with GET <base>/keys/<container>/<sub>.
// A 200 carries {"key": "..."}; a 404 means the object is not indexed.
type HTTP struct {
	base   string
	client *retryablehttp.Client
}

type keyResponse struct {
	Key string `json:"key"`
}

func openHTTP(dsn string) (Lookup, error) {
	l, err := NewHTTP(HTTPOptions{BaseURL: dsn})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// NewHTTP builds the client. Only transport errors are retried; any HTTP
// response is final.
func NewHTTP(opts HTTPOptions) (*HTTP, error) {
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("parse index url: %w", err)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.RetryMax == 0 {
		opts.RetryMax = 2
	}
	if opts.RetryWaitMin == 0 {
		opts.RetryWaitMin = 50 * time.Millisecond
	}
	if opts.RetryWaitMax == 0 {
		opts.RetryWaitMax = 250 * time.Millisecond
	}

	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = opts.RetryWaitMin
	client.RetryWaitMax = opts.RetryWaitMax
	client.HTTPClient.Timeout = opts.Timeout
	client.Logger = nil
	client.CheckRetry = retryTransportErrors

	return &HTTP{base: strings.TrimRight(opts.BaseURL, "/"), client: client}, nil
}

func retryTransportErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil {
		return false, nil
	}
	return err != nil, nil
}

func (h *HTTP) Key(ctx context.Context, container uuid.UUID, sub int64) (string, bool, error) {
	u := h.base + "/keys/" + guid.FormatContainerID(container) + "/" + strconv.FormatInt(sub, 10)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body keyResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
			return "", false, fmt.Errorf("decode index response: %w", err)
		}
		if body.Key == "" {
			return "", false, nil
		}
		return body.Key, true, nil
	case http.StatusNotFound:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("%w: index returned status %d", ErrUnavailable, resp.StatusCode)
	}
}

func (h *HTTP) Close() error {
	h.client.HTTPClient.CloseIdleConnections()
	return nil
}
