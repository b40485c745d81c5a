package upscaler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	v1 "upscaled/internal/contracts/upscale/v1"
	"upscaled/internal/httpkit"
	"upscaled/internal/pkg/errors"
	"upscaled/internal/upscale"
)

// remoteTimeoutSlack is added to a job's own timeout for the HTTP round trip.
const remoteTimeoutSlack = time.Minute

// Client forwards jobs to another upscaled instance's POST /upscale, usually
// one running next to the GPU.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient builds a Client. A nil httpClient means one without a global
// timeout; each call is bounded by its job's own timeout instead.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// Upscale sends req and waits for the result.
func (c *Client) Upscale(ctx context.Context, req Request) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	if req.Descriptor.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Descriptor.Timeout+remoteTimeoutSlack)
		defer cancel()
	}

	body, err := json.Marshal(v1.UpscaleRequest{
		OriginalFile: req.Original,
		OriginalExt:  req.Ext,
		Options:      v1.FromDescriptor(req.Descriptor),
	})
	if err != nil {
		return nil, errors.Wrap(err, "upscaler.remote", "encode request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upscale", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "upscaler.remote", "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "upscaler.remote", "remote upscaler unreachable")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, remoteError(res)
	}

	var out v1.UpscaleResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "upscaler.remote", "decode response")
	}
	return &Result{
		Upscaled: out.Upscaled,
		Res:      upscale.Dimensions{Width: out.Res.Width, Height: out.Res.Height},
	}, nil
}

func remoteError(res *http.Response) error {
	var env httpkit.ErrorEnvelope
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		msg = env.Error.Message
	}

	code := errors.CodeInternal
	switch {
	case res.StatusCode == http.StatusBadRequest:
		code = errors.CodeValidation
	case res.StatusCode == http.StatusRequestEntityTooLarge:
		code = errors.CodeTooLarge
	case res.StatusCode == http.StatusServiceUnavailable:
		code = errors.CodeUnavailable
	}
	return errors.Newf(code, "remote upscaler returned %d: %s", res.StatusCode, msg).
		WithField("status", res.StatusCode)
}

// compile-time checks
var (
	_ Upscaler = (*Service)(nil)
	_ Upscaler = (*Client)(nil)
)

func (c *Client) String() string {
	return fmt.Sprintf("remote(%s)", c.baseURL)
}
