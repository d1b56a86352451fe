package providers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	reelerrors "reelpipe/internal/errors"
	"reelpipe/internal/logging"
)

const defaultResponseLimit int64 = 32 << 20

// Authorizer signs or decorates an outgoing provider request.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request, body []byte) error
}

// KeyFunc returns the credential for a provider, typically a secret read
// through the configuration resolver.
type KeyFunc func(ctx context.Context) (string, error)

// HeaderAuth places the key in a header, optionally behind a prefix such
// as "Bearer ".
type HeaderAuth struct {
	Header string
	Prefix string
	Key    KeyFunc
}

func (a HeaderAuth) Authorize(ctx context.Context, req *http.Request, _ []byte) error {
	if a.Key == nil {
		return nil
	}
	key, err := a.Key(ctx)
	if err != nil {
		return fmt.Errorf("resolve api key: %w", err)
	}
	if key == "" {
		return nil
	}
	req.Header.Set(a.Header, a.Prefix+key)
	return nil
}

// SigV4Auth signs requests for AWS-hosted engines.
type SigV4Auth struct {
	Credentials aws.CredentialsProvider
	Service     string
	Region      string
	Signer      *v4.Signer
	Now         func() time.Time
}

func (a SigV4Auth) Authorize(ctx context.Context, req *http.Request, body []byte) error {
	if a.Credentials == nil {
		return errors.New("aws credentials are not configured")
	}
	creds, err := a.Credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("retrieve aws credentials: %w", err)
	}
	signer := a.Signer
	if signer == nil {
		signer = v4.NewSigner()
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	sum := sha256.Sum256(body)
	return signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), a.Service, a.Region, now())
}

// Route is one HTTP call a vendor serves.
type Route struct {
	Method string
	Path   string
	Body   map[string]any
}

// Vendor describes how one provider's HTTP API is shaped.
type Vendor struct {
	Name            string
	DefaultEndpoint string
	Headers         map[string]string
	// Build maps a request onto the vendor route for it.
	Build func(req Request) (Route, error)
}

// HTTPProvider calls a vendor's JSON API.
type HTTPProvider struct {
	vendor        Vendor
	auth          Authorizer
	client        *http.Client
	logger        logging.Logger
	responseLimit int64
}

// HTTPOption customizes an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithResponseLimit caps the bytes read from a response body.
func WithResponseLimit(limit int64) HTTPOption {
	return func(p *HTTPProvider) {
		p.responseLimit = limit
	}
}

// NewHTTPProvider builds a provider for vendor.
func NewHTTPProvider(vendor Vendor, auth Authorizer, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		vendor:        vendor,
		auth:          auth,
		client:        &http.Client{Timeout: 120 * time.Second},
		logger:        logging.NewComponentLogger("provider-" + vendor.Name),
		responseLimit: defaultResponseLimit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *HTTPProvider) Name() string {
	return p.vendor.Name
}

// Invoke sends req to the vendor. HTTP 408, 429 and 5xx map to
// *errors.TransientError; other 4xx map to *errors.PermanentError.
func (p *HTTPProvider) Invoke(ctx context.Context, req Request) (Response, error) {
	route, err := p.vendor.Build(req)
	if err != nil {
		return Response{}, reelerrors.NewPermanentError(err, 0)
	}
	endpoint := strings.TrimRight(strings.TrimSpace(req.Endpoint), "/")
	if endpoint == "" {
		endpoint = p.vendor.DefaultEndpoint
		if strings.Contains(endpoint, "{region}") {
			if req.Region == "" {
				return Response{}, reelerrors.NewPermanentError(fmt.Errorf("%s: region is required", p.vendor.Name), 0)
			}
			endpoint = strings.ReplaceAll(endpoint, "{region}", req.Region)
		}
	}
	if endpoint == "" {
		return Response{}, reelerrors.NewPermanentError(fmt.Errorf("%s: no endpoint configured", p.vendor.Name), 0)
	}

	var body []byte
	if route.Body != nil {
		body, err = json.Marshal(route.Body)
		if err != nil {
			return Response{}, reelerrors.NewPermanentError(fmt.Errorf("encode %s request: %w", p.vendor.Name, err), 0)
		}
	}
	method := route.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint+route.Path, bytes.NewReader(body))
	if err != nil {
		return Response{}, reelerrors.NewPermanentError(err, 0)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range p.vendor.Headers {
		httpReq.Header.Set(k, v)
	}
	if p.auth != nil {
		if err := p.auth.Authorize(ctx, httpReq, body); err != nil {
			return Response{}, reelerrors.NewPermanentError(err, 0)
		}
	}

	p.logger.Debug("%s %s (model=%s probe=%t)", method, httpReq.URL.Redacted(), req.Model, req.Probe)
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("%s request failed: %w", p.vendor.Name, err)
	}
	defer resp.Body.Close()

	raw, err := readAllWithLimit(resp.Body, p.responseLimit)
	if err != nil {
		var tooLarge responseTooLargeError
		if errors.As(err, &tooLarge) {
			return Response{}, reelerrors.NewPermanentError(fmt.Errorf("read %s response: %w", p.vendor.Name, err), resp.StatusCode)
		}
		return Response{}, reelerrors.NewTransientError(fmt.Errorf("read %s response: %w", p.vendor.Name, err), resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return Response{}, classifyStatus(p.vendor.Name, resp, raw)
	}

	out := Response{
		Provider:    p.vendor.Name,
		Model:       req.Model,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Raw:         raw,
	}
	if strings.Contains(out.ContentType, "json") && len(raw) > 0 {
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return Response{}, fmt.Errorf("malformed %s response: %w", p.vendor.Name, err)
		}
		out.Body = decoded
	}
	return out, nil
}

func classifyStatus(vendor string, resp *http.Response, raw []byte) error {
	snippet := strings.TrimSpace(string(raw))
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}
	err := fmt.Errorf("%s returned %d: %s", vendor, resp.StatusCode, snippet)

	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		transient := reelerrors.NewTransientError(err, resp.StatusCode)
		if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs > 0 {
			transient.RetryAfter = time.Duration(secs) * time.Second
		}
		return transient
	default:
		return reelerrors.NewPermanentError(err, resp.StatusCode)
	}
}

// responseTooLargeError reports that the response body exceeded the limit.
type responseTooLargeError struct {
	limit int64
}

func (e responseTooLargeError) Error() string {
	return fmt.Sprintf("response body exceeded limit of %d bytes", e.limit)
}

func readAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	lr := &io.LimitedReader{R: r, N: limit + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, responseTooLargeError{limit: limit}
	}
	return data, nil
}
