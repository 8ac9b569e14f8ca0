package link

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/regsync/internal/register"
)

// Default timeouts for the peer link.
const (
	// defaultHTTPTimeout matches the 4 s budget the camera firmware gives
	// master-to-slave requests.
	defaultHTTPTimeout = 4 * time.Second

	// maxErrorBody bounds how much of a rejection body is kept for messages.
	maxErrorBody = 256
)

// Peer API paths. These are the firmware-compatible routes every regsync
// instance serves.
const (
	pathSingle = "/api/registers/single"
	pathHealth = "/api/v1/health"
)

// Resolver returns the base URL of a peer, for example via mDNS.
type Resolver func(ctx context.Context) (string, error)

// HTTPConfig configures an HTTPLink.
type HTTPConfig struct {
	// BaseURL is the peer's root URL (e.g. "http://ov2640-slave.local").
	// When empty, Resolver is consulted.
	BaseURL string

	// Resolver finds the peer when BaseURL is empty.
	Resolver Resolver

	// Timeout bounds each request when the caller's context has no
	// earlier deadline. Default: 4s.
	Timeout time.Duration

	// Token is sent as a bearer token when the peer requires auth.
	Token string

	// Client overrides the HTTP client (tests use httptest clients).
	Client *http.Client
}

// HTTPLink reaches a peer regsync instance over its REST API.
//
// Thread Safety: All methods are safe for concurrent use.
type HTTPLink struct {
	client   *http.Client
	timeout  time.Duration
	resolver Resolver
	token    string

	mu      sync.RWMutex
	baseURL string
	static  bool
}

// singleReadResponse is the body of GET /api/registers/single.
type singleReadResponse struct {
	Value *int `json:"value"`
}

// singleWriteRequest is the body of POST /api/registers/single, encoded with
// string numbers the way the firmware expects them.
type singleWriteRequest struct {
	Bank  int    `json:"bank"`
	Addr  string `json:"addr"`
	Value string `json:"value"`
}

// NewHTTPLink creates a link to a peer.
//
// Returns an error if neither BaseURL nor Resolver is set, or BaseURL is not
// an absolute http(s) URL.
func NewHTTPLink(cfg HTTPConfig) (*HTTPLink, error) {
	l := &HTTPLink{
		client:   cfg.Client,
		timeout:  cfg.Timeout,
		resolver: cfg.Resolver,
		token:    cfg.Token,
	}
	if l.timeout <= 0 {
		l.timeout = defaultHTTPTimeout
	}
	if l.client == nil {
		l.client = &http.Client{Timeout: l.timeout}
	}

	switch {
	case cfg.BaseURL != "":
		base, err := normaliseBaseURL(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		l.baseURL = base
		l.static = true
	case cfg.Resolver == nil:
		return nil, errors.New("link: base URL or resolver is required")
	}
	return l, nil
}

func normaliseBaseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("link: parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("link: base URL %q must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("link: base URL %q has no host", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// Target returns the peer URL currently in use (empty until resolved).
func (l *HTTPLink) Target() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.baseURL
}

// base returns the peer URL, resolving it if needed.
func (l *HTTPLink) base(ctx context.Context, refresh bool) (string, error) {
	l.mu.RLock()
	base, static := l.baseURL, l.static
	l.mu.RUnlock()

	if static || (base != "" && !refresh) {
		return base, nil
	}

	resolved, err := l.resolver(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: resolving peer: %w", ErrUnreachable, err)
	}
	resolved, err = normaliseBaseURL(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	l.mu.Lock()
	l.baseURL = resolved
	l.mu.Unlock()
	return resolved, nil
}

// ReadRegister performs GET /api/registers/single?bank=&addr=.
func (l *HTTPLink) ReadRegister(ctx context.Context, bank register.Bank, addr register.Address) (register.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	base, err := l.base(ctx, false)
	if err != nil {
		return 0, err
	}

	q := url.Values{}
	q.Set("bank", fmt.Sprintf("%d", bank))
	q.Set("addr", addr.Hex())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+pathSingle+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("link: building request: %w", err)
	}

	body, err := l.do(req)
	if err != nil {
		return 0, err
	}

	var resp singleReadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%w: decoding response: %w", ErrRejected, err)
	}
	if resp.Value == nil {
		return 0, fmt.Errorf("%w: response has no value", ErrRejected)
	}
	v, err := register.ValueFromInt(int64(*resp.Value))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return v, nil
}

// WriteRegister performs POST /api/registers/single. Any status other than
// 200 is a rejection.
func (l *HTTPLink) WriteRegister(ctx context.Context, bank register.Bank, addr register.Address, value register.Value) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	base, err := l.base(ctx, false)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(singleWriteRequest{
		Bank:  int(bank),
		Addr:  addr.Hex(),
		Value: value.Hex(),
	})
	if err != nil {
		return fmt.Errorf("link: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+pathSingle, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("link: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = l.do(req)
	return err
}

// Probe checks the peer's health endpoint, re-resolving its address when it
// was discovered dynamically.
func (l *HTTPLink) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	base, err := l.base(ctx, true)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+pathHealth, nil)
	if err != nil {
		return fmt.Errorf("link: building request: %w", err)
	}
	_, err = l.do(req)
	return err
}

// do executes req and classifies the outcome.
func (l *HTTPLink) do(req *http.Request) ([]byte, error) {
	if l.token != "" {
		req.Header.Set("Authorization", "Bearer "+l.token)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, classifyHTTPError(req.Context(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyHTTPError(req.Context(), err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, fmt.Errorf("%w: %s %s returned %d: %s", ErrRejected, req.Method, req.URL.Path, resp.StatusCode, msg)
	}
	return body, nil
}

func classifyHTTPError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return classifyContext(ctxErr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrUnreachable, err)
}
