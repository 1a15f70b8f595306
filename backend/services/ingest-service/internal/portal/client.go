package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 32 << 20

	headerRegion = "x-nis-ldc"
	headerAjax   = "adrum"
	ajaxMarker   = "isAjax:true"
)

// Request outcomes reported to a RequestObserver.
const (
	OutcomeOK        = "ok"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
	OutcomeMalformed = "malformed"
)

// RequestObserver is told about every portal request once its outcome is known.
type RequestObserver func(endpoint, outcome string)

// Credentials is the portal login pair.
type Credentials struct {
	Username string
	Password string
}

// String never prints the password.
func (c Credentials) String() string {
	return fmt.Sprintf("{%s ***}", c.Username)
}

// Options tunes a Client. Zero values are usable.
type Options struct {
	// Timeout bounds every individual HTTP call. Defaults to 30s.
	Timeout time.Duration
	// RequestsPerSecond paces calls to the portal; zero disables pacing.
	RequestsPerSecond float64
	// StrictLogin only accepts a login whose final URL carries LoginSuccessMarker.
	StrictLogin bool
	// Transport overrides http.DefaultTransport.
	Transport http.RoundTripper
	Observer  RequestObserver
	Now       func() time.Time
}

// Client talks to one provider deployment on behalf of one account. It holds no
// session state; sessions are created by Authenticate and passed to every fetch.
type Client struct {
	provider   Provider
	baseURL    string
	creds      Credentials
	opts       Options
	limiter    *rate.Limiter
	lastDiagID atomic.Int64
	logger     *zap.Logger
}

// Session is an authenticated cookie-carrying HTTP session. It is not safe for
// concurrent use; one ingestion cycle owns it.
type Session struct {
	http            *http.Client
	authenticated   bool
	authenticatedAt time.Time
}

// Authenticated reports whether the last login on this session succeeded.
func (s *Session) Authenticated() bool {
	return s != nil && s.authenticated
}

// AuthenticatedAt is when the session last logged in.
func (s *Session) AuthenticatedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.authenticatedAt
}

// NewClient builds a client for provider using creds.
func NewClient(provider Provider, creds Credentials, opts Options, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(provider.BaseURL) == "" {
		return nil, errors.New("portal: provider base url required")
	}
	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		return nil, errors.New("portal: username and password required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		provider: provider,
		baseURL:  strings.TrimRight(provider.BaseURL, "/"),
		creds:    creds,
		opts:     opts,
		logger:   logger.Named("portal").With(zap.String("provider", provider.Code)),
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c, nil
}

// Provider returns the deployment this client targets.
func (c *Client) Provider() Provider {
	return c.provider
}

// Authenticate opens a fresh session and logs in.
func (c *Client) Authenticate(ctx context.Context) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("portal: cookie jar: %w", err)
	}
	sess := &Session{
		http: &http.Client{
			Jar:       jar,
			Timeout:   c.opts.Timeout,
			Transport: c.opts.Transport,
		},
	}
	if err := c.Reauthenticate(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Reauthenticate logs in again on an existing session. It is safe to call on a
// session that is already authenticated.
func (c *Client) Reauthenticate(ctx context.Context, sess *Session) error {
	if sess == nil {
		return errors.New("portal: nil session")
	}
	sess.authenticated = false

	form := url.Values{
		"ReturnUrl":  {""},
		"Username":   {c.creds.Username},
		"Password":   {c.creds.Password},
		"rememberme": {"true"},
	}

	if err := c.wait(ctx); err != nil {
		c.observe(EndpointLogin, OutcomeError)
		return fmt.Errorf("%w: login: %w", ErrTransport, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+EndpointLogin, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := sess.http.Do(req)
	if err != nil {
		c.observe(EndpointLogin, OutcomeError)
		return fmt.Errorf("%w: login: %w", ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	finalURL := resp.Request.URL.String()
	switch {
	case strings.Contains(finalURL, LoginSuccessMarker):
	case !c.opts.StrictLogin && resp.StatusCode == http.StatusOK:
		c.logger.Debug("login accepted on bare 200 without success marker", zap.String("url", finalURL))
	default:
		c.observe(EndpointLogin, OutcomeRejected)
		c.logger.Warn("login rejected", zap.Int("status", resp.StatusCode), zap.String("url", finalURL))
		return fmt.Errorf("%w: status %d at %s", ErrAuthentication, resp.StatusCode, resp.Request.URL.Path)
	}

	sess.authenticated = true
	sess.authenticatedAt = c.opts.Now().UTC()
	c.observe(EndpointLogin, OutcomeOK)
	c.logger.Debug("authenticated with portal")
	return nil
}

// FetchUsageHistory downloads the full usage history CSV (newest first).
func (c *Client) FetchUsageHistory(ctx context.Context, sess *Session) ([]Row, error) {
	return c.fetchCSV(ctx, sess, EndpointUsageHistory)
}

// FetchBillingHistory downloads the full billing history CSV.
func (c *Client) FetchBillingHistory(ctx context.Context, sess *Session) ([]Row, error) {
	return c.fetchCSV(ctx, sess, EndpointBillingHistory)
}

// FetchPaymentHistory downloads the full payment history CSV.
func (c *Client) FetchPaymentHistory(ctx context.Context, sess *Session) ([]Row, error) {
	return c.fetchCSV(ctx, sess, EndpointPaymentHistory)
}

// FetchAccountSummary reads the linked-accounts JSON resource.
func (c *Client) FetchAccountSummary(ctx context.Context, sess *Session) (AccountSummary, error) {
	query := url.Values{}
	query.Set("query", "")
	query.Set("limit", "10")
	query.Set("ascending", "1")
	query.Set("page", "1")
	query.Set("byColumn", "0")
	query.Set("diagId", strconv.FormatInt(c.nextDiagID(), 10))

	headers := map[string]string{
		headerRegion: c.provider.Code,
		headerAjax:   ajaxMarker,
		"Accept":     "application/json",
	}

	var summary AccountSummary
	body, err := c.get(ctx, sess, EndpointAccountSummary, query, headers)
	if err != nil {
		return summary, err
	}
	if err := json.Unmarshal(body, &summary); err != nil {
		c.observe(EndpointAccountSummary, OutcomeMalformed)
		return summary, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, EndpointAccountSummary, err)
	}
	c.observe(EndpointAccountSummary, OutcomeOK)
	c.logger.Debug("retrieved account summary", zap.Int("accounts", summary.Count))
	return summary, nil
}

func (c *Client) fetchCSV(ctx context.Context, sess *Session, endpoint string) ([]Row, error) {
	body, err := c.get(ctx, sess, endpoint, nil, map[string]string{"Accept": "text/csv"})
	if err != nil {
		return nil, err
	}
	rows, err := DecodeCSV(bytes.NewReader(body))
	if err != nil {
		c.observe(endpoint, OutcomeMalformed)
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, endpoint, err)
	}
	c.observe(endpoint, OutcomeOK)
	c.logger.Debug("retrieved csv", zap.String("endpoint", endpoint), zap.Int("rows", len(rows)))
	return rows, nil
}

func (c *Client) get(ctx context.Context, sess *Session, endpoint string, query url.Values, headers map[string]string) ([]byte, error) {
	if sess == nil {
		return nil, errors.New("portal: nil session")
	}
	if !sess.Authenticated() {
		if err := c.Reauthenticate(ctx, sess); err != nil {
			return nil, err
		}
	}
	if err := c.wait(ctx); err != nil {
		c.observe(endpoint, OutcomeError)
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, endpoint, err)
	}

	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := sess.http.Do(req)
	if err != nil {
		c.observe(endpoint, OutcomeError)
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, endpoint, err)
	}
	defer resp.Body.Close()

	if strings.EqualFold(resp.Request.URL.Path, EndpointLogin) {
		sess.authenticated = false
		c.observe(endpoint, OutcomeRejected)
		return nil, fmt.Errorf("%w: %s redirected to login", ErrSessionExpired, endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.observe(endpoint, OutcomeError)
		return nil, fmt.Errorf("%w: %s: status %d", ErrTransport, endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.observe(endpoint, OutcomeError)
		return nil, fmt.Errorf("%w: %s: read body: %w", ErrTransport, endpoint, err)
	}
	return body, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return ctx.Err()
	}
	return c.limiter.Wait(ctx)
}

// nextDiagID returns a millisecond timestamp that never repeats or goes backwards for this client.
func (c *Client) nextDiagID() int64 {
	now := c.opts.Now().UnixMilli()
	for {
		last := c.lastDiagID.Load()
		next := now
		if next <= last {
			next = last + 1
		}
		if c.lastDiagID.CompareAndSwap(last, next) {
			return next
		}
	}
}

func (c *Client) observe(endpoint, outcome string) {
	if c.opts.Observer != nil {
		c.opts.Observer(endpoint, outcome)
	}
}
