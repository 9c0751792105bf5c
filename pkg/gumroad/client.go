package gumroad

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"gumdl/pkg/config"
	apperrors "gumdl/pkg/errors"
	"gumdl/pkg/logger"
)

const (
	appSessionCookie = "_gumroad_app_session"
	guidCookie       = "_gumroad_guid"

	// Body prefix Gumroad serves with a 3xx to the login page
	redirectSentinel = "You are being redirected"
)

// Client holds the authenticated session identity and produces
// correctly-headered requests against the Gumroad application host.
// It never persists credentials and carries no retry logic of its own.
//
// Page scrapes and file downloads have opposite redirect needs: a
// redirect in place of a page means the session bounced to login, but
// /r/ download links routinely redirect to the file host. The client
// keeps one transport per policy.
type Client struct {
	httpClient     *http.Client // page scrapes, redirects surfaced
	downloadClient *http.Client // file content, redirects followed
	baseURL        string
	cookie         string
	userAgent      string
	logger         logger.Logger
}

// NewClient creates an authenticated client. All three session fields are
// required; a missing one is a config error raised before any network call.
func NewClient(cfg *config.GumroadConfig, timeout time.Duration, log logger.Logger) (*Client, error) {
	if cfg.AppSession == "" {
		return nil, apperrors.New(apperrors.ErrorTypeConfig, "gumroad app_session cookie is required")
	}
	if cfg.Guid == "" {
		return nil, apperrors.New(apperrors.ErrorTypeConfig, "gumroad guid cookie is required")
	}
	if cfg.UserAgent == "" {
		return nil, apperrors.New(apperrors.ErrorTypeConfig, "user agent is required")
	}

	if log == nil {
		log = logger.GetLogger()
	}

	cookie := fmt.Sprintf("%s=%s; %s=%s",
		appSessionCookie, sanitizeCookieValue(cfg.AppSession),
		guidCookie, cfg.Guid,
	)

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			// Redirects are surfaced, not followed: a redirect in place
			// of a page means the session is no longer accepted.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		downloadClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:   BaseURL,
		cookie:    cookie,
		userAgent: cfg.UserAgent,
		logger:    log,
	}, nil
}

// sanitizeCookieValue percent-encodes the characters Gumroad expects
// encoded inside the session cookie value
func sanitizeCookieValue(value string) string {
	value = strings.ReplaceAll(value, "+", "%2B")
	value = strings.ReplaceAll(value, "/", "%2F")
	value = strings.ReplaceAll(value, "=", "%3D")
	return value
}

// BaseURL returns the application host this client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetBaseURL overrides the application host (tests point it at a local server)
func (c *Client) SetBaseURL(base string) {
	c.baseURL = strings.TrimRight(base, "/")
}

// SetTransport overrides the underlying HTTP transport
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.httpClient.Transport = rt
	c.downloadClient.Transport = rt
}

// BuildRequest constructs an authenticated request. Every request carries
// both session cookies and the configured user agent.
func (c *Client) BuildRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeUnknown, "", err, "failed to create request")
	}
	req.Header.Set("Cookie", c.cookie)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	return req, nil
}

// Do performs the request, classifying transport failures as network errors
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.send(c.httpClient, req)
}

func (c *Client) send(hc *http.Client, req *http.Request) (*http.Response, error) {
	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := hc.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, apperrors.Wrap(apperrors.ErrorTypeNetwork, "", err, "network error")
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// Get performs an authenticated GET. The caller owns the response body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := c.BuildRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Download performs an authenticated GET for file content, following
// redirects to the file host. Landing on the login page instead of the
// content still means the session is dead. The caller owns the body.
func (c *Client) Download(ctx context.Context, url string) (*http.Response, error) {
	req, err := c.BuildRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(c.downloadClient, req)
	if err != nil {
		return nil, err
	}
	if resp.Request != nil && isLoginPath(resp.Request.URL.Path) {
		resp.Body.Close()
		return nil, &apperrors.Error{
			Type:    apperrors.ErrorTypeAuth,
			Message: "redirected to login page, session cookies are expired or invalid",
			Code:    resp.StatusCode,
		}
	}
	return resp, nil
}

func isLoginPath(path string) bool {
	return path == "/login" || strings.HasPrefix(path, "/login/")
}

// CheckResponse triages the HTTP status. A redirect to the login page
// (Gumroad bounces expired sessions there) and 401/403 are auth errors,
// fatal to the whole run; 429 and 5xx are retryable.
func (c *Client) CheckResponse(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		location := resp.Header.Get("Location")
		c.logger.WarnWithFields("redirected instead of served", map[string]interface{}{
			"status":   resp.StatusCode,
			"location": location,
		})
		if location == "" || strings.Contains(location, "/login") {
			return &apperrors.Error{
				Type:    apperrors.ErrorTypeAuth,
				Message: "redirected to login page, session cookies are expired or invalid",
				Code:    resp.StatusCode,
			}
		}
		return &apperrors.Error{
			Type:    apperrors.ErrorTypeUnknown,
			Message: fmt.Sprintf("unexpected redirect to %s", location),
			Code:    resp.StatusCode,
		}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &apperrors.Error{
			Type:    apperrors.ErrorTypeAuth,
			Message: "authentication rejected",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return &apperrors.Error{
			Type:    apperrors.ErrorTypeServerError,
			Message: fmt.Sprintf("server returned status %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	case resp.StatusCode >= 400:
		return &apperrors.Error{
			Type:    apperrors.ErrorTypeUnknown,
			Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}
	return nil
}

// GetDocument fetches a page and parses it into a goquery document
func (c *Client) GetDocument(ctx context.Context, url string) (*goquery.Document, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.CheckResponse(resp); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeUnknown, "", err, "failed to parse page")
	}

	// Some deployments serve the login bounce as a 200 page
	if strings.HasPrefix(strings.TrimSpace(doc.Find("body").Text()), redirectSentinel) {
		return nil, apperrors.New(apperrors.ErrorTypeAuth, "redirected to login page, session cookies are expired or invalid")
	}

	return doc, nil
}
