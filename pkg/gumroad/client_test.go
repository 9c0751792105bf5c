package gumroad

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gumdl/pkg/config"
	apperrors "gumdl/pkg/errors"
	"gumdl/pkg/logger"
)

func testClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(&config.GumroadConfig{
		AppSession: "session+value/with=specials",
		Guid:       "guid-value",
		UserAgent:  "Mozilla/5.0 (test)",
	}, 10*time.Second, logger.NewTestLogger())
	require.NoError(t, err)
	if server != nil {
		client.SetBaseURL(server.URL)
	}
	return client
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.GumroadConfig
	}{
		{"missing app session", config.GumroadConfig{Guid: "g", UserAgent: "ua"}},
		{"missing guid", config.GumroadConfig{AppSession: "s", UserAgent: "ua"}},
		{"missing user agent", config.GumroadConfig{AppSession: "s", Guid: "g"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(&tt.cfg, time.Second, logger.NewTestLogger())
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrorTypeConfig, apperrors.TypeOf(err))
			assert.True(t, apperrors.IsFatal(err))
		})
	}
}

func TestClientRequestHeaders(t *testing.T) {
	var gotCookie, gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotUserAgent = r.Header.Get("User-Agent")
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer server.Close()

	client := testClient(t, server)
	resp, err := client.Get(context.Background(), server.URL+"/library")
	require.NoError(t, err)
	resp.Body.Close()

	// Session cookie value has +, / and = percent-encoded; the guid does not
	assert.Equal(t, "_gumroad_app_session=session%2Bvalue%2Fwith%3Dspecials; _gumroad_guid=guid-value", gotCookie)
	assert.Equal(t, "Mozilla/5.0 (test)", gotUserAgent)
}

func TestCheckResponse(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		expectedType apperrors.ErrorType
		fatal        bool
	}{
		{"redirect means expired session", http.StatusFound, apperrors.ErrorTypeAuth, true},
		{"permanent redirect", http.StatusMovedPermanently, apperrors.ErrorTypeAuth, true},
		{"unauthorized", http.StatusUnauthorized, apperrors.ErrorTypeAuth, true},
		{"forbidden", http.StatusForbidden, apperrors.ErrorTypeAuth, true},
		{"rate limited", http.StatusTooManyRequests, apperrors.ErrorTypeServerError, false},
		{"server error", http.StatusInternalServerError, apperrors.ErrorTypeServerError, false},
		{"not found", http.StatusNotFound, apperrors.ErrorTypeUnknown, false},
	}

	client := testClient(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.CheckResponse(&http.Response{StatusCode: tt.status, Header: http.Header{}})
			require.Error(t, err)
			assert.Equal(t, tt.expectedType, apperrors.TypeOf(err))
			assert.Equal(t, tt.fatal, apperrors.IsFatal(err))
		})
	}

	t.Run("success passes", func(t *testing.T) {
		assert.NoError(t, client.CheckResponse(&http.Response{StatusCode: http.StatusOK, Header: http.Header{}}))
	})

	t.Run("redirect to login is fatal", func(t *testing.T) {
		err := client.CheckResponse(&http.Response{
			StatusCode: http.StatusFound,
			Header:     http.Header{"Location": []string{"/login?next=%2Flibrary"}},
		})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrorTypeAuth, apperrors.TypeOf(err))
		assert.True(t, apperrors.IsFatal(err))
	})

	t.Run("redirect elsewhere is not an auth failure", func(t *testing.T) {
		err := client.CheckResponse(&http.Response{
			StatusCode: http.StatusFound,
			Header:     http.Header{"Location": []string{"https://files.gumroad.com/abc"}},
		})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrorTypeUnknown, apperrors.TypeOf(err))
		assert.False(t, apperrors.IsFatal(err))
	})
}

func TestDownloadFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/prod1/file1", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/cdn/file1", http.StatusFound)
	})
	mux.HandleFunc("/cdn/file1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("the file bytes"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := testClient(t, server)
	resp, err := client.Download(context.Background(), server.URL+"/r/prod1/file1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.NoError(t, client.CheckResponse(resp))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "the file bytes", string(body))
}

func TestDownloadDetectsLoginLanding(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/prod1/file1", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>login form</body></html>"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := testClient(t, server)
	_, err := client.Download(context.Background(), server.URL+"/r/prod1/file1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeAuth, apperrors.TypeOf(err))
	assert.True(t, apperrors.IsFatal(err))
}

func TestGetDocumentRedirectSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>You are being redirected.</body></html>`))
	}))
	defer server.Close()

	client := testClient(t, server)
	_, err := client.GetDocument(context.Background(), server.URL+"/library")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeAuth, apperrors.TypeOf(err))
}

func TestGetDocumentDoesNotFollowRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/library" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		w.Write([]byte("<html><body>login form</body></html>"))
	}))
	defer server.Close()

	client := testClient(t, server)
	_, err := client.GetDocument(context.Background(), server.URL+"/library")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeAuth, apperrors.TypeOf(err))
}

func TestClientNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := testClient(t, nil)
	_, err := client.Get(context.Background(), server.URL+"/library")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeNetwork, apperrors.TypeOf(err))
	assert.True(t, apperrors.IsRetryable(apperrors.TypeOf(err)))
}
