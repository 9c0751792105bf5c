package gumroad

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "gumdl/pkg/errors"
)

func libraryPage(payload string) string {
	return fmt.Sprintf(`<html><body>
<script class="js-react-on-rails-component" data-component-name="LibraryPage" type="application/json">%s</script>
</body></html>`, payload)
}

// libraryServer serves one payload per page number, and an empty listing
// for any page past the configured ones
func libraryServer(t *testing.T, pages map[int]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/library" {
			http.NotFound(w, r)
			return
		}
		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			fmt.Sscanf(p, "%d", &page)
		}
		payload, ok := pages[page]
		if !ok {
			payload = `{"results": []}`
		}
		fmt.Fprint(w, libraryPage(payload))
	}))
}

func TestEnumeratorPaginatesUntilEmptyPage(t *testing.T) {
	server := libraryServer(t, map[int]string{
		1: `{"results": [
			{"purchase": {"id": "p1", "product_id": "prod1", "product_name": "First", "price": "$1", "created_at": "2024-03-01", "creator": {"username": "alice"}}},
			{"purchase": {"id": "p2", "product_id": "prod2", "product_name": "Second", "price": "$2", "created_at": "2024-03-02", "creator": {"username": "bob"}}}
		]}`,
		2: `{"results": [
			{"purchase": {"id": "p3", "product_id": "prod3", "product_name": "Third", "price": "$3", "created_at": "2024-03-03", "creator": {"username": "alice"}}}
		]}`,
	})
	defer server.Close()

	client := testClient(t, server)
	e := NewEnumerator(client, "", nil)

	var ids []string
	for e.Next(context.Background()) {
		ids = append(ids, e.Purchase().PurchaseID)
	}
	require.NoError(t, e.Err())
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids)
}

func TestEnumeratorStopsOnHasMoreFalse(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, libraryPage(`{"results": [
			{"purchase": {"id": "p1", "product_id": "prod1", "product_name": "Only", "creator": {"username": "alice"}}}
		], "has_more": false}`))
	}))
	defer server.Close()

	client := testClient(t, server)
	e := NewEnumerator(client, "", nil)

	count := 0
	for e.Next(context.Background()) {
		count++
	}
	require.NoError(t, e.Err())
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, requests, "has_more=false should prevent fetching the next page")
}

func TestEnumeratorTerminatesWhenServerIgnoresPaging(t *testing.T) {
	// A server that ignores ?page=N serves identical rows for every
	// page; a page with no new rows must end the sequence
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, libraryPage(`{"results": [
			{"purchase": {"id": "p1", "product_id": "prod1", "product_name": "Only", "creator": {"username": "alice"}}}
		]}`))
	}))
	defer server.Close()

	client := testClient(t, server)
	e := NewEnumerator(client, "", nil)

	var ids []string
	for e.Next(context.Background()) {
		ids = append(ids, e.Purchase().PurchaseID)
	}
	require.NoError(t, e.Err())
	assert.Equal(t, []string{"p1"}, ids, "repeated rows are terminal, not yielded again")
	assert.Equal(t, 2, requests)
}

func TestEnumeratorCreatorFilter(t *testing.T) {
	server := libraryServer(t, map[int]string{
		1: `{"results": [
			{"purchase": {"id": "p1", "product_id": "prod1", "product_name": "Keep", "creator": {"username": "Alice"}}},
			{"purchase": {"id": "p2", "product_id": "prod2", "product_name": "Drop", "creator": {"username": "bob"}}}
		]}`,
	})
	defer server.Close()

	client := testClient(t, server)
	e := NewEnumerator(client, "alice", nil) // filter is case-insensitive

	var names []string
	for e.Next(context.Background()) {
		names = append(names, e.Purchase().ProductName)
	}
	require.NoError(t, e.Err())
	assert.Equal(t, []string{"Keep"}, names)
}

func TestEnumeratorPurchaseFields(t *testing.T) {
	server := libraryServer(t, map[int]string{
		1: `{"results": [
			{"purchase": {"id": "p1", "product_id": "prod1", "product_name": "First",
				"price": "$9.99", "created_at": "2024-03-01", "product_updated_at": "2024-04-15",
				"download_url": "/d/prod1token", "creator": {"username": "alice"}}}
		]}`,
	})
	defer server.Close()

	client := testClient(t, server)
	e := NewEnumerator(client, "", nil)

	require.True(t, e.Next(context.Background()))
	p := e.Purchase()
	assert.Equal(t, "p1", p.PurchaseID)
	assert.Equal(t, "prod1", p.ProductID)
	assert.Equal(t, "First", p.ProductName)
	assert.Equal(t, "$9.99", p.Price)
	assert.Equal(t, "alice", p.CreatorHandle)
	assert.Equal(t, server.URL+"/d/prod1token", p.DetailURL)
	assert.Equal(t, 2024, p.PurchasedAt.Year())
	assert.Equal(t, 4, int(p.UploadedAt.Month()))
}

func TestEnumeratorMissingPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>no listing here</p></body></html>`)
	}))
	defer server.Close()

	client := testClient(t, server)
	e := NewEnumerator(client, "", nil)

	assert.False(t, e.Next(context.Background()))
	require.Error(t, e.Err())
}

func TestEnumeratorAuthFailurePassesThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	}))
	defer server.Close()

	client := testClient(t, server)
	e := NewEnumerator(client, "", nil)

	assert.False(t, e.Next(context.Background()))
	require.Error(t, e.Err())
	assert.Equal(t, apperrors.ErrorTypeAuth, apperrors.TypeOf(e.Err()))
}

func TestPurchaseFromIdentifier(t *testing.T) {
	t.Run("bare token", func(t *testing.T) {
		p := PurchaseFromIdentifier(BaseURL, "f0000000000000000000000000000000")
		assert.Equal(t, "f0000000000000000000000000000000", p.ProductID)
		assert.Equal(t, BaseURL+"/d/f0000000000000000000000000000000", p.DetailURL)
	})

	t.Run("full URL", func(t *testing.T) {
		p := PurchaseFromIdentifier(BaseURL, "https://app.gumroad.com/d/abc123")
		assert.Equal(t, "abc123", p.ProductID)
		assert.Equal(t, "https://app.gumroad.com/d/abc123", p.DetailURL)
	})
}
