package shop

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testClient(srv *httptest.Server) *Client {
	return NewClient(ClientOptions{Timeout: 2 * time.Second}, zerolog.Nop())
}

func TestGetHTMLSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Fatal("request should carry a user agent")
		}
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	body, err := testClient(srv).GetHTML(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetHTML: %v", err)
	}
	if body == "" {
		t.Fatal("expected body")
	}
}

func TestGetHTMLGone(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusGone} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		_, err := testClient(srv).GetHTML(context.Background(), srv.URL)
		srv.Close()
		if !errors.Is(err, ErrGone) {
			t.Fatalf("status %d should map to ErrGone, got %v", status, err)
		}
	}
}

func TestGetHTMLTransientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv).GetHTML(context.Background(), srv.URL)
	if !IsFetchError(err) {
		t.Fatalf("429 should be a FetchError, got %v", err)
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Status != http.StatusTooManyRequests {
		t.Fatalf("FetchError should record the status: %v", err)
	}
}

func TestGetHTMLNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := testClient(nil).GetHTML(context.Background(), url)
	if !IsFetchError(err) {
		t.Fatalf("connection refused should be a FetchError, got %v", err)
	}
}

func TestGetHTMLEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("   \n"))
	}))
	defer srv.Close()

	_, err := testClient(srv).GetHTML(context.Background(), srv.URL)
	if !IsParseError(err) {
		t.Fatalf("blank body should be a ParseError, got %v", err)
	}
}
