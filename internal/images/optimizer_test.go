package images

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOptimizerRewrite(t *testing.T) {
	o := NewOptimizer()
	got := o.Rewrite("https://res.example.com/img/upload/abcd.png")
	want := "https://i0.wp.com/res.example.com/img/upload/abcd.png"
	if got != want {
		t.Errorf("Rewrite = %q, want %q", got, want)
	}
}

func TestOptimizerFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != optimizerUserAgent {
			t.Errorf("user agent = %q", ua)
		}
		w.Header().Set("Content-Type", "image/webp")
		w.Write([]byte("optimized-bytes"))
	}))
	defer srv.Close()

	o := NewOptimizer()
	o.base = srv.URL + "/"

	body, contentType, err := o.Fetch(context.Background(), "https://res.example.com/abcd.png")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer body.Close()

	data, _ := io.ReadAll(body)
	if string(data) != "optimized-bytes" {
		t.Errorf("body = %q", data)
	}
	if contentType != "image/webp" {
		t.Errorf("content type = %q", contentType)
	}
}

func TestOptimizerFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusBadGateway)
	}))
	defer srv.Close()

	o := NewOptimizer()
	o.base = srv.URL + "/"

	if _, _, err := o.Fetch(context.Background(), "https://res.example.com/abcd.png"); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}
