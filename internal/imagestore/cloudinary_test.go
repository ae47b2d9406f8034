package imagestore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStoreUploadsAndReturnsURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, "bad multipart", http.StatusBadRequest)
			return
		}
		if r.FormValue("signature") == "" || r.FormValue("timestamp") == "" {
			http.Error(w, "unsigned request", http.StatusUnauthorized)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"public_id":"faceattend/alice","secure_url":"https://cdn.example/alice.jpg"}`))
	}))
	defer srv.Close()

	c := NewCloudinary("demo", "key", "secret", "faceattend")
	c.BaseURL = srv.URL

	url, err := c.Store(context.Background(), []byte("jpeg"), "alice")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if url != "https://cdn.example/alice.jpg" {
		t.Errorf("url = %q", url)
	}
}

func TestStoreSurfacesUploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewCloudinary("demo", "key", "secret", "")
	c.BaseURL = srv.URL
	if _, err := c.Store(context.Background(), []byte("jpeg"), "alice"); err == nil {
		t.Error("expected upload failure")
	}
}

func TestSignDeterministic(t *testing.T) {
	c := NewCloudinary("demo", "key", "secret", "f")
	params := map[string]string{"timestamp": "100", "folder": "f", "api_key": "key"}
	if c.sign(params) != c.sign(params) {
		t.Error("signature should be deterministic for identical params")
	}
	other := map[string]string{"timestamp": "101", "folder": "f", "api_key": "key"}
	if c.sign(params) == c.sign(other) {
		t.Error("different params should sign differently")
	}
}
