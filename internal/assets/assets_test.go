package assets

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStore_SaveAndOpen(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "http://localhost:8080/")

	url, err := s.Save([]byte("frame"), ".png")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !strings.HasPrefix(url, "http://localhost:8080/assets/") || !strings.HasSuffix(url, ".png") {
		t.Errorf("unexpected url %q", url)
	}

	name, ok := s.LocalName(url)
	if !ok {
		t.Fatalf("LocalName(%q) not recognized", url)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		t.Errorf("asset not on disk: %v", err)
	}

	rc, err := s.Open(context.Background(), url)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "frame" {
		t.Errorf("Open() = %q, want frame", data)
	}
}

func TestStore_SaveReader(t *testing.T) {
	s := New(t.TempDir(), "http://localhost:8080")
	url, err := s.SaveReader(strings.NewReader("clip"), "mp4")
	if err != nil {
		t.Fatalf("SaveReader() error = %v", err)
	}
	if !strings.HasSuffix(url, ".mp4") {
		t.Errorf("unexpected url %q", url)
	}
}

func TestStore_Path(t *testing.T) {
	s := New(t.TempDir(), "http://localhost:8080")

	tests := []struct {
		name    string
		wantErr bool
	}{
		{"abc.png", false},
		{"", true},
		{"../etc/passwd", true},
		{"a/b.png", true},
		{".hidden", true},
		{`a\b.png`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Path(tt.name)
			if tt.wantErr && !errors.Is(err, ErrInvalidName) {
				t.Errorf("Path(%q) error = %v, want ErrInvalidName", tt.name, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Path(%q) unexpected error %v", tt.name, err)
			}
		})
	}
}

func TestStore_OpenRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("remote"))
	}))
	defer server.Close()

	s := New(t.TempDir(), "http://localhost:8080")

	rc, err := s.Open(context.Background(), server.URL+"/hero.png")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "remote" {
		t.Errorf("Open() = %q, want remote", data)
	}

	if _, err := s.Open(context.Background(), server.URL+"/missing.png"); err == nil {
		t.Error("expected error for missing remote asset")
	}
}

func TestStore_OpenFileURL(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "local.png")
	if err := os.WriteFile(p, []byte("local"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(t.TempDir(), "http://localhost:8080")

	rc, err := s.Open(context.Background(), "file://"+p)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "local" {
		t.Errorf("Open() = %q, want local", data)
	}
}
