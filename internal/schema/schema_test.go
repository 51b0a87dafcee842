package schema

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jackzampolin/storyboard/internal/defra"
)

func TestAll(t *testing.T) {
	schemas, err := All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}

	want := []string{"Project", "Entity", "Shot", "Target"}
	if len(schemas) != len(want) {
		t.Fatalf("expected %d schemas, got %d", len(want), len(schemas))
	}
	for i, s := range schemas {
		if s.Name != want[i] {
			t.Errorf("schemas[%d] = %s, want %s", i, s.Name, want[i])
		}
		if !strings.Contains(s.SDL, "type "+s.Name) {
			t.Errorf("%s SDL doesn't declare its type", s.Name)
		}
		if !strings.Contains(s.SDL, "key: String") {
			t.Errorf("%s SDL has no key field", s.Name)
		}
	}
}

func TestGet(t *testing.T) {
	t.Run("existing schema", func(t *testing.T) {
		s, err := Get("Target")
		if err != nil {
			t.Fatalf("Get(Target) error = %v", err)
		}
		if !strings.Contains(s.SDL, "tombstones: [String]") {
			t.Error("Target schema is missing tombstones")
		}
	})

	t.Run("non-existent schema", func(t *testing.T) {
		if _, err := Get("NonExistent"); err == nil {
			t.Error("expected error for non-existent schema")
		}
	})
}

func TestInitialize(t *testing.T) {
	t.Run("applies every schema", func(t *testing.T) {
		var (
			mu      sync.Mutex
			applied []string
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v0/schema" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			buf := new(strings.Builder)
			_, _ = io.Copy(buf, r.Body)
			mu.Lock()
			applied = append(applied, buf.String())
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		if err := Initialize(context.Background(), defra.NewClient(server.URL), slog.Default()); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		if len(applied) != 4 {
			t.Errorf("expected 4 schemas applied, got %d", len(applied))
		}
	})

	t.Run("handles already exists error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("collection already exists. Name: Shot"))
		}))
		defer server.Close()

		if err := Initialize(context.Background(), defra.NewClient(server.URL), slog.Default()); err != nil {
			t.Errorf("Initialize() should handle already exists, got error = %v", err)
		}
	})

	t.Run("fails on other errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("invalid schema syntax"))
		}))
		defer server.Close()

		if err := Initialize(context.Background(), defra.NewClient(server.URL), slog.Default()); err == nil {
			t.Error("Initialize() should fail on syntax error")
		}
	})
}
