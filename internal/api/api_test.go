package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"method": r.Method, "name": body["name"]})
		case "/busy":
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "project busy"})
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		case "/file.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.7"))
		default:
			http.Error(w, "plain failure", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	t.Run("post decodes json", func(t *testing.T) {
		var got map[string]string
		if err := c.Post(ctx, "/ok", map[string]string{"name": "hero"}, &got); err != nil {
			t.Fatalf("Post() error = %v", err)
		}
		if got["method"] != http.MethodPost || got["name"] != "hero" {
			t.Errorf("got %v", got)
		}
	})

	t.Run("patch", func(t *testing.T) {
		var got map[string]string
		if err := c.Patch(ctx, "/ok", map[string]string{}, &got); err != nil {
			t.Fatalf("Patch() error = %v", err)
		}
		if got["method"] != http.MethodPatch {
			t.Errorf("method = %s", got["method"])
		}
	})

	t.Run("error response carries status", func(t *testing.T) {
		err := c.Get(ctx, "/busy", nil)
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			t.Fatalf("error = %v, want *Error", err)
		}
		if apiErr.StatusCode != http.StatusConflict || apiErr.Message != "project busy" {
			t.Errorf("apiErr = %+v", apiErr)
		}
	})

	t.Run("plain text error", func(t *testing.T) {
		err := c.Get(ctx, "/nope", nil)
		if err == nil || !strings.Contains(err.Error(), "plain failure") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		var got map[string]string
		if err := c.Delete(ctx, "/empty", &got); err != nil {
			t.Errorf("Delete() error = %v", err)
		}
	})

	t.Run("download", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := c.Download(ctx, "/file.pdf", &buf)
		if err != nil {
			t.Fatalf("Download() error = %v", err)
		}
		if n != 8 || buf.String() != "%PDF-1.7" {
			t.Errorf("Download() = %d %q", n, buf.String())
		}
		if _, err := c.Download(ctx, "/busy", &buf); err == nil {
			t.Error("expected error for 409")
		}
	})

	t.Run("raw post", func(t *testing.T) {
		var got map[string]string
		if err := c.PostRaw(ctx, "/ok", "application/json", strings.NewReader(`{"name":"raw"}`), &got); err != nil {
			t.Fatalf("PostRaw() error = %v", err)
		}
		if got["name"] != "raw" {
			t.Errorf("got %v", got)
		}
	})
}

type shotRows []struct{ ID, State string }

func (s shotRows) TableHeaders() []string { return []string{"ID", "STATE"} }

func (s shotRows) TableRows() [][]string {
	rows := make([][]string, 0, len(s))
	for _, r := range s {
		rows = append(rows, []string{r.ID, r.State})
	}
	return rows
}

func TestOutputTo(t *testing.T) {
	data := shotRows{{"s1", "success"}, {"s2", "failed"}}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := OutputTo(&buf, OutputFormatJSON, map[string]int{"n": 1}); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), `"n": 1`) {
			t.Errorf("json output = %q", buf.String())
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := OutputTo(&buf, OutputFormatYAML, map[string]int{"n": 1}); err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(buf.String()) != "n: 1" {
			t.Errorf("yaml output = %q", buf.String())
		}
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		if err := OutputTo(&buf, OutputFormatTable, data); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		for _, want := range []string{"ID", "STATE", "s1", "failed"} {
			if !strings.Contains(out, want) {
				t.Errorf("table output missing %q:\n%s", want, out)
			}
		}
		if strings.ContainsRune(out, '╭') {
			t.Error("non-terminal output should not use box drawing")
		}
	})

	t.Run("table falls back to yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := OutputTo(&buf, OutputFormatTable, map[string]int{"n": 1}); err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(buf.String()) != "n: 1" {
			t.Errorf("fallback output = %q", buf.String())
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		if err := OutputTo(&bytes.Buffer{}, "xml", data); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}

func TestSetOutputFormat(t *testing.T) {
	defer SetOutputFormat("yaml")
	for in, want := range map[string]OutputFormat{"json": OutputFormatJSON, "table": OutputFormatTable, "bogus": DefaultOutput} {
		SetOutputFormat(in)
		if got := GetOutputFormat(); got != want {
			t.Errorf("SetOutputFormat(%q) -> %q, want %q", in, got, want)
		}
	}
}
