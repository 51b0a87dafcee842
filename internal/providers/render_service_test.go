package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRenderServiceClient_GenerateImage(t *testing.T) {
	t.Run("successful render", func(t *testing.T) {
		var got ImageRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/images" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if r.Method != http.MethodPost {
				t.Errorf("unexpected method: %s", r.Method)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
				t.Errorf("unexpected authorization: %s", auth)
			}
			if r.Header.Get("X-Request-ID") == "" {
				t.Error("expected a request id header")
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"succeeded","url":"https://cdn/frame.png","model":"flux"}`))
		}))
		defer server.Close()

		client := NewRenderServiceClient(RenderServiceConfig{
			Name:      "studio",
			BaseURL:   server.URL + "/",
			APIKey:    "test-key",
			RateLimit: 100,
		})

		result, err := client.GenerateImage(context.Background(), &ImageRequest{
			Prompt:     "a castle at dusk",
			References: []string{"https://img/a.png", "https://img/b.png"},
		})
		if err != nil {
			t.Fatalf("GenerateImage() error = %v", err)
		}
		if result.URL != "https://cdn/frame.png" {
			t.Errorf("unexpected url: %s", result.URL)
		}
		if result.Provider != "studio" || result.Model != "flux" {
			t.Errorf("unexpected provider/model: %s/%s", result.Provider, result.Model)
		}
		if got.Prompt != "a castle at dusk" || len(got.References) != 2 {
			t.Errorf("unexpected request body: %+v", got)
		}
	})

	t.Run("failed status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"failed","error":"nsfw filter"}`))
		}))
		defer server.Close()

		client := NewRenderServiceClient(RenderServiceConfig{BaseURL: server.URL, RateLimit: 100})
		_, err := client.GenerateImage(context.Background(), &ImageRequest{Prompt: "x"})
		if err == nil || !strings.Contains(err.Error(), "nsfw filter") {
			t.Fatalf("expected render failure carrying the service error, got %v", err)
		}
	})

	t.Run("schema violation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"succeeded"}`))
		}))
		defer server.Close()

		client := NewRenderServiceClient(RenderServiceConfig{BaseURL: server.URL, RateLimit: 100})
		_, err := client.GenerateImage(context.Background(), &ImageRequest{Prompt: "x"})
		if err == nil || !strings.Contains(err.Error(), "schema validation") {
			t.Fatalf("expected schema validation error, got %v", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		}))
		defer server.Close()

		client := NewRenderServiceClient(RenderServiceConfig{BaseURL: server.URL, RateLimit: 100})
		_, err := client.GenerateImage(context.Background(), &ImageRequest{Prompt: "x"})
		statusErr, ok := err.(*StatusError)
		if !ok {
			t.Fatalf("expected *StatusError, got %T: %v", err, err)
		}
		if statusErr.StatusCode != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", statusErr.StatusCode)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewRenderServiceClient(RenderServiceConfig{BaseURL: server.URL, RateLimit: 100})
		_, err := client.GenerateImage(context.Background(), &ImageRequest{Prompt: "x"})
		rle, ok := IsRateLimitError(err)
		if !ok {
			t.Fatalf("expected RateLimitError, got %T: %v", err, err)
		}
		if rle.RetryAfter != 2*time.Second {
			t.Errorf("expected RetryAfter=2s, got %v", rle.RetryAfter)
		}
	})

	t.Run("empty prompt", func(t *testing.T) {
		client := NewRenderServiceClient(RenderServiceConfig{BaseURL: "http://unused"})
		if _, err := client.GenerateImage(context.Background(), &ImageRequest{Prompt: "  "}); err == nil {
			t.Fatal("expected error for empty prompt")
		}
	})
}

func TestRenderServiceClient_GenerateVideo(t *testing.T) {
	var got VideoRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/videos" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"status":"succeeded","url":"https://cdn/clip.mp4","request_id":"job-7"}`))
	}))
	defer server.Close()

	client := NewRenderServiceClient(RenderServiceConfig{BaseURL: server.URL, RateLimit: 100})
	result, err := client.GenerateVideo(context.Background(), &VideoRequest{
		Prompt:          "the hero turns",
		References:      []string{"https://img/start.png", "https://img/end.png"},
		StartRef:        "https://img/start.png",
		EndRef:          "https://img/end.png",
		DurationSeconds: 5,
	})
	if err != nil {
		t.Fatalf("GenerateVideo() error = %v", err)
	}
	if result.URL != "https://cdn/clip.mp4" || result.RequestID != "job-7" {
		t.Errorf("unexpected result: %+v", result)
	}
	if got.StartRef != "https://img/start.png" || got.EndRef != "https://img/end.png" || got.DurationSeconds != 5 {
		t.Errorf("unexpected request body: %+v", got)
	}
}

func TestRenderServiceClient_GenerateVideoWithoutPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"succeeded","url":"https://cdn/clip.mp4"}`))
	}))
	defer server.Close()
	client := NewRenderServiceClient(RenderServiceConfig{BaseURL: server.URL, RateLimit: 100})

	if _, err := client.GenerateVideo(context.Background(), &VideoRequest{StartRef: "https://img/start.png"}); err != nil {
		t.Errorf("frames without a prompt: error = %v", err)
	}
	if _, err := client.GenerateVideo(context.Background(), &VideoRequest{}); err == nil {
		t.Error("no prompt and no frames: expected error")
	}
}
