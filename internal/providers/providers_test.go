package providers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestMockRenderer(t *testing.T) {
	ctx := context.Background()

	t.Run("image and video urls", func(t *testing.T) {
		m := NewMockRenderer()
		img, err := m.GenerateImage(ctx, &ImageRequest{Prompt: "dawn", References: []string{"https://cdn/hero.png"}})
		if err != nil {
			t.Fatalf("GenerateImage() error = %v", err)
		}
		if img.URL != "mock://image/1" || img.Provider != MockRendererName {
			t.Errorf("image result = %+v", img)
		}

		vid, err := m.GenerateVideo(ctx, &VideoRequest{Prompt: "pan", StartRef: "a", EndRef: "b"})
		if err != nil {
			t.Fatalf("GenerateVideo() error = %v", err)
		}
		if vid.URL != "mock://video/2" {
			t.Errorf("video url = %q, want mock://video/2", vid.URL)
		}

		want := []MockCall{
			{Prompt: "dawn", References: []string{"https://cdn/hero.png"}},
			{Video: true, Prompt: "pan", StartRef: "a", EndRef: "b"},
		}
		if diff := cmp.Diff(want, m.Calls()); diff != "" {
			t.Errorf("calls mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("fail first", func(t *testing.T) {
		m := NewMockRenderer()
		m.FailFirst = 2
		for i := 1; i <= 3; i++ {
			_, err := m.GenerateImage(ctx, &ImageRequest{Prompt: "x"})
			if (err != nil) != (i <= 2) {
				t.Errorf("call %d error = %v", i, err)
			}
		}
	})

	t.Run("fail func sees the call", func(t *testing.T) {
		m := NewMockRenderer()
		m.FailFunc = func(c MockCall) error {
			if strings.Contains(c.Prompt, "storm") {
				return errors.New("content filtered")
			}
			return nil
		}
		if _, err := m.GenerateImage(ctx, &ImageRequest{Prompt: "storm at sea"}); err == nil {
			t.Error("expected failure for storm prompt")
		}
		if _, err := m.GenerateImage(ctx, &ImageRequest{Prompt: "calm sea"}); err != nil {
			t.Errorf("calm prompt error = %v", err)
		}
	})

	t.Run("latency honors context", func(t *testing.T) {
		m := NewMockRenderer()
		m.Latency = time.Minute
		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		if _, err := m.GenerateImage(cctx, &ImageRequest{Prompt: "x"}); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want deadline exceeded", err)
		}
	})

	t.Run("reset", func(t *testing.T) {
		m := NewMockRenderer()
		_, _ = m.GenerateImage(ctx, &ImageRequest{Prompt: "x"})
		m.Reset()
		if m.RequestCount() != 0 || len(m.Calls()) != 0 {
			t.Errorf("after Reset: count=%d calls=%d", m.RequestCount(), len(m.Calls()))
		}
	})
}

// TestTestConfig verifies the test helper works correctly.
func TestTestConfig(t *testing.T) {
	t.Run("mock always registered", func(t *testing.T) {
		regCfg := TestConfig{}.ToRegistryConfig(nil)
		if _, ok := regCfg.Renderers[MockRendererName]; !ok {
			t.Fatal("mock renderer missing from registry config")
		}
		if len(regCfg.Renderers) != 1 {
			t.Errorf("renderers = %v, want only mock without credentials", regCfg.Renderers)
		}
	})

	t.Run("configured renderers", func(t *testing.T) {
		cfg := TestConfig{OpenAIAPIKey: "sk-test", RenderServiceURL: "http://render.local"}
		r := NewRegistryFromConfig(cfg.ToRegistryConfig(nil))
		want := []string{MockRendererName, OpenAIRendererType, RenderServiceType}
		if diff := cmp.Diff(want, r.List()); diff != "" {
			t.Errorf("registered renderers (-want +got):\n%s", diff)
		}
	})
}
