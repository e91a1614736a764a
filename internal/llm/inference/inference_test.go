package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jo-hoe/podify/internal/config"
	infsh "github.com/jo-hoe/podify/internal/inference"
)

func TestComplete(t *testing.T) {
	var seen struct {
		App   string            `json:"app"`
		Input map[string]string `json:"input"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&seen)
		_, _ = w.Write([]byte(`{"output":"a description"}`))
	}))
	defer ts.Close()

	cfg := config.InferenceSettings{BaseURL: ts.URL, APIKey: "k", App: "openrouter/claude-sonnet-45"}
	c := New(cfg).WithRunner(infsh.New(cfg).WithHTTPClient(ts.Client()))

	out, err := c.Complete(context.Background(), "sys", "usr")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "a description" {
		t.Fatalf("unexpected output %q", out)
	}
	if seen.App != "openrouter/claude-sonnet-45" || seen.Input["system"] != "sys" || seen.Input["prompt"] != "usr" {
		t.Fatalf("request mismatch: %+v", seen)
	}
}
