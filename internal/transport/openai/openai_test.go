package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestModel_RoundTrip(t *testing.T) {
	var gotModel string
	var gotMaxTokens float64
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		gotModel, _ = body["model"].(string)
		gotMaxTokens, _ = body["max_tokens"].(float64)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "big",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "the answer"}}],
			"usage": {"prompt_tokens": 30, "completion_tokens": 12, "total_tokens": 42}
		}`))
	})

	m, err := New(Config{APIKey: "test", BaseURL: srv.URL, SmallModel: "small", LargeModel: "big"})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := m.Invoke(context.Background(), transport.Request{
		Tier: transport.TierExpert, Prompt: "QUESTION: x", MaxTokens: 200,
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if resp.Text != "the answer" || resp.TokensUsed != 42 {
		t.Errorf("resp = %+v", resp)
	}
	if gotModel != "big" {
		t.Errorf("model = %q", gotModel)
	}
	if gotMaxTokens != 200 {
		t.Errorf("max_tokens = %v", gotMaxTokens)
	}
}

func TestModel_ServerErrorIsTransportError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
	})
	m, _ := New(Config{APIKey: "test", BaseURL: srv.URL, SmallModel: "small", LargeModel: "big"})
	_, err := m.Invoke(context.Background(), transport.Request{Tier: transport.TierSmall, Prompt: "p"})
	var te *transport.Error
	if !errors.As(err, &te) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if te.Tier != transport.TierSmall {
		t.Errorf("tier = %s", te.Tier)
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without api key")
	}
}

func TestModel_UnknownTier(t *testing.T) {
	m, _ := New(Config{APIKey: "k", SmallModel: "s"})
	if _, err := m.Invoke(context.Background(), transport.Request{Tier: transport.TierExpert}); err == nil {
		t.Error("expected error for tier without model")
	}
}
