package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/intervox-ai/intervox/pkg/provider/stt"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := New("test-key", WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestTranscribe_Success(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "audio/webm" {
			t.Errorf("Content-Type = %q", got)
		}
		if got := r.URL.Query().Get("model"); got != "nova-3" {
			t.Errorf("model = %q", got)
		}
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"hello there","confidence":0.97}]}]}}`))
	})

	resp, err := p.Transcribe(context.Background(), stt.Request{
		Audio:       []byte{1, 2, 3},
		ContentType: "audio/webm",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if resp.Text == nil || *resp.Text != "hello there" {
		t.Errorf("Text = %v, want %q", resp.Text, "hello there")
	}
	if resp.Confidence != 0.97 {
		t.Errorf("Confidence = %v, want 0.97", resp.Confidence)
	}
}

func TestTranscribe_EmptyTranscriptIsNotNil(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"","confidence":0}]}]}}`))
	})

	resp, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte{1}})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if resp.Text == nil {
		t.Fatal("Text = nil, want pointer to empty string")
	}
	if *resp.Text != "" {
		t.Errorf("Text = %q, want empty", *resp.Text)
	}
}

func TestTranscribe_MissingTranscriptField(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"confidence":0.5}]}]}}`))
	})

	resp, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte{1}})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if resp.Text != nil {
		t.Errorf("Text = %q, want nil for missing field", *resp.Text)
	}
}

func TestTranscribe_NoAlternatives(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"results":{"channels":[]}}`))
	})

	resp, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte{1}})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if resp.Text != nil {
		t.Error("Text should be nil when the response has no alternatives")
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	})

	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte{1}}); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}
