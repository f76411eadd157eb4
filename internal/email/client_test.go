package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		APIKey:     "sg-key",
		BaseURL:    srv.URL,
		FromEmail:  "hallo@momtribe.example",
		FromName:   "Mom Tribe",
		MaxRetries: retries,
	}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	c.backoff = time.Millisecond
	return c
}

func TestSendWelcome(t *testing.T) {
	var got sendRequest
	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("path = %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}, 0)

	if err := c.SendWelcome(context.Background(), Address{Email: "anna@example.com", Name: "Anna"}); err != nil {
		t.Fatalf("SendWelcome() error: %v", err)
	}

	if auth != "Bearer sg-key" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.From.Email != "hallo@momtribe.example" {
		t.Errorf("from = %v, want default sender", got.From)
	}
	if len(got.Personalizations) != 1 || got.Personalizations[0].To[0].Email != "anna@example.com" {
		t.Errorf("personalizations = %+v", got.Personalizations)
	}
	if len(got.Content) != 1 || got.Content[0].Type != "text/plain" || !strings.HasPrefix(got.Content[0].Value, "Hallo Anna,") {
		t.Errorf("content = %+v", got.Content)
	}
}

func TestSend_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}, 3)

	if err := c.SendWelcome(context.Background(), Address{Email: "a@example.com"}); err != nil {
		t.Fatalf("SendWelcome() error: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestSend_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"bad from"}]}`))
	}, 3)

	err := c.SendWelcome(context.Background(), Address{Email: "a@example.com"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error = %v, want status in message", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestSend_Validation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent for invalid message")
	}, 0)
	ctx := context.Background()

	if err := c.Send(ctx, Message{Subject: "s", Text: "t"}); err == nil {
		t.Error("expected error without recipient")
	}
	if err := c.Send(ctx, Message{To: []Address{{Email: "a@example.com"}}, Text: "t"}); err == nil {
		t.Error("expected error without subject")
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Error("expected error without API key")
	}
}
