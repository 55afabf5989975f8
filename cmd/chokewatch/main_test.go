package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chokewatch/internal/config"
	"chokewatch/internal/push"
	"chokewatch/internal/quiet"
)

func TestPostPayload(t *testing.T) {
	var got *push.Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/push" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		n, err := push.DecodePayload(body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		got = n
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "evt-1"})
	}))
	defer srv.Close()

	n := &push.Notification{Title: "Bay Bridge", Options: json.RawMessage(`{"body":"slow"}`)}
	id, err := postPayload(context.Background(), srv.URL+"/v1/push", n)
	if err != nil {
		t.Fatalf("postPayload: %v", err)
	}
	if id != "evt-1" {
		t.Errorf("id = %q, want evt-1", id)
	}
	if got == nil || got.Title != "Bay Bridge" || string(got.Options) != `{"body":"slow"}` {
		t.Errorf("server received %+v", got)
	}
}

func TestPostPayloadNotActive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "no active worker"})
	}))
	defer srv.Close()

	_, err := postPayload(context.Background(), srv.URL, nil)
	if err == nil {
		t.Fatal("expected error for 503")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "no active worker") {
		t.Errorf("error = %v", err)
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{time.Minute + time.Second, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{3 * time.Hour, "3 hours ago"},
		{25 * time.Hour, "1 day ago"},
		{15 * 24 * time.Hour, "2 weeks ago"},
	}

	for _, tt := range tests {
		if got := formatAge(time.Now().Add(-tt.ago)); got != tt.want {
			t.Errorf("formatAge(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}

func TestQuietOrOff(t *testing.T) {
	if got := quietOrOff(""); got != "off" {
		t.Errorf("quietOrOff(\"\") = %q", got)
	}
	if got := quietOrOff("10 PM – 7 AM"); got != "10 PM – 7 AM" {
		t.Errorf("quietOrOff = %q", got)
	}
}

func TestRenderConfigMasksPassword(t *testing.T) {
	cfg := config.Default()
	cfg.Push.Redis.Password = "hunter2"

	out, err := renderConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "hunter2") {
		t.Errorf("password leaked:\n%s", out)
	}
	if !strings.Contains(out, "chokewatch:push") {
		t.Errorf("channel missing:\n%s", out)
	}
	if cfg.Push.Redis.Password != "hunter2" {
		t.Error("renderConfig modified the config")
	}
}

func TestDescribeWindow(t *testing.T) {
	tests := []struct {
		w    quiet.Window
		want string
	}{
		{quiet.Window{Start: 22, End: 7}, "Alerts are silenced from 22:00 until 06:59, past midnight."},
		{quiet.Window{Start: 22, End: 0}, "Alerts are silenced from 22:00 until 23:59."},
		{quiet.Window{Start: 9, End: 17}, "Alerts are silenced from 09:00 until 16:59."},
		{quiet.Window{Start: 5, End: 5}, "Start and end are equal: every hour is quiet."},
	}

	for _, tt := range tests {
		if got := describeWindow(tt.w); got != tt.want {
			t.Errorf("describeWindow(%v) = %q, want %q", tt.w, got, tt.want)
		}
	}
}
