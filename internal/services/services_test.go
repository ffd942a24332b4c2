package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytrpc/internal/models"
	"github.com/desertthunder/ytrpc/internal/server"
	"github.com/desertthunder/ytrpc/internal/shared"
	"github.com/desertthunder/ytrpc/internal/status"
)

func TestAPIService(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("With Empty BaseURL", func(t *testing.T) {
			srv := NewAPIService("", nil)

			if srv.BaseURL() != DefaultBaseURL {
				t.Errorf("expected default baseURL %s, got %s", DefaultBaseURL, srv.BaseURL())
			}
			if srv.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		tc := []struct {
			name     string
			body     string
			wantJSON bool
		}{
			{name: "JSON Response", body: `{"status":"ok"}`, wantJSON: true},
			{name: "Non-JSON Response", body: "plain text", wantJSON: false},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					if r.Method != http.MethodGet {
						t.Errorf("expected GET method, got %s", r.Method)
					}
					io.WriteString(w, tt.body)
				}))
				defer ts.Close()

				resp, err := NewAPIService(ts.URL, nil).Get(context.Background(), "/test")
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if resp.IsJSON != tt.wantJSON {
					t.Errorf("IsJSON = %v, want %v", resp.IsJSON, tt.wantJSON)
				}
				if string(resp.Body) != tt.body {
					t.Errorf("Body = %q", resp.Body)
				}
			})
		}
	})

	t.Run("Post sets content type", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			w.WriteHeader(http.StatusCreated)
		}))
		defer ts.Close()

		resp, err := NewAPIService(ts.URL, nil).Post(context.Background(), "/x", []byte(`{}`))
		if err != nil || resp.StatusCode != http.StatusCreated {
			t.Errorf("Post() = %+v, %v", resp, err)
		}
	})
}

func TestEngineClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Status", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/status" {
				t.Errorf("path = %s", r.URL.Path)
			}
			json.NewEncoder(w).Encode(models.StatusSnapshot{ConnectionState: models.HostConnected, HostVersion: "1.0.0"})
		}))
		defer ts.Close()

		s, err := NewEngineClient(ts.URL, nil).Status(ctx)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if s.ConnectionState != models.HostConnected || s.HostVersion != "1.0.0" {
			t.Errorf("Status() = %+v", s)
		}
	})

	t.Run("Commands", func(t *testing.T) {
		tc := []struct {
			name string
			path string
			call func(*EngineClient) (models.StatusSnapshot, error)
		}{
			{name: "connect", path: "/api/connect", call: func(c *EngineClient) (models.StatusSnapshot, error) { return c.Connect(ctx) }},
			{name: "reconnect", path: "/api/reconnect", call: func(c *EngineClient) (models.StatusSnapshot, error) { return c.Reconnect(ctx) }},
			{name: "disconnect", path: "/api/disconnect", call: func(c *EngineClient) (models.StatusSnapshot, error) { return c.Disconnect(ctx) }},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				var gotPath, gotMethod string
				ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					gotPath, gotMethod = r.URL.Path, r.Method
					json.NewEncoder(w).Encode(models.StatusSnapshot{ConnectionState: models.Disconnected, ManualDisconnect: true})
				}))
				defer ts.Close()

				s, err := tt.call(NewEngineClient(ts.URL, nil))
				if err != nil {
					t.Fatalf("error = %v", err)
				}
				if gotPath != tt.path || gotMethod != http.MethodPost {
					t.Errorf("request = %s %s", gotMethod, gotPath)
				}
				if !s.ManualDisconnect {
					t.Errorf("status not decoded: %+v", s)
				}
			})
		}
	})

	t.Run("Errors", func(t *testing.T) {
		tc := []struct {
			name    string
			code    int
			body    string
			wantErr error
			wantMsg string
		}{
			{name: "stopped", code: http.StatusServiceUnavailable, body: `{"error":"supervisor stopped"}`, wantErr: shared.ErrServiceUnavailable, wantMsg: "supervisor stopped"},
			{name: "timeout", code: http.StatusGatewayTimeout, body: `{"error":"context deadline exceeded"}`, wantErr: shared.ErrTimeout},
			{name: "bad request", code: http.StatusBadRequest, body: "nope", wantErr: shared.ErrInvalidInput, wantMsg: "nope"},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(tt.code)
					io.WriteString(w, tt.body)
				}))
				defer ts.Close()

				_, err := NewEngineClient(ts.URL, nil).Reconnect(ctx)
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.code {
					t.Fatalf("error = %#v, want *APIError", err)
				}
				if tt.wantMsg != "" && apiErr.Message != tt.wantMsg {
					t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMsg)
				}
			})
		}
	})

	t.Run("Unreachable", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		url := ts.URL
		ts.Close()

		if _, err := NewEngineClient(url, nil).Status(ctx); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("error = %v, want ErrServiceUnavailable", err)
		}
	})

	t.Run("History and SubmitTrack", func(t *testing.T) {
		var submitted models.SourceEvent
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/history":
				if r.URL.Query().Get("limit") != "3" {
					t.Errorf("limit = %q", r.URL.Query().Get("limit"))
				}
				json.NewEncoder(w).Encode([]models.HistoryEntry{{Title: "Song", Subtitle: "Artist"}})
			case "/api/track":
				body, _ := io.ReadAll(r.Body)
				ev, err := models.ParseSourceEvent(body)
				if err != nil {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				submitted = ev
				w.WriteHeader(http.StatusAccepted)
			}
		}))
		defer ts.Close()

		client := NewEngineClient(ts.URL, nil)

		entries, err := client.History(ctx, 3)
		if err != nil || len(entries) != 1 || entries[0].Title != "Song" {
			t.Fatalf("History() = %+v, %v", entries, err)
		}

		if err := client.SubmitTrack(ctx, models.NoTrack()); err != nil {
			t.Fatalf("SubmitTrack() error = %v", err)
		}
		if !submitted.NoTrack {
			t.Errorf("submitted = %+v, want NoTrack", submitted)
		}
	})
}

func TestEngineClientWatch(t *testing.T) {
	publisher := status.NewPublisher(models.StatusSnapshot{ConnectionState: models.Disconnected})

	router := server.NewBasicRouter()
	router.Handler(server.NewStatusStream(publisher, nil, log.New(io.Discard)))
	ts := httptest.NewServer(router)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updates, err := NewEngineClient(ts.URL, nil).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	first := <-updates
	if first.ConnectionState != models.Disconnected {
		t.Errorf("first = %v", first.ConnectionState)
	}

	publisher.Publish(models.StatusSnapshot{ConnectionState: models.PresenceReady})
	select {
	case s := <-updates:
		if s.ConnectionState != models.PresenceReady {
			t.Errorf("pushed = %v", s.ConnectionState)
		}
	case <-ctx.Done():
		t.Fatal("no pushed status")
	}

	cancel()
	for range updates {
	}
}
