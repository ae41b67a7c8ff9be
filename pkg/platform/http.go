package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/chack/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Gateway is the orchestration entry point the HTTP adapter drives.
type Gateway interface {
	HandleEvent(ctx context.Context, ev *model.Event, rsp Responder) bool
}

// Server exposes the gateway over HTTP: platform adapters that cannot embed
// the process POST normalized events and receive the reply in the response.
type Server struct {
	addr    string
	gateway Gateway
	server  *http.Server
}

func NewServer(addr string, gateway Gateway) *Server {
	return &Server{addr: addr, gateway: gateway}
}

// Start runs the server until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events", s.handleEvent)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	logging.From(ctx).Info("gateway server started", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return goerr.Wrap(err, "failed to shut down server")
		}
		return nil

	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return goerr.Wrap(err, "server failed")
		}
		return nil
	}
}

// eventResponse is the reply envelope for one posted event.
type eventResponse struct {
	Admitted bool     `json:"admitted"`
	Replies  []string `json:"replies,omitempty"`
}

// captureResponder collects replies emitted during a synchronous turn.
type captureResponder struct {
	mu      sync.Mutex
	replies []string
}

func (c *captureResponder) Reply(ctx context.Context, reply *model.Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, reply.Text)
	return nil
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}
	if ev.Platform == "" || ev.ChatID == "" || ev.Text == "" {
		http.Error(w, "platform, chat_id and text are required", http.StatusBadRequest)
		return
	}

	capture := &captureResponder{}
	admitted := s.gateway.HandleEvent(r.Context(), &ev, capture)

	resp := eventResponse{Admitted: admitted, Replies: capture.replies}
	w.Header().Set("Content-Type", "application/json")
	if !admitted {
		w.WriteHeader(http.StatusAccepted)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.From(r.Context()).Debug("failed to write response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		logging.From(r.Context()).Debug("failed to write response", "error", err)
	}
}
