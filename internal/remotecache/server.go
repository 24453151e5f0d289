package remotecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/valuegrid/internal/cache"
	"github.com/specialistvlad/valuegrid/internal/ctxlog"
	"github.com/zishang520/socket.io/v2/socket"
)

// Server answers cache requests from a backing store.
type Server struct {
	store cache.Store
	io    *socket.Server
	ctx   context.Context
}

// NewServer creates a server over store. ctx supplies the logger and bounds
// store operations.
func NewServer(ctx context.Context, store cache.Store) *Server {
	s := &Server{store: store, io: socket.NewServer(nil, nil), ctx: ctx}
	logger := ctxlog.FromContext(ctx)

	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		logger.Debug("Remote cache client connected.", "sid", client.Id())

		client.On(EventRequest, func(args ...any) {
			if len(args) == 0 {
				return
			}
			req, err := parseRequest(args[0])
			if err != nil {
				logger.Warn("Discarding malformed cache request.", "sid", client.Id(), "error", err)
				return
			}
			client.Emit(EventResponse, s.Handle(s.ctx, req))
		})
		client.On("disconnect", func(...any) {
			logger.Debug("Remote cache client disconnected.", "sid", client.Id())
		})
	})
	return s
}

// Handler returns the socket.io HTTP handler, to be mounted at /socket.io/.
func (s *Server) Handler() http.Handler {
	return s.io.ServeHandler(nil)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	logger := ctxlog.FromContext(ctx)
	mux := http.NewServeMux()
	mux.Handle("/socket.io/", s.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🗄️ Remote cache server listening.", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("remote cache server failed: %w", err)
	case <-ctx.Done():
		logger.Info("Shutting down remote cache server.")
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Close disconnects every client.
func (s *Server) Close() {
	s.io.Close(nil)
}

// Handle executes one request. It is independent of the transport.
func (s *Server) Handle(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID}
	fail := func(err error) Response {
		resp.Status = StatusError
		resp.Error = err.Error()
		return resp
	}

	cycleID, err := uuid.Parse(req.Cycle)
	if err != nil {
		return fail(fmt.Errorf("invalid cycle id %q: %w", req.Cycle, err))
	}

	switch req.Op {
	case OpGet:
		data, ok, err := s.store.Get(ctx, cycleID, req.Key)
		if err != nil {
			return fail(err)
		}
		if !ok {
			resp.Status = StatusNotFound
			return resp
		}
		resp.Status = StatusFound
		resp.Data = encode(data)
	case OpPut:
		data, err := decode(req.Data)
		if err != nil {
			return fail(fmt.Errorf("invalid payload: %w", err))
		}
		if err := s.store.Put(ctx, cycleID, req.Key, data); err != nil {
			return fail(err)
		}
		resp.Status = StatusAck
	case OpPurge:
		if err := s.store.Purge(ctx, cycleID); err != nil {
			return fail(err)
		}
		resp.Status = StatusAck
	default:
		return fail(fmt.Errorf("unknown operation %q", req.Op))
	}
	return resp
}

// parseRequest converts a decoded event argument into a Request.
func parseRequest(arg any) (Request, error) {
	var req Request
	raw, err := json.Marshal(arg)
	if err != nil {
		return req, err
	}
	err = json.Unmarshal(raw, &req)
	return req, err
}
