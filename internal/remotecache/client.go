package remotecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/valuegrid/internal/cache"
	"github.com/specialistvlad/valuegrid/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Client is a cache.Store backed by a remote cache server.
type Client struct {
	io      *socket.Socket
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan Response
	closed  bool
}

var _ cache.Store = (*Client)(nil)

// Dial connects to the server at rawURL. timeout bounds the connection
// attempt and every later request.
func Dial(ctx context.Context, rawURL string, timeout time.Duration) (*Client, error) {
	logger := ctxlog.FromContext(ctx).With("url", rawURL)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		opts.SetPath(parsedURL.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket("/", opts)

	c := &Client{io: io, timeout: timeout, pending: make(map[string]chan Response)}
	io.On(types.EventName(EventResponse), func(data ...any) {
		if len(data) == 0 {
			return
		}
		c.deliver(data[0])
	})

	connectChan := make(chan error, 1)
	signal := func(err error) {
		select {
		case connectChan <- err:
		default:
		}
	}
	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("Connected to remote cache.", "sid", io.Id())
		signal(nil)
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		signal(connectError(errs...))
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return c, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}
}

// connectError turns the arguments of a connect_error event into an error.
func connectError(args ...any) error {
	if len(args) == 0 {
		return errors.New("connection refused without a reason")
	}
	if err, ok := args[0].(error); ok && err != nil {
		return err
	}
	return fmt.Errorf("%v", args[0])
}

func (c *Client) deliver(arg any) {
	var resp Response
	raw, err := json.Marshal(arg)
	if err != nil || json.Unmarshal(raw, &resp) != nil {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	delete(c.pending, resp.ID)
	c.mu.Unlock()
	if ok {
		ch <- resp
	}
}

func (c *Client) do(ctx context.Context, req Request) (Response, error) {
	req.ID = uuid.NewString()
	ch := make(chan Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Response{}, ErrClosed
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	c.io.Emit(EventRequest, req)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if resp.Status == StatusError {
			return resp, &ServerError{Message: resp.Error}
		}
		return resp, nil
	case <-timer.C:
		return Response{}, fmt.Errorf("%w: %s %s", ErrTimeout, req.Op, req.Key)
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Get fetches the value stored under key.
func (c *Client) Get(ctx context.Context, cycleID uuid.UUID, key string) ([]byte, bool, error) {
	resp, err := c.do(ctx, Request{Op: OpGet, Cycle: cycleID.String(), Key: key})
	if err != nil {
		return nil, false, err
	}
	if resp.Status == StatusNotFound {
		return nil, false, nil
	}
	data, err := decode(resp.Data)
	if err != nil {
		return nil, false, fmt.Errorf("invalid payload for %s: %w", key, err)
	}
	return data, true, nil
}

// Put stores data under key and waits for the acknowledgement.
func (c *Client) Put(ctx context.Context, cycleID uuid.UUID, key string, data []byte) error {
	_, err := c.do(ctx, Request{Op: OpPut, Cycle: cycleID.String(), Key: key, Data: encode(data)})
	return err
}

// Purge discards every value of the cycle on the server.
func (c *Client) Purge(ctx context.Context, cycleID uuid.UUID) error {
	_, err := c.do(ctx, Request{Op: OpPurge, Cycle: cycleID.String()})
	return err
}

// Close disconnects from the server. Pending requests time out.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.io.Disconnect()
}
