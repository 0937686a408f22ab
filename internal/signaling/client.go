package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/1ureka/pongnet/internal/protocol"
	"github.com/1ureka/pongnet/internal/util"
)

const (
	// DefaultPollInterval is the fixed delay between relay polls.
	DefaultPollInterval = 5 * time.Second

	// DefaultRequestTimeout bounds a single relay request.
	DefaultRequestTimeout = 10 * time.Second
)

// Options configures an HTTPTransport. Zero values select the defaults.
type Options struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
	Logger         *util.Logger
}

// HTTPTransport implements Transport against the relay's HTTP contract.
// It holds no session state apart from the set of running candidate
// listeners, so one instance may serve several sessions.
type HTTPTransport struct {
	client       *resty.Client
	pollInterval time.Duration
	log          *util.Logger

	mu        sync.Mutex
	listeners map[string]*listener
}

// listener is one running candidate poll.
type listener struct {
	ctx context.Context
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport returns a transport for the relay at baseURL.
func NewHTTPTransport(baseURL string, opts Options) *HTTPTransport {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = util.NewLogger("component", "signaling")
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(opts.RequestTimeout).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{opts.Logger})

	return &HTTPTransport{
		client:       client,
		pollInterval: opts.PollInterval,
		log:          opts.Logger,
		listeners:    make(map[string]*listener),
	}
}

// envelope is implemented by every relay response body.
type envelope interface {
	Failure() (string, bool)
}

// do performs one relay request. name is the peer the request refers to:
// sent in the peerName header for GETs and used in error reports.
func (t *HTTPTransport) do(ctx context.Context, op, method, path, name string, body any, result envelope) error {
	req := t.client.R().
		SetContext(ctx).
		SetResult(result)
	if body != nil {
		req.SetBody(body)
	} else {
		req.SetHeader(protocol.HeaderPeerName, name)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if resp != nil && resp.RawResponse != nil {
			// Answered, but not with an envelope.
			return &RelayError{Op: op, Status: resp.StatusCode(), Message: err.Error()}
		}
		return &NetworkError{Op: op, Err: err}
	}

	if resp.IsError() || resp.StatusCode() >= 300 {
		msg, explicit := rejection(resp.Body())
		if msg == "" {
			msg = resp.Status()
		}
		return classify(op, method, name, resp.StatusCode(), msg, explicit)
	}
	if msg, failed := result.Failure(); failed {
		_, explicit := rejection(resp.Body())
		return classify(op, method, name, resp.StatusCode(), msg, explicit)
	}
	return nil
}

// rejection reads a relay error envelope. explicit is false unless body is
// JSON carrying success:false.
func rejection(body []byte) (msg string, explicit bool) {
	var st struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &st) != nil || st.Success == nil || *st.Success {
		return "", false
	}
	return st.Error, true
}

func (t *HTTPTransport) post(ctx context.Context, op string, msg protocol.PostRequest, result *protocol.PostResponse) error {
	return t.do(ctx, op, resty.MethodPost, protocol.PathPost, msg.PeerName, msg, result)
}

func (t *HTTPTransport) get(ctx context.Context, op, path, name string, result envelope) error {
	return t.do(ctx, op, resty.MethodGet, path, name, nil, result)
}

// wait blocks for one poll interval. It returns false once ctx is done.
func wait(ctx context.Context, ticker *time.Ticker) bool {
	select {
	case <-ctx.Done():
		return false
	case <-ticker.C:
		return true
	}
}

// restyLogger routes resty's internal warnings through the session logger.
type restyLogger struct{ l *util.Logger }

func (r restyLogger) Errorf(format string, v ...any) { r.l.Error(format, v...) }
func (r restyLogger) Warnf(format string, v ...any)  { r.l.Warn(format, v...) }
func (r restyLogger) Debugf(format string, v ...any) { r.l.Debug(format, v...) }

func (t *HTTPTransport) String() string {
	return fmt.Sprintf("relay(%s)", t.client.BaseURL)
}
