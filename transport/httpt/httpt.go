// Package httpt carries xpriso messages as HTTP POST requests. A MeshBase
// identified as http://host/path/ receives messages at http://host/path/xpriso.
package httpt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	metricsprom "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	middlewarestd "github.com/slok/go-http-metrics/middleware/std"
	"go.uber.org/zap"

	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/netmesh"
	"github.com/infogrid/netmesh/proxy"
)

const (
	// Path appended to the MeshBase identifier.
	Path = "xpriso"
	// EncodingHeader names the encoding of the request body.
	EncodingHeader = "X-Netmesh-Encoding"
	contentType    = "application/octet-stream"
)

var (
	// ErrNotHTTP is returned for identifiers without an http scheme.
	ErrNotHTTP = errors.New("not an http meshbase identifier")
	// ErrRejected is returned when the receiver did not accept the message.
	ErrRejected = errors.New("message rejected")
)

// Config of the http transport.
type Config struct {
	MessageSizeLimit int64         `mapstructure:"message-size-limit"`
	RequestTimeout   time.Duration `mapstructure:"request-timeout"`
	// MaxRetries and RetryDelay cover connection failures and 5xx responses.
	// Lost messages are retried by the proxies regardless.
	MaxRetries    int           `mapstructure:"max-retries"`
	RetryDelay    time.Duration `mapstructure:"retry-delay"`
	MaxRetryDelay time.Duration `mapstructure:"max-retry-delay"`
}

func DefaultConfig() Config {
	return Config{
		MessageSizeLimit: 16 << 20,
		RequestTimeout:   10 * time.Second,
		MaxRetries:       2,
		RetryDelay:       100 * time.Millisecond,
		MaxRetryDelay:    time.Second,
	}
}

// A wrapper around zap.Logger to make it compatible with
// retryablehttp.LeveledLogger interface.
type retryableHTTPLogger struct {
	inner *zap.Logger
}

func (r retryableHTTPLogger) Error(format string, args ...any) { r.inner.Sugar().Errorw(format, args...) }
func (r retryableHTTPLogger) Info(format string, args ...any)  { r.inner.Sugar().Infow(format, args...) }
func (r retryableHTTPLogger) Warn(format string, args ...any)  { r.inner.Sugar().Warnw(format, args...) }
func (r retryableHTTPLogger) Debug(format string, args ...any) { r.inner.Sugar().Debugw(format, args...) }

type Opt func(*Transport)

func WithLogger(logger *zap.Logger) Opt {
	return func(t *Transport) {
		t.logger = logger
		t.client.Logger = retryableHTTPLogger{inner: logger}
	}
}

func WithConfig(cfg Config) Opt {
	return func(t *Transport) {
		t.cfg = cfg
	}
}

// WithHTTPClient replaces the client used underneath the retries.
func WithHTTPClient(client *http.Client) Opt {
	return func(t *Transport) {
		t.client.HTTPClient = client
	}
}

// Transport posts messages to other MeshBases and serves the ones posted to it.
type Transport struct {
	logger *zap.Logger
	cfg    Config
	client *retryablehttp.Client

	mu      sync.Mutex
	handler proxy.Handler
}

var _ proxy.Transport = (*Transport)(nil)

func New(opts ...Opt) *Transport {
	t := &Transport{
		logger: zap.NewNop(),
		cfg:    DefaultConfig(),
		client: retryablehttp.NewClient(),
	}
	t.client.Logger = nil
	for _, opt := range opts {
		opt(t)
	}
	t.client.RetryMax = t.cfg.MaxRetries
	t.client.RetryWaitMin = t.cfg.RetryDelay
	t.client.RetryWaitMax = t.cfg.MaxRetryDelay
	t.client.HTTPClient.Timeout = t.cfg.RequestTimeout
	t.client.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
		t.logger.Debug("response received",
			zap.Stringer("url", resp.Request.URL),
			zap.Int("status", resp.StatusCode),
		)
	}
	return t
}

func (t *Transport) Name() string { return "http" }

func (t *Transport) SetHandler(h proxy.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Endpoint returns the URL messages for id are posted to.
func Endpoint(id types.NetMeshBaseIdentifier) (string, error) {
	if s := id.Scheme(); s != types.SchemeHTTP && s != types.SchemeHTTPS {
		return "", fmt.Errorf("%w: %s", ErrNotHTTP, id)
	}
	return url.JoinPath(id.String(), Path)
}

func (t *Transport) Send(ctx context.Context, to types.NetMeshBaseIdentifier, data []byte) error {
	endpoint, err := Endpoint(to)
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(EncodingHeader, netmesh.EncodingID)
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%w by %s: %s", ErrRejected, to, resp.Status)
	}
	return nil
}

// ServeHTTP accepts posted messages and hands them to the handler.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if enc := r.Header.Get(EncodingHeader); enc != "" && enc != netmesh.EncodingID {
		http.Error(w, "unsupported encoding "+enc, http.StatusUnsupportedMediaType)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, t.cfg.MessageSizeLimit))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h == nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	if err := h(r.Context(), data); err != nil {
		t.logger.Debug("handler rejected message", zap.String("remote", r.RemoteAddr), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Mux serves the transport under the path of self.
func (t *Transport) Mux(self types.NetMeshBaseIdentifier) (*http.ServeMux, error) {
	endpoint, err := Endpoint(self)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle(u.Path, t)
	return mux, nil
}

// recorder is shared by all handlers in the process, the collectors register
// only once.
var recorder = sync.OnceValue(func() middleware.Middleware {
	return middleware.New(middleware.Config{
		Recorder: metricsprom.NewRecorder(metricsprom.Config{Prefix: "netmesh"}),
	})
})

// Handler is Mux with request metrics.
func (t *Transport) Handler(self types.NetMeshBaseIdentifier) (http.Handler, error) {
	mux, err := t.Mux(self)
	if err != nil {
		return nil, err
	}
	return middlewarestd.Handler(Path, recorder(), mux), nil
}
