package httpt

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/log/logtest"
)

func newServer(tb testing.TB, path string) (*Transport, types.NetMeshBaseIdentifier) {
	tb.Helper()
	srv := New(WithLogger(logtest.New(tb)))
	var id types.NetMeshBaseIdentifier
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux, err := srv.Mux(id)
		require.NoError(tb, err)
		mux.ServeHTTP(w, r)
	}))
	tb.Cleanup(ts.Close)
	id = types.MustFromExternalForm(ts.URL + path)
	return srv, id
}

func TestEndpoint(t *testing.T) {
	for id, want := range map[string]string{
		"http://example.com/":      "http://example.com/xpriso",
		"https://example.com/mesh": "https://example.com/mesh/xpriso",
		"http://example.com:8080/": "http://example.com:8080/xpriso",
	} {
		got, err := Endpoint(types.MustFromExternalForm(id))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := Endpoint(types.MustFromExternalForm("mem:a"))
	require.ErrorIs(t, err, ErrNotHTTP)
}

func TestSendReceive(t *testing.T) {
	srv, id := newServer(t, "/mesh/")
	got := make(chan []byte, 1)
	srv.SetHandler(func(_ context.Context, data []byte) error {
		got <- data
		return nil
	})

	client := New(WithLogger(logtest.New(t)))
	require.Equal(t, "http", client.Name())
	require.NoError(t, client.Send(context.Background(), id, []byte("hello")))
	select {
	case data := <-got:
		require.Equal(t, []byte("hello"), data)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "message not delivered")
	}
}

func TestRejected(t *testing.T) {
	srv, id := newServer(t, "/")
	srv.SetHandler(func(context.Context, []byte) error { return errors.New("invalid") })

	client := New()
	err := client.Send(context.Background(), id, []byte("hello"))
	require.ErrorIs(t, err, ErrRejected)

	err = client.Send(context.Background(), types.MustFromExternalForm("mem:b"), []byte("hello"))
	require.ErrorIs(t, err, ErrNotHTTP)
}

func TestServeHTTP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MessageSizeLimit = 4
	tr := New(WithConfig(cfg))

	rec := httptest.NewRecorder()
	tr.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/xpriso", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	tr.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/xpriso", bytes.NewReader([]byte("ok"))))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	tr.SetHandler(func(context.Context, []byte) error { return nil })
	rec = httptest.NewRecorder()
	tr.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/xpriso", bytes.NewReader([]byte("too large"))))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/xpriso", bytes.NewReader([]byte("ok")))
	req.Header.Set(EncodingHeader, "json")
	rec = httptest.NewRecorder()
	tr.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = httptest.NewRecorder()
	tr.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/xpriso", bytes.NewReader([]byte("ok"))))
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandlerRecordsRequests(t *testing.T) {
	tr := New(WithLogger(logtest.New(t)))
	tr.SetHandler(func(context.Context, []byte) error { return nil })
	h, err := tr.Handler(types.MustFromExternalForm("http://example.com/mesh/"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mesh/xpriso", bytes.NewReader([]byte("ok"))))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/xpriso", bytes.NewReader([]byte("ok"))))
	require.Equal(t, http.StatusNotFound, rec.Code)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "netmesh_http_request_duration_seconds" {
			found = true
		}
	}
	require.True(t, found)

	_, err = tr.Handler(types.MustFromExternalForm("mem:a"))
	require.ErrorIs(t, err, ErrNotHTTP)
}
