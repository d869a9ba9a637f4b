package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := logWriter
	logWriter = &buf
	t.Cleanup(func() { logWriter = prev })
	return &buf
}

func TestModuleLevel(t *testing.T) {
	buf := captureOutput(t)
	root, err := New("node", zap.NewAtomicLevelAt(zapcore.DebugLevel), JSONEncoding)
	require.NoError(t, err)

	lvl := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	proxy := Module(root, "proxy", lvl)

	proxy.Debug("hidden")
	require.Empty(t, buf.String())
	proxy.Info("shown")
	require.Contains(t, buf.String(), `"logger":"node.proxy"`)
	require.Contains(t, buf.String(), "shown")

	buf.Reset()
	lvl.SetLevel(zapcore.DebugLevel)
	proxy.With(zap.String("k", "v")).Debug("now visible")
	require.Contains(t, buf.String(), "now visible")
	require.Contains(t, buf.String(), `"k":"v"`)

	buf.Reset()
	root.Debug("root debug")
	require.Contains(t, buf.String(), "root debug")
}

func TestUnknownEncoding(t *testing.T) {
	_, err := New("node", zap.NewAtomicLevel(), "xml")
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	require.Equal(t, zapcore.WarnLevel, lvl.Level())
	_, err = ParseLevel("loud")
	require.Error(t, err)
}

func TestRequestID(t *testing.T) {
	buf := captureOutput(t)
	logger, err := New("node", zap.NewAtomicLevelAt(zapcore.InfoLevel), JSONEncoding)
	require.NoError(t, err)

	ctx := context.Background()
	_, ok := ExtractRequestID(ctx)
	require.False(t, ok)
	logger.Info("plain", ZContext(ctx))
	require.Contains(t, buf.String(), "plain")
	require.NotContains(t, buf.String(), `"request"`)

	ctx = WithRequestID(ctx, "abc", zap.Uint64("message", 7))
	id, ok := ExtractRequestID(ctx)
	require.True(t, ok)
	require.Equal(t, "abc", id)
	buf.Reset()
	logger.Info("with request", ZContext(ctx))
	require.Contains(t, buf.String(), `"request":{"id":"abc","message":7}`)

	a, _ := ExtractRequestID(WithNewRequestID(context.Background()))
	b, _ := ExtractRequestID(WithNewRequestID(context.Background()))
	require.NotEqual(t, a, b)
}
