package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"Image_Repo_Server/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "info", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "verbose", wantErr: true},
	}
	for _, tt := range tests {
		lv := new(slog.LevelVar)
		err := setLogLevel(tt.in, lv)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, lv.Level(), tt.in)
	}
}

func TestInitLoggerRejectsBadLevel(t *testing.T) {
	prev := config.C
	t.Cleanup(func() { config.C = prev })

	config.C = config.Default()
	config.C.Logger.Level = "loud"
	assert.Error(t, InitLogger())
}

func TestCtxWithLoggerAttachesAttrs(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := CtxWithLogger(context.Background(), slog.String("requestId", "abc"))
	FromContext(ctx).Info("hello")

	assert.Contains(t, buf.String(), "requestId=abc")
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}
