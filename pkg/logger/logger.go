package logger

import (
	"Image_Repo_Server/config"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
)

type ctxKey struct{}

// InitLogger 根据 config.yaml 中的配置初始化一个全局的 slog 日志记录器。
func InitLogger() error {
	var logHandler slog.Handler

	logLevel := new(slog.LevelVar)
	if err := setLogLevel(config.C.Logger.Level, logLevel); err != nil {
		return err
	}

	handlerOpts := &slog.HandlerOptions{
		Level: logLevel,
	}

	// 根据配置选择日志格式 (text 或 json)
	if config.C.Logger.Format == "json" {
		logHandler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, handlerOpts)
	}

	slog.SetDefault(slog.New(logHandler))
	return nil
}

// setLogLevel 将字符串形式的日志级别转换为 slog.Level 类型
func setLogLevel(levelStr string, levelVar *slog.LevelVar) error {
	switch levelStr {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "info":
		levelVar.Set(slog.LevelInfo)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		return errors.New("无效的日志级别: " + levelStr)
	}
	return nil
}

// CtxWithLogger 将一个带有特定字段（例如请求ID）的 logger 附加到 context 中。
func CtxWithLogger(ctx context.Context, attrs ...slog.Attr) context.Context {
	base := FromContext(ctx)
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	return context.WithValue(ctx, ctxKey{}, base.With(args...))
}

// FromContext 取出 context 中的 logger，没有则返回默认 logger。
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}

// Discard 返回一个丢弃所有日志的 logger，主要用于测试。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
