package blobstore

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound 表示容器中没有这个 blob。
var ErrNotFound = errors.New("blob 不存在")

// Container 是一个按名称寻址的 blob 容器。
type Container interface {
	Name() string
	Download(ctx context.Context, name string) ([]byte, error)
	Upload(ctx context.Context, name string, data []byte, contentType string) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
	Rename(ctx context.Context, oldName, newName string) error
}

// Provider 按名称打开容器。
type Provider interface {
	Container(name string) Container
}

// ContentType 根据扩展名猜测 MIME 类型，未知时返回 application/octet-stream。
func ContentType(name string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(name), ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
