package catalog

import (
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/pkg/blobstore"
	"Image_Repo_Server/pkg/cache"
	"Image_Repo_Server/pkg/logger"
	"context"
	"errors"
	"fmt"
)

// resolve 通过名称投影找到 blob 路径。投影里没有时先整表重建再查一次，
// 重建后仍然没有才返回 ErrNotFound。
func (c *Catalog) resolve(ctx context.Context, imageName string) (models.MapEntry, error) {
	if _, err := c.Images.Len(ctx); err != nil {
		return models.MapEntry{}, storeErr("读取图片表", err)
	}
	if entry, ok := c.projection.Lookup(imageName); ok {
		return entry, nil
	}
	logger.FromContext(ctx).Info("名称投影未命中，重建图片缓存", "name", imageName)
	if _, err := c.Images.Rebuild(ctx); err != nil {
		return models.MapEntry{}, storeErr("重建图片缓存", err)
	}
	if entry, ok := c.projection.Lookup(imageName); ok {
		return entry, nil
	}
	return models.MapEntry{}, fmt.Errorf("%w: 图片 %q", ErrNotFound, imageName)
}

// ServeOriginal 返回原图字节和 MIME 类型。
func (c *Catalog) ServeOriginal(ctx context.Context, imageName string) ([]byte, string, error) {
	entry, err := c.resolve(ctx, imageName)
	if err != nil {
		return nil, "", err
	}
	data, err := c.bytes.GetOriginal(ctx, entry.BlobPath)
	if err != nil {
		return nil, "", storeErr("读取原图", err)
	}
	return data, blobstore.ContentType(entry.BlobPath), nil
}

// ServeCompressed 返回压缩图字节。压缩失败时返回的错误满足 errors.Is(err, cache.ErrCompression)，
// 调用方可以回退到原图。
func (c *Catalog) ServeCompressed(ctx context.Context, imageName string) ([]byte, error) {
	entry, err := c.resolve(ctx, imageName)
	if err != nil {
		return nil, err
	}
	data, err := c.bytes.GetCompressed(ctx, entry.BlobPath)
	if err != nil {
		if errors.Is(err, cache.ErrCompression) {
			return nil, err
		}
		return nil, storeErr("读取压缩图", err)
	}
	return data, nil
}

// DefaultImage 返回找不到图片时使用的占位图。
func (c *Catalog) DefaultImage(ctx context.Context) ([]byte, string, error) {
	name := c.cfg.Catalog.DefaultImage
	data, err := c.deleted.Download(ctx, name)
	if err != nil {
		return nil, "", storeErr("读取默认图片", err)
	}
	return data, blobstore.ContentType(name), nil
}

// ImageCacheLen 返回两级字节缓存的条目数 (原图, 压缩图)。
func (c *Catalog) ImageCacheLen() (int, int) {
	return c.bytes.Len()
}
