package cache

import (
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/pkg/blobstore"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	tierOriginal   = "original"
	tierCompressed = "compressed"
)

// Compressor 把原图字节转换为压缩后的字节。同样的输入必须得到同样的输出。
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// CompressorFunc 让普通函数满足 Compressor。
type CompressorFunc func(data []byte) ([]byte, error)

func (f CompressorFunc) Compress(data []byte) ([]byte, error) { return f(data) }

// ImageCacheOptions 配置两级字节缓存。
type ImageCacheOptions struct {
	Originals  blobstore.Container
	Compressed blobstore.Container
	Compressor Compressor
	TTL        time.Duration
	// Size 是每一级的最大条目数，0 表示不限。
	Size    int
	Metrics *Metrics
}

// ImageCache 是原图和压缩图两级独立的字节缓存，键是去掉扩展名的 blob 路径。
// 返回的切片由缓存共享，调用方不能修改。
type ImageCache struct {
	originals  *expirable.LRU[string, []byte]
	compressed *expirable.LRU[string, []byte]

	origStore  blobstore.Container
	compStore  blobstore.Container
	compressor Compressor
	metrics    *Metrics
	group      singleflight.Group

	mu           sync.RWMutex
	onCompressed []func(blobPath string, size int)
}

func NewImageCache(opts ImageCacheOptions) *ImageCache {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	return &ImageCache{
		originals:  expirable.NewLRU[string, []byte](opts.Size, nil, opts.TTL),
		compressed: expirable.NewLRU[string, []byte](opts.Size, nil, opts.TTL),
		origStore:  opts.Originals,
		compStore:  opts.Compressed,
		compressor: opts.Compressor,
		metrics:    opts.Metrics,
	}
}

// OnCompressed 注册一个回调，每次按需压缩并写入缓存后调用（上传压缩图失败也会调用）。
func (c *ImageCache) OnCompressed(fn func(blobPath string, size int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCompressed = append(c.onCompressed, fn)
}

// CompressedName 是压缩图在压缩容器中的名称。
func CompressedName(blobPath string) string {
	return models.StripExt(blobPath)
}

// GetOriginal 返回原图字节，未命中时从 blob 存储下载。
func (c *ImageCache) GetOriginal(ctx context.Context, blobPath string) ([]byte, error) {
	key := models.StripExt(blobPath)
	if data, ok := c.originals.Get(key); ok {
		c.metrics.ImageHits.WithLabelValues(tierOriginal).Inc()
		return data, nil
	}
	c.metrics.ImageMisses.WithLabelValues(tierOriginal).Inc()

	v, err, _ := c.group.Do(tierOriginal+":"+key, func() (any, error) {
		data, err := c.origStore.Download(ctx, blobPath)
		if err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				return nil, fmt.Errorf("%w: 原图 %s", ErrNotFound, blobPath)
			}
			return nil, err
		}
		c.originals.Add(key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// GetCompressed 返回压缩图字节。
// 顺序：压缩缓存 -> 压缩容器 -> 原图 + 压缩 + 回写压缩容器。
// 原图也不存在时返回 ErrNotFound，压缩失败时返回 ErrCompression。
func (c *ImageCache) GetCompressed(ctx context.Context, blobPath string) ([]byte, error) {
	key := CompressedName(blobPath)
	if data, ok := c.compressed.Get(key); ok {
		c.metrics.ImageHits.WithLabelValues(tierCompressed).Inc()
		return data, nil
	}
	c.metrics.ImageMisses.WithLabelValues(tierCompressed).Inc()

	v, err, _ := c.group.Do(tierCompressed+":"+key, func() (any, error) {
		if data, ok := c.compressed.Get(key); ok {
			return data, nil
		}
		data, err := c.compStore.Download(ctx, key)
		if err == nil {
			c.compressed.Add(key, data)
			return data, nil
		}
		if !errors.Is(err, blobstore.ErrNotFound) {
			return nil, err
		}
		return c.compressAndStore(ctx, blobPath, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *ImageCache) compressAndStore(ctx context.Context, blobPath, key string) ([]byte, error) {
	original, err := c.GetOriginal(ctx, blobPath)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := c.compressor.Compress(original)
	if err != nil {
		c.metrics.CompressFails.Inc()
		slog.Warn("按需压缩失败", "blob", blobPath, "error", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrCompression, blobPath, err)
	}
	c.metrics.Compressions.Inc()
	slog.Info("按需压缩完成", "blob", blobPath, "from", len(original), "to", len(out), "duration", time.Since(start))

	if err := c.compStore.Upload(ctx, key, out, "image/webp"); err != nil {
		slog.Warn("压缩图回写失败，仅保留在缓存中", "blob", key, "error", err)
	}
	c.compressed.Add(key, out)

	c.mu.RLock()
	hooks := c.onCompressed
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn(blobPath, len(out))
	}
	return out, nil
}

// Evict 从两级缓存中移除一张图片。
func (c *ImageCache) Evict(blobPath string) {
	key := models.StripExt(blobPath)
	c.originals.Remove(key)
	c.compressed.Remove(key)
}

// Purge 清空两级缓存。
func (c *ImageCache) Purge() {
	c.originals.Purge()
	c.compressed.Purge()
}

// Len 返回 (原图条目数, 压缩图条目数)。
func (c *ImageCache) Len() (int, int) {
	return c.originals.Len(), c.compressed.Len()
}
