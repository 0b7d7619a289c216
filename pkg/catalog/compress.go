package catalog

import (
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/pkg/cache"
	"Image_Repo_Server/pkg/logger"
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// CompressReport 汇总一次压缩补齐的结果。
type CompressReport struct {
	Total      int `json:"total"`
	Compressed int `json:"compressed"`
	Failed     int `json:"failed"`
}

func compressionRowKey(blobPath string) string {
	return models.RowKeyPrefix + cache.CompressedName(blobPath)
}

// recordCompression 写入或更新一条压缩记录。失败只记录日志。
func (c *Catalog) recordCompression(ctx context.Context, blobPath string, size int) {
	log := logger.FromContext(ctx)
	rec := models.CompressionRecord{
		Keys:           models.Keys{PartitionKey: c.Compression.PartitionKey(), RowKey: compressionRowKey(blobPath)},
		Name:           cache.CompressedName(blobPath),
		LastCompressed: c.now().UTC().Format(time.RFC3339),
		SizeOfImage:    size,
	}
	stored, err := c.Compression.store.Create(ctx, rec)
	if err == nil {
		c.Compression.reconcile(ctx, "insert", func() error { return c.Compression.ApplyInsert(stored) })
		return
	}
	if !errors.Is(storeErr("", err), ErrDuplicate) {
		log.Warn("写入压缩记录失败", "blob", blobPath, "error", err)
		return
	}
	stored, err = c.Compression.store.Update(ctx, rec)
	if err != nil {
		log.Warn("更新压缩记录失败", "blob", blobPath, "error", err)
		return
	}
	c.Compression.reconcile(ctx, "update", func() error { return c.Compression.ApplyUpdate(stored) })
}

// PendingCompression 返回还没有压缩记录的图片。
func (c *Catalog) PendingCompression(ctx context.Context) ([]models.Image, error) {
	images, err := c.images(ctx)
	if err != nil {
		return nil, err
	}
	records, err := c.Compression.Get(ctx)
	if err != nil {
		return nil, storeErr("读取压缩记录", err)
	}
	done := make(map[string]struct{}, len(records))
	for _, r := range records {
		done[r.RowKey] = struct{}{}
	}
	var pending []models.Image
	for _, img := range images {
		if _, ok := done[compressionRowKey(img.ImagePath)]; !ok {
			pending = append(pending, img)
		}
	}
	return pending, nil
}

// CompressMissing 为所有缺少压缩记录的图片生成压缩图。progress 在每张图片处理完后调用，可以为 nil。
// 单张图片失败不会中断整批。
func (c *Catalog) CompressMissing(ctx context.Context, progress func(done, total int)) (CompressReport, error) {
	pending, err := c.PendingCompression(ctx)
	if err != nil {
		return CompressReport{}, err
	}
	log := logger.FromContext(ctx)
	report := CompressReport{Total: len(pending)}
	log.Info("开始补齐压缩图", "pending", len(pending))

	var done, compressed, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for _, img := range pending {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			data, err := c.bytes.GetCompressed(gctx, img.ImagePath)
			if err != nil {
				failed.Add(1)
				log.Warn("压缩失败", "blob", img.ImagePath, "error", err)
			} else {
				compressed.Add(1)
				c.recordCompression(gctx, img.ImagePath, len(data))
			}
			n := done.Add(1)
			if progress != nil {
				progress(int(n), len(pending))
			}
			return nil
		})
	}
	err = g.Wait()
	report.Compressed = int(compressed.Load())
	report.Failed = int(failed.Load())
	log.Info("压缩图补齐结束", "compressed", report.Compressed, "failed", report.Failed)
	return report, err
}
