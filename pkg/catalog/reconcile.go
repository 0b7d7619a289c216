package catalog

import (
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/pkg/blobstore"
	"Image_Repo_Server/pkg/cache"
	"Image_Repo_Server/pkg/logger"
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// 批量修改支持的字段。
const (
	BulkTags      = "tags"
	BulkDateTaken = "dateTaken"
)

// ItemResult 是批量操作中单个条目的结果。
type ItemResult struct {
	Key   string `json:"key"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	err   error
}

// Err 返回条目的原始错误，成功时为 nil。
func (r ItemResult) Err() error { return r.err }

func itemResult(key string, err error) ItemResult {
	if err != nil {
		return ItemResult{Key: key, Error: err.Error(), err: err}
	}
	return ItemResult{Key: key, OK: true}
}

// Update 把白名单中的字段合并到缓存中的旧实体上，写入存储后再修补缓存。
// 更新不会隐式创建实体；存储失败时缓存保持不变。
func (c *Catalog) Update(ctx context.Context, edit models.ImageEdit, actor string) (models.Image, error) {
	if edit.RowKey == "" {
		return models.Image{}, fmt.Errorf("%w: 缺少 rowKey", ErrInvalid)
	}
	return c.mutate(ctx, edit.RowKey, actor, edit.ApplyTo)
}

// mutate 是所有单实体修改共用的流程：查缓存 -> 计算新实体 -> 写存储 -> 修补缓存 -> 审计。
func (c *Catalog) mutate(ctx context.Context, rowKey, actor string, change func(models.Image) models.Image) (models.Image, error) {
	old, err := c.Images.Find(ctx, rowKey)
	if err != nil {
		return models.Image{}, storeErr("查找图片", err)
	}
	updated := change(old)
	// 键由旧实体决定，change 不能改动它们
	updated.Keys = old.Keys

	stored, err := c.Images.store.Update(ctx, updated)
	if err != nil {
		logger.FromContext(ctx).Error("更新图片失败", "rowKey", rowKey, "error", err)
		return models.Image{}, storeErr("更新图片", err)
	}
	c.Images.reconcile(ctx, "update", func() error { return c.Images.ApplyUpdate(stored) })
	c.auditUpdate(ctx, actor, old, stored)
	return models.StripStoreMeta(stored), nil
}

// BulkUpdate 对多张图片修改同一个字段。tags 追加到已有标签后去重，dateTaken 直接覆盖。
// 单个条目失败不影响其它条目。
func (c *Catalog) BulkUpdate(ctx context.Context, field string, rowKeys []string, value string, actor string) ([]ItemResult, error) {
	var change func(models.Image) models.Image
	switch field {
	case BulkTags:
		change = func(old models.Image) models.Image {
			old.Tags = models.NormalizeTags([]string{old.Tags, value})
			return old
		}
	case BulkDateTaken:
		if strings.TrimSpace(value) == "" {
			value = models.NoDate
		}
		change = func(old models.Image) models.Image {
			old.DateTaken = value
			return old
		}
	default:
		return nil, fmt.Errorf("%w: 不支持批量修改字段 %q", ErrInvalid, field)
	}

	results := make([]ItemResult, len(rowKeys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for i, rowKey := range rowKeys {
		g.Go(func() error {
			_, err := c.mutate(gctx, rowKey, actor, change)
			results[i] = itemResult(rowKey, err)
			return nil
		})
	}
	_ = g.Wait()
	logger.FromContext(ctx).Info("批量修改完成", "field", field, "count", len(rowKeys))
	return results, nil
}

// Rename 修改图片的显示名称，rowKey 保持不变。新名称已被其它图片使用时返回 ErrDuplicate。
func (c *Catalog) Rename(ctx context.Context, oldName, newName, actor string) (models.Image, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return models.Image{}, fmt.Errorf("%w: 新名称为空", ErrInvalid)
	}
	img, err := c.findByName(ctx, oldName)
	if err != nil {
		return models.Image{}, err
	}
	if newName == oldName {
		return img, nil
	}
	if _, err := c.findByName(ctx, newName); err == nil {
		return models.Image{}, fmt.Errorf("%w: 名称 %q", ErrDuplicate, newName)
	} else if !errors.Is(err, ErrNotFound) {
		return models.Image{}, err
	}
	return c.mutate(ctx, img.RowKey, actor, func(old models.Image) models.Image {
		old.ImageName = newName
		return old
	})
}

// Approve 设置审核人，这是唯一能修改 approvedBy 的操作。
func (c *Catalog) Approve(ctx context.Context, imageName, user string) (models.Image, error) {
	if strings.TrimSpace(user) == "" {
		return models.Image{}, fmt.Errorf("%w: 缺少审核人", ErrInvalid)
	}
	img, err := c.findByName(ctx, imageName)
	if err != nil {
		return models.Image{}, err
	}
	return c.mutate(ctx, img.RowKey, user, func(old models.Image) models.Image {
		old.ApprovedBy = user
		return old
	})
}

// Unapproved 返回尚未审核的图片。
func (c *Catalog) Unapproved(ctx context.Context) ([]models.Image, error) {
	images, err := c.images(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Image
	for _, img := range images {
		if img.ApprovedBy == models.Unapproved {
			out = append(out, img)
		}
	}
	return out, nil
}

// Delete 删除一张图片：归档原图、删除实体、修补缓存、删除 blob、写审计。
// 只有删除实体失败会返回错误，归档和 blob 删除都是尽力而为。
func (c *Catalog) Delete(ctx context.Context, imageName, actor string) error {
	log := logger.FromContext(ctx)
	img, err := c.findByName(ctx, imageName)
	if err != nil {
		return err
	}
	audit := c.newAudit(models.AuditDelete, actor, img, c.now())

	if data, err := c.originals.Download(ctx, img.ImagePath); err != nil {
		log.Warn("归档原图失败：下载失败", "blob", img.ImagePath, "error", err)
	} else if err := c.deleted.Upload(ctx, audit.RowKey, data, blobstore.ContentType(img.ImagePath)); err != nil {
		log.Warn("归档原图失败：上传失败", "blob", img.ImagePath, "error", err)
	}

	if err := c.Images.store.Delete(ctx, img.PartitionKey, img.RowKey); err != nil {
		log.Error("删除图片失败", "rowKey", img.RowKey, "error", err)
		return storeErr("删除图片", err)
	}
	c.Images.reconcile(ctx, "delete", func() error { return c.Images.ApplyDelete(img.RowKey) })

	c.deleteBlob(ctx, c.originals, img.ImagePath)
	c.deleteBlob(ctx, c.compressed, cache.CompressedName(img.ImagePath))
	c.bytes.Evict(img.ImagePath)
	c.cacheStore.Invalidate(blobListKey)

	c.writeAudit(ctx, audit)
	log.Info("图片已删除", "name", imageName, "rowKey", img.RowKey)
	return nil
}

func (c *Catalog) deleteBlob(ctx context.Context, container blobstore.Container, name string) {
	if err := container.Delete(ctx, name); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		logger.FromContext(ctx).Warn("删除 blob 失败", "container", container.Name(), "blob", name, "error", err)
	}
}

func (c *Catalog) workers() int {
	if c.cfg.Task.WorkerCount > 0 {
		return c.cfg.Task.WorkerCount
	}
	return 1
}
