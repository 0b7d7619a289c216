// Package catalog 把实体缓存、派生视图和 blob 存储组合成对外的编目操作。
// 所有写操作都是先写存储，成功后再同步修补缓存。
package catalog

import (
	"Image_Repo_Server/config"
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/pkg/blobstore"
	"Image_Repo_Server/pkg/cache"
	"Image_Repo_Server/pkg/database"
	"Image_Repo_Server/pkg/query"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	auditPartition       = "audits"
	journalPartition     = "journal"
	compressionPartition = "compression"
)

// tableAliases 让旧的表名也能找到对应的逻辑表。
var tableAliases = map[string]models.TableName{
	"images":           models.TableImages,
	"masterfinal":      models.TableImages,
	"yodaheatable":     models.TableImages,
	"audits":           models.TableAudits,
	"journal":          models.TableJournal,
	"compression":      models.TableCompression,
	"compressiontable": models.TableCompression,
}

type cacheSettings struct {
	ttl     time.Duration
	metrics *cache.Metrics
}

// Options 是构造 Catalog 所需的全部协作者。
type Options struct {
	Config     *config.Config
	Store      database.Store
	Blobs      blobstore.Provider
	Compressor cache.Compressor
	// Registerer 为 nil 时指标不注册。
	Registerer prometheus.Registerer
}

type Catalog struct {
	cfg   *config.Config
	store database.Store

	cacheStore *cache.Store
	metrics    *cache.Metrics

	Images      *Variant[models.Image]
	Audits      *Variant[models.Audit]
	Journal     *Variant[models.JournalEntry]
	Compression *Variant[models.CompressionRecord]

	projection *cache.MapProjection
	filters    *cache.FilterIndex
	bytes      *cache.ImageCache

	originals  blobstore.Container
	compressed blobstore.Container
	deleted    blobstore.Container
	journal    blobstore.Container

	now func() time.Time
}

func New(opts Options) *Catalog {
	cfg := opts.Config
	metrics := cache.NewMetrics(opts.Registerer)
	cs := cache.NewStore(cfg.Cache.CleanupInterval)
	entity := cacheSettings{ttl: cfg.Cache.EntityTTL, metrics: metrics}

	c := &Catalog{
		cfg:        cfg,
		store:      opts.Store,
		cacheStore: cs,
		metrics:    metrics,
		projection: cache.NewMapProjection(),
		originals:  opts.Blobs.Container(cfg.Blob.Containers.Images),
		compressed: opts.Blobs.Container(cfg.Blob.Containers.Compressed),
		deleted:    opts.Blobs.Container(cfg.Blob.Containers.Deleted),
		journal:    opts.Blobs.Container(cfg.Blob.Containers.Journal),
		now:        time.Now,
	}
	c.Images = newVariant(models.TableImages, cfg.Catalog.PartitionKey, opts.Store.Images(), cs, entity)
	c.Audits = newVariant(models.TableAudits, auditPartition, opts.Store.Audits(), cs, entity)
	c.Journal = newVariant(models.TableJournal, journalPartition, opts.Store.Journal(), cs, entity)
	c.Compression = newVariant(models.TableCompression, compressionPartition, opts.Store.Compression(), cs, entity)

	c.filters = cache.NewFilterIndex(string(models.TableImages), cs, cfg.Cache.FilterTTL, c.Images.Get)
	c.bytes = cache.NewImageCache(cache.ImageCacheOptions{
		Originals:  c.originals,
		Compressed: c.compressed,
		Compressor: opts.Compressor,
		TTL:        cfg.Cache.ImageTTL,
		Size:       cfg.Cache.ImageCacheSize,
		Metrics:    metrics,
	})

	// 派生视图跟随主图片表
	c.Images.OnChange(c.projection.Rebuild)
	c.Images.OnRebuild(c.filters.RefreshFrom)
	c.bytes.OnCompressed(func(blobPath string, size int) {
		c.recordCompression(context.Background(), blobPath, size)
	})
	return c
}

// Close 释放所有缓存。
func (c *Catalog) Close() {
	c.bytes.Purge()
	c.projection.Reset()
	c.cacheStore.Teardown()
}

// InvalidateAll 清空所有缓存，下一次读取从存储重新加载。
func (c *Catalog) InvalidateAll() {
	c.cacheStore.Invalidate()
	c.bytes.Purge()
	c.projection.Reset()
}

func (c *Catalog) Tables() []Table {
	return []Table{c.Images, c.Audits, c.Journal, c.Compression}
}

// Table 按名称（大小写无关，支持旧表名）返回逻辑表。
func (c *Catalog) Table(name string) (Table, error) {
	kind, ok := tableAliases[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: 表 %q", ErrNotFound, name)
	}
	for _, t := range c.Tables() {
		if t.Kind() == kind {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: 表 %q", ErrNotFound, name)
}

// CacheSummary 返回每张表的缓存状态。
func (c *Catalog) CacheSummary() []cache.Summary {
	out := make([]cache.Summary, 0, 4)
	for _, t := range c.Tables() {
		out = append(out, t.Summary())
	}
	return out
}

func (c *Catalog) images(ctx context.Context) ([]models.Image, error) {
	images, err := c.Images.Get(ctx)
	if err != nil {
		return nil, storeErr("读取图片表", err)
	}
	return images, nil
}

// List 返回分页后的图片视图。Limit <= 0 时使用默认值。
func (c *Catalog) List(ctx context.Context, opts query.ViewOptions) (query.Page, error) {
	images, err := c.images(ctx)
	if err != nil {
		return query.Page{}, err
	}
	if opts.Limit <= 0 {
		opts.Limit = c.cfg.Catalog.DefaultLimit
	}
	return query.View(images, opts), nil
}

func (c *Catalog) Search(ctx context.Context, q string, mode query.SearchMode) ([]models.Image, error) {
	images, err := c.images(ctx)
	if err != nil {
		return nil, err
	}
	return query.Search(images, q, mode), nil
}

// ExtendedSearch 分别返回名称匹配和标签匹配，各自最多 SearchLimit 条。
func (c *Catalog) ExtendedSearch(ctx context.Context, q string) (query.ExtendedResult, error) {
	images, err := c.images(ctx)
	if err != nil {
		return query.ExtendedResult{}, err
	}
	filters, err := c.Filters(ctx)
	if err != nil {
		return query.ExtendedResult{}, err
	}
	return query.ExtendedSearch(images, filters, q, c.cfg.Catalog.SearchLimit), nil
}

func (c *Catalog) Filters(ctx context.Context) ([]models.TagFilter, error) {
	filters, err := c.filters.Get(ctx)
	if err != nil {
		return nil, storeErr("读取标签索引", err)
	}
	return filters, nil
}

func (c *Catalog) RefreshFilters(ctx context.Context) ([]models.TagFilter, error) {
	filters, err := c.filters.Refresh(ctx)
	if err != nil {
		return nil, storeErr("刷新标签索引", err)
	}
	return filters, nil
}

// GetByName 返回名称完全相同的所有图片。
func (c *Catalog) GetByName(ctx context.Context, imageName string) ([]models.Image, error) {
	images, err := c.images(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Image
	for _, img := range images {
		if img.ImageName == imageName {
			out = append(out, img)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: 图片 %q", ErrNotFound, imageName)
	}
	return out, nil
}

// findByName 返回名称对应的第一个实体（按缓存顺序）。
func (c *Catalog) findByName(ctx context.Context, imageName string) (models.Image, error) {
	img, ok, err := c.Images.FindFirst(ctx, func(i models.Image) bool { return i.ImageName == imageName })
	if err != nil {
		return models.Image{}, storeErr("读取图片表", err)
	}
	if !ok {
		return models.Image{}, fmt.Errorf("%w: 图片 %q", ErrNotFound, imageName)
	}
	return img, nil
}

// Counts 返回 (总数, 无日期数)。
func (c *Catalog) Counts(ctx context.Context) (int, int, error) {
	images, err := c.images(ctx)
	if err != nil {
		return 0, 0, err
	}
	return len(images), len(query.Unmatched(images)), nil
}

// Lookup 通过名称投影查找 blob 路径，不触发重建。
func (c *Catalog) Lookup(imageName string) (models.MapEntry, bool) {
	return c.projection.Lookup(imageName)
}
