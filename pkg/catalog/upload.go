package catalog

import (
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/pkg/blobstore"
	"Image_Repo_Server/pkg/cache"
	"Image_Repo_Server/pkg/hasher"
	"Image_Repo_Server/pkg/logger"
	"Image_Repo_Server/pkg/thumbnailer"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const blobListKey = "blobs:images"

// UploadFile 是一个待上传的文件及其可选的元数据。
type UploadFile struct {
	Name string
	Data []byte
	Meta *models.UploadMeta
}

// AttachMeta 按 imagePath == 文件名 把元数据挂到对应的文件上，没有元数据的文件使用默认值。
func AttachMeta(files []UploadFile, metas []models.UploadMeta) {
	byPath := make(map[string]models.UploadMeta, len(metas))
	for _, m := range metas {
		byPath[m.ImagePath] = m
	}
	for i := range files {
		if m, ok := byPath[files[i].Name]; ok {
			files[i].Meta = &m
		}
	}
}

// Upload 为每个文件创建一个实体。单个文件失败（包括重复）不会中断整批。
// 顺序：查重（缓存和存储） -> 创建实体 -> 上传原图 -> 修补缓存 -> 审计。
func (c *Catalog) Upload(ctx context.Context, files []UploadFile, uploader string) []ItemResult {
	results := make([]ItemResult, 0, len(files))
	for _, f := range files {
		_, err := c.uploadOne(ctx, f, uploader)
		results = append(results, itemResult(f.Name, err))
	}
	if len(files) > 0 {
		c.cacheStore.Invalidate(blobListKey)
	}
	return results
}

func (c *Catalog) uploadOne(ctx context.Context, f UploadFile, uploader string) (models.Image, error) {
	log := logger.FromContext(ctx)
	if strings.TrimSpace(f.Name) == "" || len(f.Data) == 0 {
		return models.Image{}, fmt.Errorf("%w: 文件名或内容为空", ErrInvalid)
	}
	rowKey := models.ImageRowKey(f.Name)
	if _, err := c.Images.Find(ctx, rowKey); err == nil {
		log.Warn("跳过重复上传", "file", f.Name, "rowKey", rowKey)
		return models.Image{}, fmt.Errorf("%w: %s", ErrDuplicate, rowKey)
	} else if !errors.Is(err, cache.ErrNotFound) {
		return models.Image{}, storeErr("查重", err)
	}
	// 缓存可能落后于存储，写入前再查一次存储
	existing, err := c.Images.store.Get(ctx, c.Images.PartitionKey(), rowKey)
	if err != nil {
		return models.Image{}, storeErr("查重", err)
	}
	if existing != nil {
		log.Warn("跳过重复上传（缓存未包含）", "file", f.Name, "rowKey", rowKey)
		return models.Image{}, fmt.Errorf("%w: %s", ErrDuplicate, rowKey)
	}

	img := c.newImage(f, rowKey, uploader)
	if decoded, _, err := thumbnailer.Decode(f.Data); err == nil {
		fp := hasher.FingerprintBytes(f.Data, decoded)
		img.FileHash, img.PerceptualHash = fp.SHA256, fp.PHash
	} else {
		log.Warn("无法解码上传的图片，只计算内容哈希", "file", f.Name, "error", err)
		img.FileHash = hasher.CalculateSHA256FromBytes(f.Data)
	}

	// 先创建实体再上传原图：实体创建失败时存储保持不变
	stored, err := c.Images.store.Create(ctx, img)
	if err != nil {
		log.Error("创建图片实体失败", "file", f.Name, "error", err)
		return models.Image{}, storeErr("创建图片", err)
	}
	if err := c.originals.Upload(ctx, f.Name, f.Data, blobstore.ContentType(f.Name)); err != nil {
		log.Error("上传原图失败，回滚实体", "file", f.Name, "error", err)
		if derr := c.Images.store.Delete(ctx, stored.PartitionKey, stored.RowKey); derr != nil {
			log.Error("回滚图片实体失败", "rowKey", rowKey, "error", derr)
		}
		return models.Image{}, storeErr("上传原图", err)
	}
	c.Images.reconcile(ctx, "insert", func() error { return c.Images.ApplyInsert(stored) })
	c.writeAudit(ctx, c.newAudit(models.AuditUpload, img.Uploader, stored, c.now()))
	log.Info("图片已上传", "file", f.Name, "rowKey", rowKey, "size", len(f.Data))
	return models.StripStoreMeta(stored), nil
}

func (c *Catalog) newImage(f UploadFile, rowKey, uploader string) models.Image {
	var meta models.UploadMeta
	if f.Meta != nil {
		meta = *f.Meta
	}
	img := models.Image{
		Keys:        models.Keys{PartitionKey: c.Images.PartitionKey(), RowKey: rowKey},
		ImageName:   meta.ImageName,
		Description: meta.Description,
		Notes:       meta.Notes,
		Tags:        models.NormalizeTags([]string{meta.Tags}),
		Uploader:    firstNonEmpty(meta.Uploader, uploader, models.NoUser),
		ApprovedBy:  models.Unapproved,
		DateTaken:   firstNonEmpty(strings.TrimSpace(meta.DateTaken), models.NoDate),
		FileType:    firstNonEmpty(meta.FileType, fileExt(f.Name)),
		ImagePath:   f.Name,
	}
	if img.ImageName == "" {
		img.ImageName = models.StripExt(f.Name)
	}
	return img
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func fileExt(name string) string {
	if i := strings.Index(name, "."); i >= 0 {
		return name[i+1:]
	}
	return ""
}

// blobList 返回原图容器的 blob 名称列表，结果按 BlobListTTL 缓存。
func (c *Catalog) blobList(ctx context.Context) ([]string, error) {
	return cache.Remember(c.cacheStore, blobListKey, c.cfg.Cache.BlobListTTL, func() ([]string, error) {
		return c.originals.List(ctx)
	})
}

var suffixPattern = regexp.MustCompile(`^(.*) \((\d+)\)$`)

// SuggestNames 为每个候选文件名给出一个不会和已有 blob 冲突的名称：
// 已有 n 个同名（忽略大小写和扩展名，包括 "name (k)" 形式）时返回 "name (n).ext"。
// 同一批里前面的建议名也计入。
func (c *Catalog) SuggestNames(ctx context.Context, names []string) ([]string, error) {
	blobs, err := c.blobList(ctx)
	if err != nil {
		return nil, storeErr("列出原图", err)
	}
	counts := make(map[string]int, len(blobs))
	for _, b := range blobs {
		counts[baseKey(b)]++
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		base, ext := models.StripExt(name), fileExt(name)
		key := strings.ToLower(base)
		suggested := name
		if n := counts[key]; n > 0 {
			suggested = fmt.Sprintf("%s (%d)", base, n)
			if ext != "" {
				suggested += "." + ext
			}
		}
		counts[key]++
		out = append(out, suggested)
	}
	return out, nil
}

// baseKey 去掉扩展名和 " (k)" 后缀，转为小写。
func baseKey(name string) string {
	base := models.StripExt(name)
	if m := suffixPattern.FindStringSubmatch(base); m != nil {
		base = m[1]
	}
	return strings.ToLower(base)
}
