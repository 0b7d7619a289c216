package cache

import (
	"Image_Repo_Server/internal/models"
	"sync"
	"time"
)

// BuildMap 从图片实体推导出 名称 -> {blob 路径, 拍摄时间} 的映射。
// 多个实体同名时 rowKey 最小的胜出，结果与输入顺序无关。
func BuildMap(images []models.Image) map[string]models.MapEntry {
	out := make(map[string]models.MapEntry, len(images))
	for _, img := range images {
		if img.ImageName == "" {
			continue
		}
		if prev, ok := out[img.ImageName]; ok && prev.RowKey <= img.RowKey {
			continue
		}
		out[img.ImageName] = models.MapEntry{
			RowKey:     img.RowKey,
			BlobPath:   img.ImagePath,
			CapturedAt: img.DateTaken,
		}
	}
	return out
}

// MapProjection 保存最近一次 BuildMap 的结果。
// 每次实体缓存变化都整体重算，不做增量修补，因为一次更新可能改掉名称本身。
type MapProjection struct {
	mu      sync.RWMutex
	entries map[string]models.MapEntry
	builtAt time.Time
}

func NewMapProjection() *MapProjection {
	return &MapProjection{entries: map[string]models.MapEntry{}}
}

// Rebuild 的签名可以直接注册为 EntityCache.OnChange 回调。
func (p *MapProjection) Rebuild(images []models.Image) {
	m := BuildMap(images)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = m
	p.builtAt = time.Now()
}

func (p *MapProjection) Lookup(imageName string) (models.MapEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[imageName]
	return e, ok
}

// Warm 表示投影至少构建过一次。
func (p *MapProjection) Warm() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.builtAt.IsZero()
}

func (p *MapProjection) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

func (p *MapProjection) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = map[string]models.MapEntry{}
	p.builtAt = time.Time{}
}
