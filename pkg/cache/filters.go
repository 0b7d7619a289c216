package cache

import (
	"Image_Repo_Server/internal/models"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	colorStartHue = 200.0
	colorHueStep  = 37.0
	colorSat      = 0.65
	colorLight    = 0.50
)

// ComputeTagFilters 统计所有实体的标签出现次数，按标签名排序后按位置分配颜色。
// 颜色只取决于排序后的位置，标签集合变化时其他标签的颜色也会跟着移动。
func ComputeTagFilters(images []models.Image) []models.TagFilter {
	counts := make(map[string]int)
	for _, img := range images {
		for _, tag := range models.SplitTags(img.Tags) {
			counts[tag]++
		}
	}
	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	slices.SortFunc(tags, compareTags)

	out := make([]models.TagFilter, len(tags))
	for i, tag := range tags {
		out[i] = models.TagFilter{Tag: tag, Count: counts[tag], Color: TagColor(i)}
	}
	return out
}

// compareTags 先按小写比较，相同时再按原文比较，保证顺序是全序。
func compareTags(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// TagColor 返回排序位置 i 的颜色，形如 #rrggbb。
func TagColor(i int) string {
	hue := math.Mod(colorStartHue+float64(i)*colorHueStep, 360)
	r, g, b := hslToRGB(hue, colorSat, colorLight)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2
	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	to8 := func(v float64) uint8 { return uint8(math.Round((v + m) * 255)) }
	return to8(r), to8(g), to8(b)
}

// FilterIndex 缓存一张表的标签索引，有独立的 TTL 和手动刷新入口。
type FilterIndex struct {
	name   string
	store  *Store
	ttl    time.Duration
	source func(ctx context.Context) ([]models.Image, error)
	group  singleflight.Group
}

// NewFilterIndex 的 source 通常是图片表 EntityCache 的 Get。
func NewFilterIndex(name string, store *Store, ttl time.Duration, source func(ctx context.Context) ([]models.Image, error)) *FilterIndex {
	return &FilterIndex{name: name, store: store, ttl: ttl, source: source}
}

func (f *FilterIndex) key() string { return "filters:" + f.name }

// Get 返回缓存的标签索引，未命中时从 source 计算。
func (f *FilterIndex) Get(ctx context.Context) ([]models.TagFilter, error) {
	if v, ok := f.store.Get(f.key()); ok {
		return slices.Clone(v.([]models.TagFilter)), nil
	}
	v, err, _ := f.group.Do(f.key(), func() (any, error) {
		return f.compute(ctx)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]models.TagFilter)), nil
}

// Refresh 丢弃缓存并立即重算。
func (f *FilterIndex) Refresh(ctx context.Context) ([]models.TagFilter, error) {
	filters, err := f.compute(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(filters), nil
}

// RefreshFrom 用已经在手的实体重算，不做 I/O；可以注册为 EntityCache.OnRebuild 回调。
func (f *FilterIndex) RefreshFrom(images []models.Image) {
	f.store.Set(f.key(), ComputeTagFilters(images), f.ttl)
}

func (f *FilterIndex) Invalidate() {
	f.store.Invalidate(f.key())
}

func (f *FilterIndex) compute(ctx context.Context) ([]models.TagFilter, error) {
	images, err := f.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("计算 %s 的标签索引失败: %w", f.name, err)
	}
	filters := ComputeTagFilters(images)
	f.store.Set(f.key(), filters, f.ttl)
	slog.Debug("标签索引已重算", "table", f.name, "tags", len(filters))
	return filters, nil
}
