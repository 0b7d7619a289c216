// Package query 实现对实体快照的只读视图：排序、分页、日期范围、标签过滤和搜索。
// 所有函数都不修改传入的切片。
package query

import (
	"Image_Repo_Server/internal/models"
	"slices"
	"strconv"
	"strings"
)

// Order 是按拍摄时间排序的方向。
type Order string

const (
	OldestFirst Order = "oldest"
	NewestFirst Order = "newest"
)

// ParseOrder 把空值和未知值都当作 OldestFirst。
func ParseOrder(s string) Order {
	if strings.EqualFold(s, string(NewestFirst)) {
		return NewestFirst
	}
	return OldestFirst
}

// CapturedAt 解析拍摄时间（Unix 毫秒）。空值、"No Date" 和非数字都返回 false。
func CapturedAt(img models.Image) (int64, bool) {
	s := strings.TrimSpace(img.DateTaken)
	if s == "" || s == models.NoDate {
		return 0, false
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// IsUnmatched 表示图片没有有效的拍摄时间。
func IsUnmatched(img models.Image) bool {
	_, ok := CapturedAt(img)
	return !ok
}

// Unmatched 只保留没有有效拍摄时间的图片，保持原有顺序。
func Unmatched(images []models.Image) []models.Image {
	out := make([]models.Image, 0)
	for _, img := range images {
		if IsUnmatched(img) {
			out = append(out, img)
		}
	}
	return out
}

// SortByDate 按拍摄时间排序，没有日期的图片按 rowKey 排在最后。
func SortByDate(images []models.Image, order Order) []models.Image {
	dated := make([]models.Image, 0, len(images))
	undated := make([]models.Image, 0)
	for _, img := range images {
		if IsUnmatched(img) {
			undated = append(undated, img)
		} else {
			dated = append(dated, img)
		}
	}
	slices.SortStableFunc(dated, func(a, b models.Image) int {
		ta, _ := CapturedAt(a)
		tb, _ := CapturedAt(b)
		c := compareInt(ta, tb)
		if order == NewestFirst {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.RowKey, b.RowKey)
	})
	slices.SortStableFunc(undated, func(a, b models.Image) int {
		return strings.Compare(a.RowKey, b.RowKey)
	})
	return append(dated, undated...)
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// DateRange 是闭区间 [Start, End]，单位 Unix 毫秒。任一端为 0 时不生效。
type DateRange struct {
	Start int64
	End   int64
}

func (r DateRange) Active() bool {
	return r.Start != 0 && r.End != 0
}

func (r DateRange) Contains(img models.Image) bool {
	ms, ok := CapturedAt(img)
	return ok && ms >= r.Start && ms <= r.End
}

// PartitionDateRange 把图片分成区间内和区间外两部分，两者不重叠且并集是全集。
// 区间未生效时全部算作区间内。
func PartitionDateRange(images []models.Image, r DateRange) (in, out []models.Image) {
	in = make([]models.Image, 0, len(images))
	out = make([]models.Image, 0)
	for _, img := range images {
		if !r.Active() || r.Contains(img) {
			in = append(in, img)
		} else {
			out = append(out, img)
		}
	}
	return in, out
}

func FilterDateRange(images []models.Image, r DateRange) []models.Image {
	in, _ := PartitionDateRange(images, r)
	return in
}

// FilterTags 保留至少包含一个给定标签的图片（OR 语义）。tags 为空时不过滤。
func FilterTags(images []models.Image, tags []string) []models.Image {
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			want[t] = struct{}{}
		}
	}
	if len(want) == 0 {
		return slices.Clone(images)
	}
	out := make([]models.Image, 0)
	for _, img := range images {
		if HasAnyTag(img, want) {
			out = append(out, img)
		}
	}
	return out
}

func HasAnyTag(img models.Image, want map[string]struct{}) bool {
	for _, t := range models.SplitTags(img.Tags) {
		if _, ok := want[t]; ok {
			return true
		}
	}
	return false
}

// Paginate 返回 [start, start+limit) 的切片，越界时返回空切片。
func Paginate[T any](items []T, start, limit int) []T {
	if start < 0 {
		start = 0
	}
	if limit <= 0 || start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) || end < start {
		end = len(items)
	}
	return slices.Clone(items[start:end])
}

// ViewOptions 组合了列表视图的所有维度。
type ViewOptions struct {
	Start     int
	Limit     int
	Order     Order
	Unmatched bool
	Tags      []string
	Search    string
	Range     DateRange
}

// Page 是一页结果，Total 是分页前的总数。
type Page struct {
	Items []models.Image `json:"items"`
	Total int            `json:"total"`
	Start int            `json:"start"`
	Limit int            `json:"limit"`
}

// View 依次应用：日期范围 -> 标签 -> 搜索 -> 无日期/排序 -> 分页。
func View(images []models.Image, opts ViewOptions) Page {
	items := FilterDateRange(images, opts.Range)
	items = FilterTags(items, opts.Tags)
	if q := strings.TrimSpace(opts.Search); q != "" {
		items = matchSubstring(items, q)
	}
	if opts.Unmatched {
		items = SortByDate(Unmatched(items), opts.Order)
	} else {
		items = SortByDate(items, opts.Order)
	}
	return Page{
		Items: Paginate(items, opts.Start, opts.Limit),
		Total: len(items),
		Start: opts.Start,
		Limit: opts.Limit,
	}
}
