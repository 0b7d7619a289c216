package query

import (
	"Image_Repo_Server/internal/models"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
)

// SearchMode 选择搜索实现。
type SearchMode string

const (
	ModeSubstring SearchMode = "substring"
	ModeIndexed   SearchMode = "indexed"
)

func ParseSearchMode(s string) SearchMode {
	if strings.EqualFold(s, string(ModeIndexed)) {
		return ModeIndexed
	}
	return ModeSubstring
}

// SubstringSearch 在名称或任意一个标签中做大小写无关的子串匹配。
// 结果按 rowKey 去重，按名称升序、rowKey 升序排列。
func SubstringSearch(images []models.Image, q string) []models.Image {
	out := matchSubstring(images, q)
	sortByName(out)
	return out
}

func matchSubstring(images []models.Image, q string) []models.Image {
	needle := strings.ToLower(strings.TrimSpace(q))
	seen := make(map[string]struct{}, len(images))
	out := make([]models.Image, 0)
	for _, img := range images {
		if _, dup := seen[img.RowKey]; dup {
			continue
		}
		if matchesSubstring(img, needle) {
			seen[img.RowKey] = struct{}{}
			out = append(out, img)
		}
	}
	return out
}

func matchesSubstring(img models.Image, needle string) bool {
	if strings.Contains(strings.ToLower(img.ImageName), needle) {
		return true
	}
	for _, t := range models.SplitTags(img.Tags) {
		if strings.Contains(strings.ToLower(t), needle) {
			return true
		}
	}
	return false
}

func sortByName(images []models.Image) {
	slices.SortStableFunc(images, func(a, b models.Image) int {
		if c := strings.Compare(a.ImageName, b.ImageName); c != 0 {
			return c
		}
		return strings.Compare(a.RowKey, b.RowKey)
	})
}

// Fold 把文本转成 ASCII 小写，用于建立和查询倒排索引。
func Fold(s string) string {
	return strings.ToLower(strings.TrimSpace(unidecode.Unidecode(s)))
}

// Index 是名称和标签上的临时倒排索引：词项 -> rowKey 集合。
type Index struct {
	terms  map[string][]int
	images []models.Image
}

// BuildIndex 为每张图片登记完整名称、完整标签以及它们拆出的单词。
func BuildIndex(images []models.Image) *Index {
	idx := &Index{terms: make(map[string][]int), images: images}
	for i, img := range images {
		seen := make(map[string]struct{})
		add := func(term string) {
			if term == "" {
				return
			}
			if _, ok := seen[term]; ok {
				return
			}
			seen[term] = struct{}{}
			idx.terms[term] = append(idx.terms[term], i)
		}
		fields := append([]string{img.ImageName}, models.SplitTags(img.Tags)...)
		for _, f := range fields {
			folded := Fold(f)
			add(folded)
			for _, w := range strings.FieldsFunc(folded, isSeparator) {
				add(w)
			}
		}
	}
	return idx
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// Terms 返回索引中的词项数量。
func (idx *Index) Terms() int { return len(idx.terms) }

// Search 支持 * 通配符；不含 * 的查询按 *q* 处理。空查询没有结果。
func (idx *Index) Search(q string) []models.Image {
	pattern := wildcardPattern(Fold(q))
	if pattern == nil {
		return []models.Image{}
	}
	hits := make(map[int]struct{})
	for term, positions := range idx.terms {
		if !pattern.MatchString(term) {
			continue
		}
		for _, p := range positions {
			hits[p] = struct{}{}
		}
	}
	out := make([]models.Image, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for p := range hits {
		img := idx.images[p]
		if _, dup := seen[img.RowKey]; dup {
			continue
		}
		seen[img.RowKey] = struct{}{}
		out = append(out, img)
	}
	sortByName(out)
	return out
}

func wildcardPattern(q string) *regexp.Regexp {
	if strings.Trim(q, "*") == "" {
		return nil
	}
	if !strings.Contains(q, "*") {
		q = "*" + q + "*"
	}
	parts := strings.Split(q, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}

// IndexedSearch 建立临时索引并查询。
func IndexedSearch(images []models.Image, q string) []models.Image {
	return BuildIndex(images).Search(q)
}

// Search 按模式分派。
func Search(images []models.Image, q string, mode SearchMode) []models.Image {
	if mode == ModeIndexed {
		return IndexedSearch(images, q)
	}
	return SubstringSearch(images, q)
}

// ExtendedResult 分别给出名称匹配和标签匹配，各自截断到上限。
type ExtendedResult struct {
	Images []models.Image     `json:"images"`
	Tags   []models.TagFilter `json:"tags"`
}

// ExtendedSearch 的名称匹配只看图片名；标签匹配来自标签索引而不是原始实体。
func ExtendedSearch(images []models.Image, filters []models.TagFilter, q string, limit int) ExtendedResult {
	needle := strings.ToLower(strings.TrimSpace(q))
	names := make([]models.Image, 0)
	for _, img := range images {
		if strings.Contains(strings.ToLower(img.ImageName), needle) {
			names = append(names, img)
		}
	}
	sortByName(names)

	tags := make([]models.TagFilter, 0)
	for _, f := range filters {
		if strings.Contains(strings.ToLower(f.Tag), needle) {
			tags = append(tags, f)
		}
	}
	return ExtendedResult{
		Images: Paginate(names, 0, limit),
		Tags:   Paginate(tags, 0, limit),
	}
}
