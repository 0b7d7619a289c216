package query

import (
	"Image_Repo_Server/internal/models"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func img(rowKey, name, tags, date string) models.Image {
	return models.Image{
		Keys:      models.Keys{PartitionKey: "masterFinal", RowKey: rowKey},
		ImageName: name,
		Tags:      tags,
		DateTaken: date,
	}
}

var tagPool = []string{"cat", "dog", "tiger", "beach", "snow", "Family"}

// randomImages 生成确定性的随机数据集，包含有日期、无日期和格式错误的日期。
func randomImages(seed uint64, n int) []models.Image {
	r := rand.New(rand.NewPCG(seed, seed^0x9e37))
	out := make([]models.Image, n)
	for i := range out {
		var tags []string
		for range r.IntN(4) {
			tags = append(tags, tagPool[r.IntN(len(tagPool))])
		}
		date := strconv.FormatInt(1_600_000_000_000+r.Int64N(100_000_000_000), 10)
		switch r.IntN(6) {
		case 0:
			date = models.NoDate
		case 1:
			date = ""
		case 2:
			date = "garbage"
		}
		out[i] = img(fmt.Sprintf("RKey-%04d", i), fmt.Sprintf("img-%d", r.IntN(n)), strings.Join(tags, ", "), date)
	}
	return out
}

func rowKeys(images []models.Image) []string {
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img.RowKey
	}
	return out
}

func TestIsUnmatched(t *testing.T) {
	assert.True(t, IsUnmatched(img("a", "", "", models.NoDate)))
	assert.True(t, IsUnmatched(img("a", "", "", "")))
	assert.True(t, IsUnmatched(img("a", "", "", "12abc")))
	assert.False(t, IsUnmatched(img("a", "", "", "1716350400000")))
	assert.False(t, IsUnmatched(img("a", "", "", "17")))
}

func TestSortByDate(t *testing.T) {
	images := []models.Image{
		img("RKey-c", "c", "", models.NoDate),
		img("RKey-b", "b", "", "200"),
		img("RKey-a", "a", "", "100"),
		img("RKey-d", "d", "", ""),
		img("RKey-e", "e", "", "300"),
	}
	assert.Equal(t, []string{"RKey-a", "RKey-b", "RKey-e", "RKey-c", "RKey-d"}, rowKeys(SortByDate(images, OldestFirst)))
	assert.Equal(t, []string{"RKey-e", "RKey-b", "RKey-a", "RKey-c", "RKey-d"}, rowKeys(SortByDate(images, NewestFirst)))
	assert.Equal(t, "RKey-c", images[0].RowKey, "输入不应被修改")
}

func TestParseOrder(t *testing.T) {
	assert.Equal(t, NewestFirst, ParseOrder("Newest"))
	assert.Equal(t, OldestFirst, ParseOrder(""))
	assert.Equal(t, OldestFirst, ParseOrder("sideways"))
}

func TestTagFilterORSemantics(t *testing.T) {
	for seed := range uint64(20) {
		images := randomImages(seed, 60)
		want := []string{tagPool[seed%uint64(len(tagPool))], " snow "}
		got := FilterTags(images, want)

		set := map[string]struct{}{tagPool[seed%uint64(len(tagPool))]: {}, "snow": {}}
		kept := make(map[string]bool, len(got))
		for _, g := range got {
			kept[g.RowKey] = true
		}
		for _, e := range images {
			hit := false
			for _, tag := range models.SplitTags(e.Tags) {
				if _, ok := set[tag]; ok {
					hit = true
				}
			}
			assert.Equal(t, hit, kept[e.RowKey], "seed %d rowKey %s", seed, e.RowKey)
		}
	}
}

func TestFilterTagsEmptyKeepsAll(t *testing.T) {
	images := randomImages(1, 10)
	assert.Equal(t, images, FilterTags(images, nil))
	assert.Equal(t, images, FilterTags(images, []string{" ", ""}))
}

func TestDatePartitionCompleteness(t *testing.T) {
	for seed := range uint64(20) {
		images := randomImages(seed, 80)
		r := DateRange{Start: 1_620_000_000_000, End: 1_650_000_000_000}
		in, out := PartitionDateRange(images, r)
		assert.Equal(t, len(images), len(in)+len(out))

		seen := map[string]int{}
		for _, e := range in {
			seen[e.RowKey]++
			assert.True(t, r.Contains(e))
		}
		for _, e := range out {
			seen[e.RowKey]++
			assert.False(t, r.Contains(e))
		}
		for _, e := range images {
			assert.Equal(t, 1, seen[e.RowKey])
		}
	}
}

func TestDateRangeInclusiveAndInactive(t *testing.T) {
	images := []models.Image{
		img("RKey-a", "a", "", "100"),
		img("RKey-b", "b", "", "200"),
		img("RKey-c", "c", "", "300"),
		img("RKey-d", "d", "", models.NoDate),
	}
	assert.Equal(t, []string{"RKey-a", "RKey-b"}, rowKeys(FilterDateRange(images, DateRange{Start: 100, End: 200})))
	assert.Len(t, FilterDateRange(images, DateRange{Start: 0, End: 200}), 4)
	assert.Len(t, FilterDateRange(images, DateRange{Start: 100}), 4)
}

func TestPaginationBoundary(t *testing.T) {
	for n := range 12 {
		items := make([]int, n)
		for i := range items {
			items[i] = i
		}
		for start := -2; start <= n+3; start++ {
			for limit := -1; limit <= n+2; limit++ {
				got := Paginate(items, start, limit)
				s := max(start, 0)
				want := min(max(limit, 0), max(0, n-s))
				require.Len(t, got, want, "n=%d start=%d limit=%d", n, start, limit)
				for i, v := range got {
					assert.Equal(t, s+i, v)
				}
			}
		}
	}
}

func TestViewScenarioNoDate(t *testing.T) {
	images := []models.Image{
		img("RKey-IMG_01", "IMG_01", "cat,tiger", models.NoDate),
		img("RKey-IMG_02", "IMG_02", "dog", "1716350400000"),
	}
	unmatched := View(images, ViewOptions{Limit: 50, Unmatched: true})
	assert.Equal(t, []string{"RKey-IMG_01"}, rowKeys(unmatched.Items))

	ranged := View(images, ViewOptions{Limit: 50, Range: DateRange{Start: 1, End: 1_800_000_000_000}})
	assert.Equal(t, []string{"RKey-IMG_02"}, rowKeys(ranged.Items))

	all := View(images, ViewOptions{Limit: 50})
	assert.Equal(t, []string{"RKey-IMG_02", "RKey-IMG_01"}, rowKeys(all.Items))
	assert.Equal(t, 2, all.Total)
}

func TestViewCombinesAxes(t *testing.T) {
	images := randomImages(7, 100)
	page := View(images, ViewOptions{Start: 2, Limit: 5, Order: NewestFirst, Tags: []string{"cat"}, Search: "img"})
	full := SortByDate(FilterTags(images, []string{"cat"}), NewestFirst)
	assert.Equal(t, len(full), page.Total)
	assert.Equal(t, rowKeys(Paginate(full, 2, 5)), rowKeys(page.Items))
}
