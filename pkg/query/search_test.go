package query

import (
	"Image_Repo_Server/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstringSearch(t *testing.T) {
	images := []models.Image{
		img("RKey-3", "Zebra", "stripes", ""),
		img("RKey-1", "Tiger", "cat, orange", ""),
		img("RKey-2", "house", "Big Cat", ""),
		img("RKey-0", "Tiger", "", ""),
		img("RKey-1", "Tiger", "cat, orange", ""),
	}
	got := SubstringSearch(images, "CAT")
	assert.Equal(t, []string{"RKey-1", "RKey-2"}, rowKeys(got))

	got = SubstringSearch(images, "tig")
	assert.Equal(t, []string{"RKey-0", "RKey-1"}, rowKeys(got))

	assert.Empty(t, SubstringSearch(images, "nothing"))
}

func TestSearchDeterminism(t *testing.T) {
	images := randomImages(3, 200)
	first := SubstringSearch(images, "img-1")
	for range 5 {
		assert.Equal(t, first, SubstringSearch(images, "img-1"))
	}
	firstIdx := IndexedSearch(images, "img-1*")
	for range 5 {
		assert.Equal(t, firstIdx, IndexedSearch(images, "img-1*"))
	}
}

func TestIndexedSearch(t *testing.T) {
	images := []models.Image{
		img("RKey-1", "Café du Monde", "food, new-orleans", ""),
		img("RKey-2", "Tiger", "cat", ""),
		img("RKey-3", "", "", ""),
		{Keys: models.Keys{RowKey: "RKey-4"}},
	}
	idx := BuildIndex(images)
	assert.Greater(t, idx.Terms(), 0)

	assert.Equal(t, []string{"RKey-1"}, rowKeys(idx.Search("cafe")))
	assert.Equal(t, []string{"RKey-1"}, rowKeys(idx.Search("orleans")))
	assert.Equal(t, []string{"RKey-2"}, rowKeys(idx.Search("ti*")))
	assert.Empty(t, idx.Search("*ger*x"))
	assert.Equal(t, []string{"RKey-2"}, rowKeys(idx.Search("t*r")))
	assert.Empty(t, idx.Search(""))
	assert.Empty(t, idx.Search("**"))
	assert.Empty(t, idx.Search("t.ger"), "元字符按字面处理")
}

func TestSearchModeDispatch(t *testing.T) {
	images := []models.Image{img("RKey-1", "Café", "", "")}
	assert.Empty(t, Search(images, "cafe", ModeSubstring))
	assert.Len(t, Search(images, "cafe", ModeIndexed), 1)
	assert.Equal(t, ModeIndexed, ParseSearchMode("INDEXED"))
	assert.Equal(t, ModeSubstring, ParseSearchMode("whatever"))
}

func TestExtendedSearchCaps(t *testing.T) {
	images := make([]models.Image, 0, 50)
	filters := make([]models.TagFilter, 0, 50)
	for i := range 50 {
		images = append(images, img("RKey-"+string(rune('A'+i%26))+string(rune('a'+i/26)), "sun"+string(rune('a'+i%26)), "", ""))
		filters = append(filters, models.TagFilter{Tag: "sunset" + string(rune('a'+i%26)) + string(rune('a'+i/26)), Count: 1})
	}
	res := ExtendedSearch(images, filters, "SUN", 30)
	assert.Len(t, res.Images, 30)
	assert.Len(t, res.Tags, 30)

	res = ExtendedSearch(images, filters, "sunset", 30)
	assert.Empty(t, res.Images)
	assert.Len(t, res.Tags, 30)
}
