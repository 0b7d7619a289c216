package cache

import (
	"Image_Repo_Server/internal/models"
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTagFilters(t *testing.T) {
	images := []models.Image{
		img("RKey-a", "a", "tiger, cat", "1"),
		img("RKey-b", "b", "cat,,Dog ", "2"),
		img("RKey-c", "c", "", "3"),
	}
	got := ComputeTagFilters(images)
	require.Len(t, got, 3)

	assert.Equal(t, "cat", got[0].Tag)
	assert.Equal(t, 2, got[0].Count)
	assert.Equal(t, "Dog", got[1].Tag)
	assert.Equal(t, 1, got[1].Count)
	assert.Equal(t, "tiger", got[2].Tag)

	for i, f := range got {
		assert.Equal(t, TagColor(i), f.Color)
	}
}

func TestTagColor(t *testing.T) {
	hex := regexp.MustCompile(`^#[0-9a-f]{6}$`)
	for i := range 20 {
		assert.Regexp(t, hex, TagColor(i))
	}
	assert.Equal(t, "#2d9bd2", TagColor(0))
	assert.NotEqual(t, TagColor(0), TagColor(1))
	assert.Equal(t, TagColor(3), TagColor(3))
}

func TestColorsShiftWithCardinality(t *testing.T) {
	before := ComputeTagFilters([]models.Image{img("RKey-a", "a", "dog", "")})
	after := ComputeTagFilters([]models.Image{img("RKey-a", "a", "cat,dog", "")})
	assert.NotEqual(t, before[0].Color, after[1].Color)
}

func TestFilterIndexCachesAndRefreshes(t *testing.T) {
	table := seededTable(t, img("RKey-a", "a", "cat", "1"))
	c := newImageEntityCache(t, table, time.Minute)
	f := NewFilterIndex("YodaheaTable", c.store, time.Minute, c.Get)
	ctx := context.Background()

	got, err := f.Get(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = c.Get(ctx)
	require.NoError(t, err)
	require.NoError(t, c.ApplyInsert(img("RKey-b", "b", "dog", "2")))

	cached, err := f.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, cached, 1, "索引有自己的 TTL")

	fresh, err := f.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)

	f.Invalidate()
	again, err := f.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 2)
}

func TestFilterIndexRefreshesOnRebuild(t *testing.T) {
	table := seededTable(t, img("RKey-a", "a", "cat", "1"))
	c := newImageEntityCache(t, table, time.Minute)
	f := NewFilterIndex("YodaheaTable", c.store, time.Minute, c.Get)
	c.OnRebuild(f.RefreshFrom)
	ctx := context.Background()

	_, err := f.Get(ctx)
	require.NoError(t, err)
	table.Put(img("RKey-b", "b", "dog", "2"))
	_, err = c.Rebuild(ctx)
	require.NoError(t, err)

	got, err := f.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
