package memory

import (
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/pkg/database"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func image(rowKey, name string) models.Image {
	return models.Image{
		Keys:      models.Keys{PartitionKey: "p", RowKey: rowKey},
		ImageName: name,
	}
}

func TestUpdateChecksETag(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable[models.Image]()
	stored := tbl.Put(image("RKey-a", "a"))
	require.NotEmpty(t, stored.ETag)

	fresh := stored
	fresh.ImageName = "first"
	updated, err := tbl.Update(ctx, fresh)
	require.NoError(t, err)
	assert.NotEqual(t, stored.ETag, updated.ETag)

	stale := stored
	stale.ImageName = "second"
	_, err = tbl.Update(ctx, stale)
	assert.ErrorIs(t, err, database.ErrETagMismatch)

	got, err := tbl.Get(ctx, "p", "RKey-a")
	require.NoError(t, err)
	assert.Equal(t, "first", got.ImageName)
}

func TestUpdateWithoutETagOverwrites(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable[models.Image]()
	tbl.Put(image("RKey-a", "a"))

	_, err := tbl.Update(ctx, image("RKey-a", "b"))
	require.NoError(t, err)
	got, err := tbl.Get(ctx, "p", "RKey-a")
	require.NoError(t, err)
	assert.Equal(t, "b", got.ImageName)

	_, err = tbl.Update(ctx, image("RKey-missing", "x"))
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestCreateRejectsDuplicateKey(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable[models.Image]()
	_, err := tbl.Create(ctx, image("RKey-a", "a"))
	require.NoError(t, err)
	_, err = tbl.Create(ctx, image("RKey-a", "a"))
	assert.ErrorIs(t, err, database.ErrDuplicateKey)
}
