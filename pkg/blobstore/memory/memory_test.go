package memory

import (
	"Image_Repo_Server/pkg/blobstore"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewProvider()
	c := p.Container("newimages")

	require.NoError(t, c.Upload(ctx, "a.jpg", []byte("abc"), "image/jpeg"))
	data, err := c.Download(ctx, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	require.NoError(t, c.Rename(ctx, "a.jpg", "b.jpg"))
	_, err = c.Download(ctx, "a.jpg")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	names, err := c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.jpg"}, names)

	require.NoError(t, c.Delete(ctx, "b.jpg"))
	assert.ErrorIs(t, c.Delete(ctx, "b.jpg"), blobstore.ErrNotFound)
}

func TestContainersAreIsolated(t *testing.T) {
	ctx := context.Background()
	p := NewProvider()
	require.NoError(t, p.Container("a").Upload(ctx, "x", []byte("1"), ""))
	assert.False(t, p.Bucket("b").Has("x"))
	assert.True(t, p.Bucket("a").Has("x"))
}

func TestFailWith(t *testing.T) {
	boom := errors.New("boom")
	c := NewProvider().Bucket("a")
	c.FailWith(boom)
	_, err := c.Download(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, c.Downloads())
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/jpeg", blobstore.ContentType("IMG.JPEG"))
	assert.Equal(t, "image/webp", blobstore.ContentType("a.webp"))
	assert.Equal(t, "application/octet-stream", blobstore.ContentType("noext"))
}
