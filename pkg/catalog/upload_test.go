package catalog

import (
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/pkg/query"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for x := range 16 {
		img.Set(x, x, color.NRGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestUploadWithoutDateIsUnmatched(t *testing.T) {
	f := newFixture(t)
	f.seed(t, photo("dated", "", "1500000000000"))
	ctx := context.Background()

	files := []UploadFile{{Name: "IMG_01.JPEG", Data: []byte("jpeg bytes")}}
	AttachMeta(files, []models.UploadMeta{{ImagePath: "IMG_01.JPEG", Tags: "cat,tiger"}})
	results := f.cat.Upload(ctx, files, "")
	require.Len(t, results, 1)
	require.True(t, results[0].OK, results[0].Error)

	got, err := f.cat.Images.Find(ctx, "RKey-IMG_01")
	require.NoError(t, err)
	assert.Equal(t, models.NoDate, got.DateTaken)
	assert.Equal(t, "cat,tiger", got.Tags)
	assert.Equal(t, models.Unapproved, got.ApprovedBy)
	assert.Equal(t, models.NoUser, got.Uploader)
	assert.Equal(t, "IMG_01", got.ImageName)
	assert.Equal(t, "IMG_01.JPEG", got.ImagePath)
	assert.NotEmpty(t, got.FileHash)
	assert.True(t, f.originals().Has("IMG_01.JPEG"))

	page, err := f.cat.List(ctx, query.ViewOptions{Unmatched: true})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "RKey-IMG_01", page.Items[0].RowKey)

	page, err = f.cat.List(ctx, query.ViewOptions{Range: query.DateRange{Start: 1, End: 4102444800000}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "dated", page.Items[0].ImageName)

	audits, err := f.cat.AuditLog(ctx, models.AuditUpload)
	require.NoError(t, err)
	assert.Len(t, audits, 1)
}

func TestUploadRejectsDuplicatePerFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.cat.Upload(ctx, []UploadFile{{Name: "a.jpg", Data: []byte("1")}}, "alice")
	require.True(t, first[0].OK)

	results := f.cat.Upload(ctx, []UploadFile{
		{Name: "a.png", Data: []byte("2")},
		{Name: "b.jpg", Data: []byte("3")},
	}, "alice")
	require.Len(t, results, 2)
	assert.False(t, results[0].OK)
	assert.ErrorIs(t, results[0].Err(), ErrDuplicate)
	assert.True(t, results[1].OK)

	n, err := f.cat.Images.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, f.originals().Has("a.png"), "重复的文件不上传")
}

func TestUploadDuplicateBehindStaleCacheKeepsBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.cat.List(ctx, query.ViewOptions{})
	require.NoError(t, err)

	// 缓存已经预热，外部写入者随后加入 a.jpg
	external := photo("a", "", "1")
	external.PartitionKey = f.cfg.Catalog.PartitionKey
	f.db.ImageTable().Put(external)
	require.NoError(t, f.originals().Upload(ctx, "a.jpg", []byte("live bytes"), "image/jpeg"))
	uploads := f.originals().Uploads()

	results := f.cat.Upload(ctx, []UploadFile{{Name: "a.jpg", Data: []byte("new bytes")}}, "bob")
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.ErrorIs(t, results[0].Err(), ErrDuplicate)

	data, err := f.originals().Download(ctx, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("live bytes"), data)
	assert.Equal(t, uploads, f.originals().Uploads(), "被拒绝的上传不写 blob")
}

func TestUploadBlobFailureRollsBackEntity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.originals().FailWith(errors.New("offline"))

	results := f.cat.Upload(ctx, []UploadFile{{Name: "c.jpg", Data: []byte("z")}}, "alice")
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.ErrorIs(t, results[0].Err(), ErrStore)

	got, err := f.db.ImageTable().Get(ctx, f.cfg.Catalog.PartitionKey, "RKey-c")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUploadStampsFingerprint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results := f.cat.Upload(ctx, []UploadFile{{Name: "dot.png", Data: pngBytes(t)}}, "alice")
	require.True(t, results[0].OK, results[0].Error)

	got, err := f.cat.Images.Find(ctx, "RKey-dot")
	require.NoError(t, err)
	assert.Len(t, got.FileHash, 64)
	assert.NotEmpty(t, got.PerceptualHash)
	assert.Equal(t, "png", got.FileType)
	assert.Equal(t, "alice", got.Uploader)
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	f := newFixture(t)
	results := f.cat.Upload(context.Background(), []UploadFile{{Name: "x.jpg"}}, "alice")
	assert.ErrorIs(t, results[0].Err(), ErrInvalid)
}

func TestSuggestNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"IMG.jpg", "img (1).jpg", "other.png"} {
		require.NoError(t, f.originals().Upload(ctx, name, []byte("x"), "image/jpeg"))
	}

	got, err := f.cat.SuggestNames(ctx, []string{"IMG.JPG", "new.png", "img.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"IMG (2).JPG", "new.png", "img (3).png"}, got)
}

func TestSuggestNamesListIsCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cat.SuggestNames(ctx, []string{"a.jpg"})
	require.NoError(t, err)
	require.NoError(t, f.originals().Upload(ctx, "a.jpg", []byte("x"), "image/jpeg"))

	got, err := f.cat.SuggestNames(ctx, []string{"a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg"}, got, "外部写入在 TTL 内不可见")

	f.cat.Upload(ctx, []UploadFile{{Name: "b.jpg", Data: []byte("y")}}, "alice")
	got, err = f.cat.SuggestNames(ctx, []string{"a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a (1).jpg"}, got, "上传之后列表失效")
}
