package catalog

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradientPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			img.Set(x, y, color.Gray{Y: uint8(x*2 + y)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSimilar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, photo("nohash", "", "1"))
	data := gradientPNG(t)
	res := f.cat.Upload(ctx, []UploadFile{{Name: "grad.png", Data: data}}, "alice")
	require.True(t, res[0].OK, res[0].Error)

	found, err := f.cat.Similar(ctx, data, 0)
	require.NoError(t, err)
	require.Len(t, found, 1, "没有感知哈希的图片不参与比较")
	assert.Equal(t, "grad", found[0].Image.ImageName)
	assert.Zero(t, found[0].Distance)

	_, err = f.cat.Similar(ctx, []byte("not an image"), 0)
	assert.ErrorIs(t, err, ErrInvalid)
}
