package hasher

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256(t *testing.T) {
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	assert.Equal(t, want, CalculateSHA256FromBytes([]byte("abc")))
}

func TestFingerprintAndDistance(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			img.Set(x, y, color.Gray{Y: uint8(x * 4)})
		}
	}
	fp := FingerprintBytes([]byte("data"), img)
	assert.NotEmpty(t, fp.PHash)
	assert.Equal(t, CalculateSHA256FromBytes([]byte("data")), fp.SHA256)

	d, err := Distance(fp.PHash, fp.PHash)
	require.NoError(t, err)
	assert.Zero(t, d)

	assert.Len(t, fp.PHash, 16, "64 位哈希的十六进制形式")

	d, err = Distance("00ff", "0f0f")
	require.NoError(t, err)
	assert.Equal(t, 8, d)

	_, err = Distance("x", "01")
	assert.Error(t, err)
	_, err = Distance("00", "0000")
	assert.Error(t, err)

	assert.Empty(t, FingerprintBytes([]byte("data"), nil).PHash)
}
