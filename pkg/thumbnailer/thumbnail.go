package thumbnailer

import (
	"Image_Repo_Server/config"
	"bytes"
	"fmt"
	"image"
	"image/color"
	// 匿名导入 image解码器
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// WebP 把图片缩放到固定的边界框内，透明部分铺白底，再编码为 WebP。
// 它满足 cache.Compressor 接口。
type WebP struct {
	Width   int
	Height  int
	Quality float32
}

func New(cfg config.CompressionConfig) *WebP {
	return &WebP{Width: cfg.Width, Height: cfg.Height, Quality: float32(cfg.Quality)}
}

// Compress 对同一输入总是产生同样的输出。
func (w *WebP) Compress(data []byte) ([]byte, error) {
	src, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	flat := Flatten(imaging.Fit(src, w.Width, w.Height, imaging.Lanczos))

	buf := new(bytes.Buffer)
	if err := webp.Encode(buf, flat, &webp.Options{Quality: w.Quality}); err != nil {
		return nil, fmt.Errorf("webp 编码失败: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode 解码 jpeg/png/gif/webp，返回图片和格式名。
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("无法解码图片: %w", err)
	}
	return img, format, nil
}

// Flatten 把图片叠加到同尺寸的白色背景上。
func Flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
