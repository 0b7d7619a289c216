package catalog

import (
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/pkg/hasher"
	"Image_Repo_Server/pkg/thumbnailer"
	"context"
	"fmt"
	"sort"
)

// DefaultSimilarDistance 是以图搜图默认允许的最大汉明距离。
const DefaultSimilarDistance = 10

// SimilarImage 是一张相似图片和它与查询图片的距离。
type SimilarImage struct {
	Image    models.Image `json:"image"`
	Distance int          `json:"distance"`
}

// Similar 按感知哈希查找和 data 相似的图片，按距离、名称排序，最多 SearchLimit 条。
func (c *Catalog) Similar(ctx context.Context, data []byte, maxDistance int) ([]SimilarImage, error) {
	decoded, _, err := thumbnailer.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: 无法解码查询图片: %w", ErrInvalid, err)
	}
	if maxDistance <= 0 {
		maxDistance = DefaultSimilarDistance
	}
	target := hasher.CalculatePerceptualHashFromImage(decoded)

	images, err := c.images(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SimilarImage, 0)
	for _, img := range images {
		if img.PerceptualHash == "" {
			continue
		}
		d, err := hasher.Distance(target, img.PerceptualHash)
		if err != nil || d > maxDistance {
			continue
		}
		out = append(out, SimilarImage{Image: img, Distance: d})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Image.ImageName < out[j].Image.ImageName
	})
	if limit := c.cfg.Catalog.SearchLimit; limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
