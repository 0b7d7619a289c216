package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	// 匿名导入 (blank import) image解码器
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/ajdnik/imghash"
	"github.com/ajdnik/imghash/hashtype"
	"github.com/ajdnik/imghash/similarity"
	_ "golang.org/x/image/webp"
)

// Fingerprint 是上传时打在实体上的两种哈希。
type Fingerprint struct {
	SHA256 string
	PHash  string
}

// CalculateSHA256FromBytes 从字节切片计算 SHA-256 哈希
func CalculateSHA256FromBytes(data []byte) string {
	hashBytes := sha256.Sum256(data)
	return hex.EncodeToString(hashBytes[:])
}

// CalculatePerceptualHashFromImage 从已解码的 image.Image 对象计算感知哈希，以十六进制保存。
func CalculatePerceptualHashFromImage(img image.Image) string {
	phasher := imghash.NewPHash()
	return hex.EncodeToString(phasher.Calculate(img))
}

// FingerprintBytes 计算内容哈希和感知哈希。无法解码时只返回内容哈希。
func FingerprintBytes(data []byte, img image.Image) Fingerprint {
	fp := Fingerprint{SHA256: CalculateSHA256FromBytes(data)}
	if img != nil {
		fp.PHash = CalculatePerceptualHashFromImage(img)
	}
	return fp
}

// Distance 返回两个十六进制感知哈希之间的汉明距离。
func Distance(a, b string) (int, error) {
	x, err := parsePHash(a)
	if err != nil {
		return 0, err
	}
	y, err := parsePHash(b)
	if err != nil {
		return 0, err
	}
	if len(x) != len(y) {
		return 0, fmt.Errorf("感知哈希长度不一致: %d != %d", len(x), len(y))
	}
	return int(similarity.Hamming(x, y)), nil
}

func parsePHash(s string) (hashtype.Binary, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) == 0 {
		return nil, fmt.Errorf("无效的感知哈希 %q", s)
	}
	return hashtype.Binary(raw), nil
}
