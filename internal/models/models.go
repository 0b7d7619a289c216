package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TableName 是逻辑表名。表的种类是一个封闭集合，在构造时确定。
type TableName string

const (
	TableImages      TableName = "images"
	TableAudits      TableName = "audits"
	TableJournal     TableName = "journal"
	TableCompression TableName = "compression"
)

const (
	// NoDate 是没有拍摄日期的哨兵值。
	NoDate = "No Date"
	// Unapproved 是新上传图片的默认审核状态。
	Unapproved = "Unapproved"
	// NoUser 是未提供上传者时的默认值。
	NoUser = "No User"
	// RowKeyPrefix 是所有行键的前缀。
	RowKeyPrefix = "RKey-"
)

// Keys 是每个实体都带有的存储键。
// ETag 是存储层的并发令牌，进入缓存之前会被剥离。
type Keys struct {
	PartitionKey string    `bson:"partitionKey" json:"partitionKey"`
	RowKey       string    `bson:"rowKey" json:"rowKey"`
	Timestamp    time.Time `bson:"timestamp,omitempty" json:"timestamp,omitempty"`
	ETag         string    `bson:"etag,omitempty" json:"etag,omitempty"`
}

// Entity 是所有可缓存实体需要实现的约束。
// 方法都是值接收者，WithKeys 返回修改后的副本。
type Entity[T any] interface {
	EntityKeys() Keys
	WithKeys(k Keys) T
}

// StripStoreMeta 去掉存储层内部的元数据（并发令牌）。
func StripStoreMeta[T Entity[T]](e T) T {
	k := e.EntityKeys()
	k.ETag = ""
	return e.WithKeys(k)
}

// Image 代表一张被编目的图片的元数据。
type Image struct {
	Keys `bson:",inline"`

	ImageName   string `bson:"imageName" json:"imageName"`
	Description string `bson:"description" json:"description"`
	Notes       string `bson:"notes" json:"notes"`
	// Tags 是逗号拼接的标签列表。
	Tags       string `bson:"tags" json:"tags"`
	Uploader   string `bson:"uploader" json:"uploader"`
	ApprovedBy string `bson:"approvedBy" json:"approvedBy"`
	// DateTaken 是字符串形式的 Unix 毫秒，或者 NoDate。
	DateTaken string `bson:"dateTaken" json:"dateTaken"`
	Folder    string `bson:"folder" json:"folder"`
	FileType  string `bson:"filetype" json:"filetype"`
	// ImagePath 是原图在 blob 存储中的名称。
	ImagePath string `bson:"imagePath" json:"imagePath"`

	FileHash       string `bson:"fileHash,omitempty" json:"fileHash,omitempty"`
	PerceptualHash string `bson:"perceptualHash,omitempty" json:"perceptualHash,omitempty"`
}

func (i Image) EntityKeys() Keys { return i.Keys }
func (i Image) WithKeys(k Keys) Image { i.Keys = k; return i }

// ImageRowKey 由原始文件名（去掉扩展名）推导出行键。
func ImageRowKey(fileName string) string {
	return RowKeyPrefix + StripExt(fileName)
}

// StripExt 去掉第一个 "." 之后的所有内容。
func StripExt(name string) string {
	if i := strings.Index(name, "."); i >= 0 {
		return name[:i]
	}
	return name
}

// Audit 是只追加的审计记录。
type Audit struct {
	Keys `bson:",inline"`

	AuditTime     string `bson:"auditTime" json:"auditTime"`
	ImageName     string `bson:"imageName" json:"imageName"`
	Description   string `bson:"description" json:"description"`
	Auditor       string `bson:"auditor" json:"auditor"`
	ImagePath     string `bson:"imagePath" json:"imagePath"`
	ApprovedBy    string `bson:"approvedBy" json:"approvedBy"`
	AuditType     string `bson:"auditType" json:"auditType"`
	AuditApprover string `bson:"auditApprover" json:"auditApprover"`
	PreviousValue string `bson:"previousValue" json:"previousValue"`
	NewValue      string `bson:"newValue" json:"newValue"`
}

func (a Audit) EntityKeys() Keys { return a.Keys }
func (a Audit) WithKeys(k Keys) Audit { a.Keys = k; return a }

const (
	AuditUpdate = "Update"
	AuditDelete = "Delete"
	AuditUpload = "Upload"
)

// AuditRowKey 按 (图片路径, 时间, 操作类型, 操作人, 唯一后缀) 生成审计行键。
// 同一毫秒内的多条记录靠 unique 区分。
func AuditRowKey(imagePath string, unixMillis int64, auditType, actor, unique string) string {
	return fmt.Sprintf("%s%s-%d-%s-%s-%s", RowKeyPrefix, imagePath, unixMillis, auditType, actor, unique)
}

// JournalEntry 是日志本中的一页，按文件夹分组。
type JournalEntry struct {
	Keys `bson:",inline"`

	Folder     string `bson:"folder" json:"folder"`
	Name       string `bson:"name" json:"name"`
	Images     string `bson:"images" json:"images"`
	StartDate  string `bson:"startDate,omitempty" json:"startDate,omitempty"`
	EndDate    string `bson:"endDate,omitempty" json:"endDate,omitempty"`
	TripNumber int    `bson:"tripNumber,omitempty" json:"tripNumber,omitempty"`
}

func (j JournalEntry) EntityKeys() Keys { return j.Keys }
func (j JournalEntry) WithKeys(k Keys) JournalEntry { j.Keys = k; return j }

// JournalRowKey 是 "<folder>-<name>"。
func JournalRowKey(folder, name string) string {
	return folder + "-" + name
}

// CompressionRecord 记录一张已经压缩过的图片。
type CompressionRecord struct {
	Keys `bson:",inline"`

	Name           string `bson:"name" json:"name"`
	LastCompressed string `bson:"lastCompressed" json:"lastCompressed"`
	SizeOfImage    int    `bson:"sizeOfImage" json:"sizeOfImage"`
}

func (c CompressionRecord) EntityKeys() Keys { return c.Keys }
func (c CompressionRecord) WithKeys(k Keys) CompressionRecord { c.Keys = k; return c }

// MapEntry 是图片名到 blob 路径的精简投影，用于图片服务的热路径。
type MapEntry struct {
	RowKey     string `json:"rowKey"`
	BlobPath   string `json:"blobPath"`
	CapturedAt string `json:"capturedAt"`
}

// TagFilter 是标签索引中的一项。
type TagFilter struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
	Color string `json:"color"`
}

// TagList 同时接受 JSON 数组和逗号拼接的字符串。
type TagList []string

func (t *TagList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("tags 既不是字符串也不是字符串数组: %w", err)
	}
	*t = SplitTags(s)
	return nil
}

// SplitTags 按逗号拆分标签，去掉空白和空项。
func SplitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeTags 去重后重新拼接成规范的逗号字符串，保持首次出现的顺序。
func NormalizeTags(tags []string) string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, raw := range tags {
		for _, t := range SplitTags(raw) {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return strings.Join(out, ",")
}

// ImageEdit 是调用方可以修改的字段白名单。
// 键、并发令牌、审核人、文件夹、文件类型、上传者和 blob 路径都不在这里，
// 它们只能从旧实体上继承。
type ImageEdit struct {
	RowKey      string   `json:"rowKey"`
	ImageName   *string  `json:"imageName,omitempty"`
	Description *string  `json:"description,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
	Tags        *TagList `json:"tags,omitempty"`
	DateTaken   *string  `json:"dateTaken,omitempty"`
}

// ApplyTo 把白名单中的字段合并到旧实体上，返回新实体。
func (e ImageEdit) ApplyTo(old Image) Image {
	updated := old
	if e.ImageName != nil {
		updated.ImageName = *e.ImageName
	}
	if e.Description != nil {
		updated.Description = *e.Description
	}
	if e.Notes != nil {
		updated.Notes = *e.Notes
	}
	if e.Tags != nil {
		updated.Tags = NormalizeTags(*e.Tags)
	}
	if e.DateTaken != nil {
		updated.DateTaken = *e.DateTaken
		if strings.TrimSpace(updated.DateTaken) == "" {
			updated.DateTaken = NoDate
		}
	}
	return updated
}

// UploadMeta 是上传时每个文件附带的元数据。
type UploadMeta struct {
	ImageName   string `json:"imageName"`
	Description string `json:"description"`
	Notes       string `json:"notes"`
	Tags        string `json:"tags"`
	DateTaken   string `json:"dateTaken"`
	ImagePath   string `json:"imagePath"`
	FileType    string `json:"filetype"`
	Uploader    string `json:"uploader"`
}
