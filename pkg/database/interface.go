package database

import (
	"Image_Repo_Server/internal/models"
	"context"
	"errors"
)

var (
	// ErrNotFound 表示按 (partitionKey, rowKey) 找不到实体。
	ErrNotFound = errors.New("实体不存在")
	// ErrDuplicateKey 表示创建的实体键已存在。
	ErrDuplicateKey = errors.New("实体键已存在")
	// ErrETagMismatch 表示更新时携带的并发令牌和存储中的不一致。
	ErrETagMismatch = errors.New("并发令牌不匹配")
)

// Store 是一个顶层接口，它组合了所有逻辑表的存储接口。
type Store interface {
	Images() Table[models.Image]
	Audits() Table[models.Audit]
	Journal() Table[models.JournalEntry]
	Compression() Table[models.CompressionRecord]
	EnsureIndexes(ctx context.Context) error
	DropAllCollections(ctx context.Context) error
	Close(ctx context.Context) error
}

// Table 定义了一张按 (partitionKey, rowKey) 寻址的实体表。
// 写操作返回存储后的实体（带有新的并发令牌和时间戳）。
// Update 在实体带有 ETag 时只替换令牌相同的行，ETag 为空时直接覆盖。
type Table[T models.Entity[T]] interface {
	ListAll(ctx context.Context) ([]T, error)
	Get(ctx context.Context, partitionKey, rowKey string) (*T, error)
	Create(ctx context.Context, entity T) (T, error)
	Update(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, partitionKey, rowKey string) error
}
