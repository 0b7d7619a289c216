package memory

import (
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/pkg/database"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrInjected 是测试中注入的存储故障。
var ErrInjected = errors.New("注入的存储故障")

// Store 是进程内的 database.Store 实现，数据不落盘。
// 用于 memory 驱动和各个包的测试。
type Store struct {
	images      *Table[models.Image]
	audits      *Table[models.Audit]
	journal     *Table[models.JournalEntry]
	compression *Table[models.CompressionRecord]
}

var _ database.Store = (*Store)(nil)

func NewStore() *Store {
	slog.Info("使用内存存储，数据不会持久化")
	return &Store{
		images:      NewTable[models.Image](),
		audits:      NewTable[models.Audit](),
		journal:     NewTable[models.JournalEntry](),
		compression: NewTable[models.CompressionRecord](),
	}
}

func (s *Store) Images() database.Table[models.Image] {
	return s.images
}

func (s *Store) Audits() database.Table[models.Audit] {
	return s.audits
}

func (s *Store) Journal() database.Table[models.JournalEntry] {
	return s.journal
}

func (s *Store) Compression() database.Table[models.CompressionRecord] {
	return s.compression
}

// ImageTable 返回具体类型，测试可以读取计数器或注入故障。
func (s *Store) ImageTable() *Table[models.Image] {
	return s.images
}

func (s *Store) AuditTable() *Table[models.Audit] {
	return s.audits
}

func (s *Store) JournalTable() *Table[models.JournalEntry] {
	return s.journal
}

func (s *Store) CompressionTable() *Table[models.CompressionRecord] {
	return s.compression
}

func (s *Store) EnsureIndexes(ctx context.Context) error { return nil }

func (s *Store) DropAllCollections(ctx context.Context) error {
	s.images.Reset()
	s.audits.Reset()
	s.journal.Reset()
	s.compression.Reset()
	return nil
}

func (s *Store) Close(ctx context.Context) error { return nil }

// Table 是按 (partitionKey, rowKey) 寻址的内存表。
type Table[T models.Entity[T]] struct {
	mu    sync.Mutex
	rows  map[string]T
	scans int
	fail  error
}

func NewTable[T models.Entity[T]]() *Table[T] {
	return &Table[T]{rows: make(map[string]T)}
}

func rowID(partitionKey, rowKey string) string {
	return partitionKey + "\x00" + rowKey
}

// Scans 返回 ListAll 被调用的次数。
func (t *Table[T]) Scans() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scans
}

// FailWith 让之后的每次调用都返回 err，传 nil 恢复正常。
func (t *Table[T]) FailWith(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail = err
}

// Put 绕过故障注入直接写入一行，模拟外部写入者。
func (t *Table[T]) Put(entity T) T {
	t.mu.Lock()
	defer t.mu.Unlock()
	stamped := database.Stamp(entity)
	k := stamped.EntityKeys()
	t.rows[rowID(k.PartitionKey, k.RowKey)] = stamped
	return stamped
}

func (t *Table[T]) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = make(map[string]T)
	t.scans = 0
}

// ListAll 按 (partitionKey, rowKey) 排序返回全部行，和 mongo 的默认索引顺序一致。
func (t *Table[T]) ListAll(ctx context.Context) ([]T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scans++
	if t.fail != nil {
		return nil, t.fail
	}
	ids := make([]string, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	list := make([]T, 0, len(ids))
	for _, id := range ids {
		list = append(list, t.rows[id])
	}
	return list, nil
}

func (t *Table[T]) Get(ctx context.Context, partitionKey, rowKey string) (*T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail != nil {
		return nil, t.fail
	}
	entity, ok := t.rows[rowID(partitionKey, rowKey)]
	if !ok {
		return nil, nil
	}
	return &entity, nil
}

func (t *Table[T]) Create(ctx context.Context, entity T) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail != nil {
		return entity, t.fail
	}
	k := entity.EntityKeys()
	id := rowID(k.PartitionKey, k.RowKey)
	if _, ok := t.rows[id]; ok {
		return entity, fmt.Errorf("%w: %s", database.ErrDuplicateKey, k.RowKey)
	}
	stamped := database.Stamp(entity)
	t.rows[id] = stamped
	return stamped, nil
}

func (t *Table[T]) Update(ctx context.Context, entity T) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail != nil {
		return entity, t.fail
	}
	k := entity.EntityKeys()
	id := rowID(k.PartitionKey, k.RowKey)
	current, ok := t.rows[id]
	if !ok {
		return entity, fmt.Errorf("%w: %s", database.ErrNotFound, k.RowKey)
	}
	if k.ETag != "" && current.EntityKeys().ETag != k.ETag {
		return entity, fmt.Errorf("%w: %s", database.ErrETagMismatch, k.RowKey)
	}
	stamped := database.Stamp(entity)
	t.rows[id] = stamped
	return stamped, nil
}

func (t *Table[T]) Delete(ctx context.Context, partitionKey, rowKey string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail != nil {
		return t.fail
	}
	id := rowID(partitionKey, rowKey)
	if _, ok := t.rows[id]; !ok {
		return fmt.Errorf("%w: %s", database.ErrNotFound, rowKey)
	}
	delete(t.rows, id)
	return nil
}
