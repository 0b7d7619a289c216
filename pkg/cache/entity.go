package cache

import (
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/pkg/database"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// snapshot 是一次全表扫描的结果，写入后不再修改；每次修补都生成新的 snapshot。
type snapshot[T models.Entity[T]] struct {
	items    []T
	index    map[string]int
	filledAt time.Time
}

func newSnapshot[T models.Entity[T]](items []T, filledAt time.Time) *snapshot[T] {
	index := make(map[string]int, len(items))
	for i, e := range items {
		index[e.EntityKeys().RowKey] = i
	}
	return &snapshot[T]{items: items, index: index, filledAt: filledAt}
}

// Summary 描述一张表的缓存状态。
type Summary struct {
	Table     string        `json:"table"`
	Warm      bool          `json:"warm"`
	Size      int           `json:"size"`
	Age       time.Duration `json:"age"`
	ExpiresIn time.Duration `json:"expiresIn"`
}

// EntityCache 是一张逻辑表的全量快照缓存。
// 读取只访问快照；未命中时整表扫描并以 ttl 写入。
// 增量修补（ApplyUpdate/Insert/Delete）保持剩余的 TTL 不变。
type EntityCache[T models.Entity[T]] struct {
	name    string
	table   database.Table[T]
	store   *Store
	ttl     time.Duration
	metrics *Metrics

	// mu 串行化快照的读-改-写，不在存储 I/O 期间持有。
	mu        sync.Mutex
	group     singleflight.Group
	onChange  []func([]T)
	onRebuild []func([]T)
}

func NewEntityCache[T models.Entity[T]](name string, table database.Table[T], store *Store, ttl time.Duration, metrics *Metrics) *EntityCache[T] {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &EntityCache[T]{
		name:    name,
		table:   table,
		store:   store,
		ttl:     ttl,
		metrics: metrics,
	}
}

func (c *EntityCache[T]) Name() string { return c.name }

func (c *EntityCache[T]) key() string { return "entities:" + c.name }

// OnChange 注册一个回调，快照每次被替换后（填充、重建或修补）都会以新的条目调用。
// 回调在持有内部锁时执行，不能做 I/O，也不能修改传入的切片。
func (c *EntityCache[T]) OnChange(fn func([]T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// OnRebuild 只在整表扫描（填充或重建）之后调用。约束同 OnChange。
func (c *EntityCache[T]) OnRebuild(fn func([]T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRebuild = append(c.onRebuild, fn)
}

func (c *EntityCache[T]) current() (*snapshot[T], time.Time, bool) {
	v, exp, ok := c.store.GetWithExpiration(c.key())
	if !ok {
		return nil, time.Time{}, false
	}
	snap, ok := v.(*snapshot[T])
	return snap, exp, ok
}

// load 返回当前快照，冷缓存时整表扫描。并发的未命中共享同一次扫描。
func (c *EntityCache[T]) load(ctx context.Context) (*snapshot[T], error) {
	if snap, _, ok := c.current(); ok {
		c.metrics.EntityHits.WithLabelValues(c.name).Inc()
		return snap, nil
	}
	c.metrics.EntityMisses.WithLabelValues(c.name).Inc()

	v, err, _ := c.group.Do(c.key(), func() (any, error) {
		if snap, _, ok := c.current(); ok {
			return snap, nil
		}
		return c.fill(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*snapshot[T]), nil
}

// fill 扫描整张表并替换快照。扫描失败时原快照保持不变。
func (c *EntityCache[T]) fill(ctx context.Context) (*snapshot[T], error) {
	start := time.Now()
	list, err := c.table.ListAll(ctx)
	if err != nil {
		slog.Error("实体缓存填充失败", "table", c.name, "error", err)
		return nil, fmt.Errorf("扫描表 %s 失败: %w", c.name, err)
	}
	items := make([]T, len(list))
	for i, e := range list {
		items[i] = models.StripStoreMeta(e)
	}
	snap := newSnapshot(items, time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Set(c.key(), snap, c.ttl)
	for _, fn := range c.onRebuild {
		fn(snap.items)
	}
	for _, fn := range c.onChange {
		fn(snap.items)
	}
	slog.Debug("实体缓存已填充", "table", c.name, "count", len(items), "duration", time.Since(start))
	return snap, nil
}

// Get 返回全部缓存条目的副本。
func (c *EntityCache[T]) Get(ctx context.Context) ([]T, error) {
	snap, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(snap.items), nil
}

// Rebuild 无视 TTL 重新扫描并替换快照。它不与 Get 的未命中共享扫描，
// 保证返回的是调用之后的存储内容。
func (c *EntityCache[T]) Rebuild(ctx context.Context) ([]T, error) {
	c.metrics.EntityRebuilds.WithLabelValues(c.name).Inc()
	snap, err := c.fill(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("实体缓存已重建", "table", c.name, "count", len(snap.items))
	return slices.Clone(snap.items), nil
}

// Find 按 rowKey 返回缓存中的实体，必要时先填充缓存。
func (c *EntityCache[T]) Find(ctx context.Context, rowKey string) (T, error) {
	var zero T
	snap, err := c.load(ctx)
	if err != nil {
		return zero, err
	}
	i, ok := snap.index[rowKey]
	if !ok {
		return zero, fmt.Errorf("%w: %s/%s", ErrNotFound, c.name, rowKey)
	}
	return snap.items[i], nil
}

// FindFirst 返回第一个满足 match 的实体。
func (c *EntityCache[T]) FindFirst(ctx context.Context, match func(T) bool) (T, bool, error) {
	var zero T
	snap, err := c.load(ctx)
	if err != nil {
		return zero, false, err
	}
	for _, e := range snap.items {
		if match(e) {
			return e, true, nil
		}
	}
	return zero, false, nil
}

func (c *EntityCache[T]) Len(ctx context.Context) (int, error) {
	snap, err := c.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(snap.items), nil
}

// Invalidate 丢弃快照，下一次读取会重新扫描。
func (c *EntityCache[T]) Invalidate() {
	c.store.Invalidate(c.key())
}

// ApplyUpdate 用 updated 替换同 rowKey 的条目。
// 冷缓存返回 ErrNotCached，找不到条目返回 ErrNotFound，两种情况都不修改缓存。
func (c *EntityCache[T]) ApplyUpdate(updated T) error {
	updated = models.StripStoreMeta(updated)
	rowKey := updated.EntityKeys().RowKey
	return c.patch(func(snap *snapshot[T]) ([]T, error) {
		i, ok := snap.index[rowKey]
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, c.name, rowKey)
		}
		items := slices.Clone(snap.items)
		items[i] = updated
		return items, nil
	})
}

// ApplyInsert 追加一个新条目，rowKey 已存在时返回 ErrDuplicate。
func (c *EntityCache[T]) ApplyInsert(created T) error {
	created = models.StripStoreMeta(created)
	rowKey := created.EntityKeys().RowKey
	return c.patch(func(snap *snapshot[T]) ([]T, error) {
		if _, ok := snap.index[rowKey]; ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrDuplicate, c.name, rowKey)
		}
		items := make([]T, len(snap.items), len(snap.items)+1)
		copy(items, snap.items)
		return append(items, created), nil
	})
}

// ApplyDelete 删除 rowKey 对应的条目。
func (c *EntityCache[T]) ApplyDelete(rowKey string) error {
	return c.patch(func(snap *snapshot[T]) ([]T, error) {
		i, ok := snap.index[rowKey]
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, c.name, rowKey)
		}
		items := make([]T, 0, len(snap.items)-1)
		items = append(items, snap.items[:i]...)
		return append(items, snap.items[i+1:]...), nil
	})
}

func (c *EntityCache[T]) patch(mutate func(*snapshot[T]) ([]T, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, exp, ok := c.current()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotCached, c.name)
	}
	items, err := mutate(snap)
	if err != nil {
		return err
	}
	next := newSnapshot(items, snap.filledAt)
	c.store.SetUntil(c.key(), next, exp)
	for _, fn := range c.onChange {
		fn(next.items)
	}
	return nil
}

// Summary 返回缓存的当前状态，不会触发填充。
func (c *EntityCache[T]) Summary() Summary {
	s := Summary{Table: c.name}
	snap, exp, ok := c.current()
	if !ok {
		return s
	}
	s.Warm = true
	s.Size = len(snap.items)
	s.Age = time.Since(snap.filledAt)
	if !exp.IsZero() {
		s.ExpiresIn = time.Until(exp)
	}
	return s
}
