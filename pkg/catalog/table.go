package catalog

import (
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/pkg/cache"
	"Image_Repo_Server/pkg/database"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
)

// Table 是每种逻辑表共有的能力，API 层按名称选出一个 Table 后不再关心具体类型。
type Table interface {
	Kind() models.TableName
	Refresh(ctx context.Context) (int, error)
	Len(ctx context.Context) (int, error)
	Summary() cache.Summary
	Invalidate()
	Columns() []string
	List(ctx context.Context) (any, error)
}

// Variant 是一张具体的逻辑表：实体缓存加上它背后的存储表。
type Variant[T models.Entity[T]] struct {
	*cache.EntityCache[T]
	kind         models.TableName
	partitionKey string
	store        database.Table[T]
}

func newVariant[T models.Entity[T]](kind models.TableName, partitionKey string, store database.Table[T], cs *cache.Store, cfg cacheSettings) *Variant[T] {
	return &Variant[T]{
		EntityCache:  cache.NewEntityCache[T](string(kind), store, cs, cfg.ttl, cfg.metrics),
		kind:         kind,
		partitionKey: partitionKey,
		store:        store,
	}
}

func (v *Variant[T]) Kind() models.TableName { return v.kind }

func (v *Variant[T]) PartitionKey() string { return v.partitionKey }

func (v *Variant[T]) Refresh(ctx context.Context) (int, error) {
	items, err := v.Rebuild(ctx)
	if err != nil {
		return 0, storeErr("重建缓存", err)
	}
	return len(items), nil
}

func (v *Variant[T]) List(ctx context.Context) (any, error) {
	items, err := v.Get(ctx)
	if err != nil {
		return nil, storeErr("读取表", err)
	}
	return items, nil
}

// Columns 返回实体的字段名（bson 名），不含键和并发令牌。
func (v *Variant[T]) Columns() []string {
	var zero T
	return columnsOf(reflect.TypeOf(zero))
}

// reconcile 执行一次缓存修补。冷缓存不需要修补；其它失败说明缓存和存储已经分叉，回退到整表重建。
func (v *Variant[T]) reconcile(ctx context.Context, op string, apply func() error) {
	err := apply()
	if err == nil || errors.Is(err, cache.ErrNotCached) {
		return
	}
	slog.Warn("缓存修补失败，回退到整表重建", "table", v.kind, "op", op, "error", err)
	if _, err := v.Rebuild(ctx); err != nil {
		slog.Error("整表重建失败", "table", v.kind, "error", err)
	}
}

var hiddenColumns = map[string]bool{"partitionKey": true, "rowKey": true, "etag": true}

func columnsOf(t reflect.Type) []string {
	var out []string
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get("bson")
		name, opts, _ := strings.Cut(tag, ",")
		if f.Anonymous && strings.Contains(opts, "inline") {
			out = append(out, columnsOf(f.Type)...)
			continue
		}
		if !f.IsExported() || name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		if !hiddenColumns[name] {
			out = append(out, name)
		}
	}
	return out
}
