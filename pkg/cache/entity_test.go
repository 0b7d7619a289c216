package cache

import (
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/pkg/database"
	"Image_Repo_Server/pkg/database/memory"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func img(rowKey, name, tags, date string) models.Image {
	return models.Image{
		Keys:      models.Keys{PartitionKey: "masterFinal", RowKey: rowKey},
		ImageName: name,
		Tags:      tags,
		DateTaken: date,
		ImagePath: name + ".jpg",
	}
}

func seededTable(t *testing.T, images ...models.Image) *memory.Table[models.Image] {
	t.Helper()
	table := memory.NewTable[models.Image]()
	for _, i := range images {
		table.Put(i)
	}
	return table
}

func newImageEntityCache(t *testing.T, table database.Table[models.Image], ttl time.Duration) *EntityCache[models.Image] {
	t.Helper()
	store := NewStore(time.Minute)
	t.Cleanup(store.Teardown)
	return NewEntityCache[models.Image]("YodaheaTable", table, store, ttl, nil)
}

func TestColdGetScansOnce(t *testing.T) {
	table := seededTable(t,
		img("RKey-a", "a", "cat", "1"),
		img("RKey-b", "b", "dog", "2"),
		img("RKey-c", "c", "", models.NoDate),
	)
	c := newImageEntityCache(t, table, time.Minute)

	got, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 1, table.Scans())

	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, table.Scans(), "热缓存不应再次扫描")
}

func TestGetStripsConcurrencyToken(t *testing.T) {
	table := seededTable(t, img("RKey-a", "a", "", "1"))
	c := newImageEntityCache(t, table, time.Minute)

	got, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].ETag)
	assert.False(t, got[0].Timestamp.IsZero())
}

// blockingTable 让 ListAll 阻塞直到 release 被关闭，用来制造并发未命中。
type blockingTable struct {
	database.Table[models.Image]
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingTable) ListAll(ctx context.Context) ([]models.Image, error) {
	b.calls.Add(1)
	<-b.release
	return b.Table.ListAll(ctx)
}

func TestConcurrentMissesShareOneScan(t *testing.T) {
	inner := seededTable(t, img("RKey-a", "a", "", "1"))
	bt := &blockingTable{Table: inner, release: make(chan struct{})}
	c := newImageEntityCache(t, bt, time.Minute)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Get(context.Background())
			assert.NoError(t, err)
			assert.Len(t, got, 1)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(bt.release)
	wg.Wait()

	assert.Equal(t, int32(1), bt.calls.Load())
}

func TestFillFailureKeepsLastGoodSnapshot(t *testing.T) {
	table := seededTable(t, img("RKey-a", "a", "", "1"))
	c := newImageEntityCache(t, table, time.Minute)
	ctx := context.Background()

	_, err := c.Get(ctx)
	require.NoError(t, err)

	table.FailWith(memory.ErrInjected)
	_, err = c.Rebuild(ctx)
	assert.ErrorIs(t, err, memory.ErrInjected)

	got, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestColdFillFailureIsReported(t *testing.T) {
	table := seededTable(t)
	table.FailWith(memory.ErrInjected)
	c := newImageEntityCache(t, table, time.Minute)

	_, err := c.Get(context.Background())
	assert.ErrorIs(t, err, memory.ErrInjected)
	assert.False(t, c.Summary().Warm)
}

func TestRebuildIsIdempotent(t *testing.T) {
	table := seededTable(t,
		img("RKey-a", "a", "cat", "1"),
		img("RKey-b", "b", "dog", "2"),
	)
	c := newImageEntityCache(t, table, time.Minute)

	first, err := c.Rebuild(context.Background())
	require.NoError(t, err)
	second, err := c.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRebuildSeesExternalWrites(t *testing.T) {
	table := seededTable(t, img("RKey-a", "a", "", "1"))
	c := newImageEntityCache(t, table, time.Minute)
	ctx := context.Background()

	_, err := c.Get(ctx)
	require.NoError(t, err)
	table.Put(img("RKey-b", "b", "", "2"))

	stale, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, stale, 1, "热缓存不读取存储")

	fresh, err := c.Rebuild(ctx)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}

func TestTTLExpiryTriggersRescan(t *testing.T) {
	table := seededTable(t, img("RKey-a", "a", "", "1"))
	c := newImageEntityCache(t, table, 40*time.Millisecond)
	ctx := context.Background()

	_, err := c.Get(ctx)
	require.NoError(t, err)
	time.Sleep(80 * time.Millisecond)
	_, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Scans())
}

func TestApplyUpdateReplacesInPlace(t *testing.T) {
	table := seededTable(t,
		img("RKey-a", "a", "cat", "1"),
		img("RKey-b", "b", "dog", "2"),
	)
	c := newImageEntityCache(t, table, time.Minute)
	ctx := context.Background()
	_, err := c.Get(ctx)
	require.NoError(t, err)

	updated := img("RKey-a", "a2", "cat,dog", "1")
	updated.ETag = "token"
	require.NoError(t, c.ApplyUpdate(updated))

	got, err := c.Get(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a2", got[0].ImageName)
	assert.Empty(t, got[0].ETag)
	assert.Equal(t, 1, table.Scans())

	assert.ErrorIs(t, c.ApplyUpdate(img("RKey-zz", "zz", "", "")), ErrNotFound)
}

func TestApplyOnColdCache(t *testing.T) {
	c := newImageEntityCache(t, seededTable(t), time.Minute)
	assert.ErrorIs(t, c.ApplyUpdate(img("RKey-a", "a", "", "")), ErrNotCached)
	assert.ErrorIs(t, c.ApplyInsert(img("RKey-a", "a", "", "")), ErrNotCached)
	assert.ErrorIs(t, c.ApplyDelete("RKey-a"), ErrNotCached)
}

func TestApplyInsertAndDelete(t *testing.T) {
	table := seededTable(t, img("RKey-a", "a", "", "1"))
	c := newImageEntityCache(t, table, time.Minute)
	ctx := context.Background()
	_, err := c.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, c.ApplyInsert(img("RKey-b", "b", "", "2")))
	assert.ErrorIs(t, c.ApplyInsert(img("RKey-b", "b", "", "2")), ErrDuplicate)

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, c.ApplyDelete("RKey-a"))
	assert.ErrorIs(t, c.ApplyDelete("RKey-a"), ErrNotFound)

	_, err = c.Find(ctx, "RKey-a")
	assert.ErrorIs(t, err, ErrNotFound)
	b, err := c.Find(ctx, "RKey-b")
	require.NoError(t, err)
	assert.Equal(t, "b", b.ImageName)
}

func TestPatchKeepsRemainingTTL(t *testing.T) {
	table := seededTable(t, img("RKey-a", "a", "", "1"))
	c := newImageEntityCache(t, table, 300*time.Millisecond)
	ctx := context.Background()
	_, err := c.Get(ctx)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.ApplyUpdate(img("RKey-a", "a2", "", "1")))
	time.Sleep(300 * time.Millisecond)

	assert.False(t, c.Summary().Warm, "修补不应延长 TTL")
}

func TestGetReturnsCopy(t *testing.T) {
	table := seededTable(t, img("RKey-a", "a", "", "1"))
	c := newImageEntityCache(t, table, time.Minute)
	ctx := context.Background()

	got, err := c.Get(ctx)
	require.NoError(t, err)
	got[0].ImageName = "mutated"

	again, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].ImageName)
}

func TestHooksFire(t *testing.T) {
	table := seededTable(t, img("RKey-a", "a", "", "1"))
	c := newImageEntityCache(t, table, time.Minute)
	var changes, rebuilds int
	c.OnChange(func([]models.Image) { changes++ })
	c.OnRebuild(func([]models.Image) { rebuilds++ })
	ctx := context.Background()

	_, err := c.Get(ctx)
	require.NoError(t, err)
	require.NoError(t, c.ApplyInsert(img("RKey-b", "b", "", "")))
	_, err = c.Rebuild(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, changes)
	assert.Equal(t, 2, rebuilds)
}

func TestSummary(t *testing.T) {
	c := newImageEntityCache(t, seededTable(t, img("RKey-a", "a", "", "1")), time.Minute)
	assert.Equal(t, Summary{Table: "YodaheaTable"}, c.Summary())

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	s := c.Summary()
	assert.True(t, s.Warm)
	assert.Equal(t, 1, s.Size)
	assert.Greater(t, s.ExpiresIn, time.Duration(0))
}
