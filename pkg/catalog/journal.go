package catalog

import (
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/pkg/cache"
	"Image_Repo_Server/pkg/logger"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// UntitledName 是新建文件夹时自动创建的第一页。
const UntitledName = "Untitled"

// JournalFolder 是一个文件夹及其中的页面名称。
type JournalFolder struct {
	Folder string   `json:"folder"`
	Names  []string `json:"names"`
}

func journalBlob(folder, name string) string {
	return folder + "/" + name + ".txt"
}

func validJournalKey(folder, name string) error {
	if strings.TrimSpace(folder) == "" || strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: 文件夹和名称都不能为空", ErrInvalid)
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("%w: 名称不能包含 /", ErrInvalid)
	}
	return nil
}

// MakeFolder 创建文件夹，同时创建一个空的 Untitled 页面。
func (c *Catalog) MakeFolder(ctx context.Context, folder string) (models.JournalEntry, error) {
	return c.AddName(ctx, folder, UntitledName)
}

// AddName 在文件夹中新建一个空页面，rowKey 已存在时返回 ErrDuplicate。
func (c *Catalog) AddName(ctx context.Context, folder, name string) (models.JournalEntry, error) {
	if err := validJournalKey(folder, name); err != nil {
		return models.JournalEntry{}, err
	}
	rowKey := models.JournalRowKey(folder, name)
	if _, err := c.Journal.Find(ctx, rowKey); err == nil {
		return models.JournalEntry{}, fmt.Errorf("%w: %s", ErrDuplicate, rowKey)
	} else if !errors.Is(err, cache.ErrNotFound) {
		return models.JournalEntry{}, storeErr("读取日志表", err)
	}

	if err := c.journal.Upload(ctx, journalBlob(folder, name), []byte{}, "text/plain"); err != nil {
		return models.JournalEntry{}, storeErr("创建日志文本", err)
	}
	entry := models.JournalEntry{
		Keys:   models.Keys{PartitionKey: c.Journal.PartitionKey(), RowKey: rowKey},
		Folder: folder,
		Name:   name,
	}
	stored, err := c.Journal.store.Create(ctx, entry)
	if err != nil {
		c.deleteBlob(ctx, c.journal, journalBlob(folder, name))
		return models.JournalEntry{}, storeErr("创建日志", err)
	}
	c.Journal.reconcile(ctx, "insert", func() error { return c.Journal.ApplyInsert(stored) })
	logger.FromContext(ctx).Info("日志页面已创建", "folder", folder, "name", name)
	return models.StripStoreMeta(stored), nil
}

func (c *Catalog) journalEntry(ctx context.Context, folder, name string) (models.JournalEntry, error) {
	entry, err := c.Journal.Find(ctx, models.JournalRowKey(folder, name))
	if err != nil {
		return models.JournalEntry{}, storeErr("查找日志", err)
	}
	return entry, nil
}

// ChangeName 重命名页面：文本 blob 改名，实体换成新的 rowKey。
func (c *Catalog) ChangeName(ctx context.Context, folder, oldName, newName string) (models.JournalEntry, error) {
	if err := validJournalKey(folder, newName); err != nil {
		return models.JournalEntry{}, err
	}
	old, err := c.journalEntry(ctx, folder, oldName)
	if err != nil {
		return models.JournalEntry{}, err
	}
	newKey := models.JournalRowKey(folder, newName)
	if _, err := c.Journal.Find(ctx, newKey); err == nil {
		return models.JournalEntry{}, fmt.Errorf("%w: %s", ErrDuplicate, newKey)
	}

	if err := c.journal.Rename(ctx, journalBlob(folder, oldName), journalBlob(folder, newName)); err != nil {
		return models.JournalEntry{}, storeErr("重命名日志文本", err)
	}
	renamed := old
	renamed.Name = newName
	renamed.Keys = models.Keys{PartitionKey: old.PartitionKey, RowKey: newKey}
	stored, err := c.Journal.store.Create(ctx, renamed)
	if err != nil {
		if rbErr := c.journal.Rename(ctx, journalBlob(folder, newName), journalBlob(folder, oldName)); rbErr != nil {
			logger.FromContext(ctx).Error("回滚日志文本重命名失败", "folder", folder, "name", newName, "error", rbErr)
		}
		return models.JournalEntry{}, storeErr("创建日志", err)
	}
	c.Journal.reconcile(ctx, "insert", func() error { return c.Journal.ApplyInsert(stored) })

	if err := c.Journal.store.Delete(ctx, old.PartitionKey, old.RowKey); err != nil {
		logger.FromContext(ctx).Warn("删除旧日志实体失败", "rowKey", old.RowKey, "error", err)
	} else {
		c.Journal.reconcile(ctx, "delete", func() error { return c.Journal.ApplyDelete(old.RowKey) })
	}
	return models.StripStoreMeta(stored), nil
}

func (c *Catalog) updateJournal(ctx context.Context, entry models.JournalEntry) (models.JournalEntry, error) {
	stored, err := c.Journal.store.Update(ctx, entry)
	if err != nil {
		return models.JournalEntry{}, storeErr("更新日志", err)
	}
	c.Journal.reconcile(ctx, "update", func() error { return c.Journal.ApplyUpdate(stored) })
	return models.StripStoreMeta(stored), nil
}

// AddImages 把图片名追加到页面，已有的名称不会重复。
func (c *Catalog) AddImages(ctx context.Context, folder, name string, images []string) (models.JournalEntry, error) {
	entry, err := c.journalEntry(ctx, folder, name)
	if err != nil {
		return models.JournalEntry{}, err
	}
	entry.Images = models.NormalizeTags(append([]string{entry.Images}, images...))
	return c.updateJournal(ctx, entry)
}

// RemoveImages 从页面中移除图片名，一个都没有移除时返回 ErrNotFound。
func (c *Catalog) RemoveImages(ctx context.Context, folder, name string, images []string) (models.JournalEntry, error) {
	entry, err := c.journalEntry(ctx, folder, name)
	if err != nil {
		return models.JournalEntry{}, err
	}
	current := models.SplitTags(entry.Images)
	kept := slices.DeleteFunc(slices.Clone(current), func(s string) bool {
		return slices.Contains(images, s)
	})
	if len(kept) == len(current) {
		return models.JournalEntry{}, fmt.Errorf("%w: 页面 %s 中没有这些图片", ErrNotFound, entry.RowKey)
	}
	entry.Images = strings.Join(kept, ",")
	return c.updateJournal(ctx, entry)
}

// DeleteName 删除页面和它的文本。文本删除是尽力而为。
func (c *Catalog) DeleteName(ctx context.Context, folder, name string) error {
	entry, err := c.journalEntry(ctx, folder, name)
	if err != nil {
		return err
	}
	if err := c.Journal.store.Delete(ctx, entry.PartitionKey, entry.RowKey); err != nil {
		return storeErr("删除日志", err)
	}
	c.Journal.reconcile(ctx, "delete", func() error { return c.Journal.ApplyDelete(entry.RowKey) })
	c.deleteBlob(ctx, c.journal, journalBlob(folder, name))
	return nil
}

// ListFolders 按文件夹分组返回所有页面名称，文件夹和名称都按字母排序。
func (c *Catalog) ListFolders(ctx context.Context) ([]JournalFolder, error) {
	entries, err := c.Journal.Get(ctx)
	if err != nil {
		return nil, storeErr("读取日志表", err)
	}
	groups := make(map[string][]string)
	for _, e := range entries {
		groups[e.Folder] = append(groups[e.Folder], e.Name)
	}
	out := make([]JournalFolder, 0, len(groups))
	for folder, names := range groups {
		slices.Sort(names)
		out = append(out, JournalFolder{Folder: folder, Names: names})
	}
	slices.SortFunc(out, func(a, b JournalFolder) int { return strings.Compare(a.Folder, b.Folder) })
	return out, nil
}

// ReadText 返回页面的文本内容。
func (c *Catalog) ReadText(ctx context.Context, folder, name string) (string, error) {
	if _, err := c.journalEntry(ctx, folder, name); err != nil {
		return "", err
	}
	data, err := c.journal.Download(ctx, journalBlob(folder, name))
	if err != nil {
		return "", storeErr("读取日志文本", err)
	}
	return string(data), nil
}

// WriteText 覆盖页面的文本内容，页面必须已经存在。
func (c *Catalog) WriteText(ctx context.Context, folder, name, text string) error {
	if _, err := c.journalEntry(ctx, folder, name); err != nil {
		return err
	}
	if err := c.journal.Upload(ctx, journalBlob(folder, name), []byte(text), "text/plain"); err != nil {
		return storeErr("写入日志文本", err)
	}
	return nil
}
