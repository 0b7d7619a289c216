package catalog

import (
	"Image_Repo_Server/pkg/blobstore"
	"Image_Repo_Server/pkg/cache"
	"Image_Repo_Server/pkg/database"
	"errors"
	"fmt"
)

var (
	// ErrNotFound 表示请求的实体、图片或表不存在。
	ErrNotFound = errors.New("未找到")
	// ErrDuplicate 表示目标 rowKey 或名称已被占用。
	ErrDuplicate = errors.New("已存在")
	// ErrStore 包装所有存储层（表或 blob）的失败。
	ErrStore = errors.New("存储失败")
	// ErrInvalid 表示调用参数不合法。
	ErrInvalid = errors.New("参数无效")
)

// storeErr 把存储层的错误翻译成本包的分类。
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound), errors.Is(err, cache.ErrNotFound), errors.Is(err, blobstore.ErrNotFound):
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	case errors.Is(err, database.ErrDuplicateKey), errors.Is(err, cache.ErrDuplicate):
		return fmt.Errorf("%s: %w: %w", op, ErrDuplicate, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
	}
}
