package cache

import "errors"

var (
	// ErrNotCached 表示缓存是冷的，增量修补无从下手。
	ErrNotCached = errors.New("缓存未预热")
	// ErrNotFound 表示缓存中没有对应的实体或图片。
	ErrNotFound = errors.New("缓存中不存在")
	// ErrDuplicate 表示插入的 rowKey 已经存在。
	ErrDuplicate = errors.New("rowKey 已存在")
	// ErrCompression 表示压缩转换失败，与源文件不存在区分开。
	ErrCompression = errors.New("图片压缩失败")
)
