// Package app 按配置组装服务端和命令行共用的组件。
package app

import (
	"Image_Repo_Server/config"
	"Image_Repo_Server/pkg/blobstore"
	blobmem "Image_Repo_Server/pkg/blobstore/memory"
	"Image_Repo_Server/pkg/blobstore/s3"
	"Image_Repo_Server/pkg/catalog"
	"Image_Repo_Server/pkg/database"
	"Image_Repo_Server/pkg/database/memory"
	"Image_Repo_Server/pkg/database/mongo"
	"Image_Repo_Server/pkg/thumbnailer"
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// App 是组装好的核心组件。
type App struct {
	Config  *config.Config
	Store   database.Store
	Blobs   blobstore.Provider
	Catalog *catalog.Catalog
}

// OpenStore 按 database.driver 选择存储实现，mongo 驱动会确保索引存在。
func OpenStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	switch cfg.Database.Driver {
	case "memory":
		slog.Warn("使用内存存储，数据不会持久化")
		return memory.NewStore(), nil
	case "mongo", "":
		db, err := mongo.NewStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("无法连接到数据库: %w", err)
		}
		if err := db.EnsureIndexes(ctx); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("无法创建/验证数据库索引: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("未知的数据库驱动: %s", cfg.Database.Driver)
	}
}

// OpenBlobs 按 blob.driver 选择 blob 存储实现。
func OpenBlobs(ctx context.Context, cfg *config.Config) (blobstore.Provider, error) {
	switch cfg.Blob.Driver {
	case "memory":
		slog.Warn("使用内存 blob 存储，数据不会持久化")
		return blobmem.NewProvider(), nil
	case "s3", "":
		return s3.NewProvider(ctx, cfg.Blob.S3)
	default:
		return nil, fmt.Errorf("未知的 blob 驱动: %s", cfg.Blob.Driver)
	}
}

// New 打开存储并创建编目。reg 为 nil 时不注册指标。
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	blobs, err := OpenBlobs(ctx, cfg)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	cat := catalog.New(catalog.Options{
		Config:     cfg,
		Store:      store,
		Blobs:      blobs,
		Compressor: thumbnailer.New(cfg.Compression),
		Registerer: reg,
	})
	return &App{Config: cfg, Store: store, Blobs: blobs, Catalog: cat}, nil
}

// Close 释放缓存并断开存储。
func (a *App) Close(ctx context.Context) error {
	a.Catalog.Close()
	return a.Store.Close(ctx)
}
