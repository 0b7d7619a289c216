package mongo

import (
	"Image_Repo_Server/config"
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/pkg/database"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store 是 database.Store 接口的MongoDB实现。每张逻辑表对应一个集合。
type Store struct {
	client      *mongo.Client
	db          *mongo.Database
	images      *table[models.Image]
	audits      *table[models.Audit]
	journal     *table[models.JournalEntry]
	compression *table[models.CompressionRecord]
}

// 确保 Store 实现了 database.Store 接口 (编译时检查)
var _ database.Store = (*Store)(nil)

// table 封装了一个集合上的通用实体操作。
type table[T models.Entity[T]] struct {
	coll *mongo.Collection
}

// NewStore 创建并返回一个新的 Store 实例，并建立与MongoDB的连接。
func NewStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	slog.Info("正在连接到 MongoDB...", "uri", cfg.Database.URI)
	clientCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOpts := options.Client().ApplyURI(cfg.Database.URI)
	client, err := mongo.Connect(clientCtx, clientOpts)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(clientCtx, nil); err != nil {
		return nil, err
	}
	slog.Info("MongoDB 连接成功")

	db := client.Database(cfg.Database.Name)
	return &Store{
		client:      client,
		db:          db,
		images:      &table[models.Image]{coll: db.Collection(string(models.TableImages))},
		audits:      &table[models.Audit]{coll: db.Collection(string(models.TableAudits))},
		journal:     &table[models.JournalEntry]{coll: db.Collection(string(models.TableJournal))},
		compression: &table[models.CompressionRecord]{coll: db.Collection(string(models.TableCompression))},
	}, nil
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

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes 在每个集合上建立 (partitionKey, rowKey) 唯一索引。
func (s *Store) EnsureIndexes(ctx context.Context) error {
	slog.Info("正在确保数据库索引存在...")
	keyIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "partitionKey", Value: 1}, {Key: "rowKey", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("idx_partition_row_unique"),
	}
	for _, coll := range s.collections() {
		indexes := []mongo.IndexModel{keyIndex}
		if coll.Name() == string(models.TableImages) {
			indexes = append(indexes, mongo.IndexModel{
				Keys:    bson.D{{Key: "imageName", Value: 1}},
				Options: options.Index().SetName("idx_image_name"),
			})
		}
		if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
			slog.Error("创建索引失败", "collection", coll.Name(), "error", err)
			return err
		}
		slog.Info("集合索引已验证/创建。", "collection", coll.Name())
	}
	return nil
}

// DropAllCollections 删除当前数据库中的所有已知集合，主要用于测试环境的重置。
func (s *Store) DropAllCollections(ctx context.Context) error {
	slog.Warn("正在删除所有集合...", "database", s.db.Name())
	var firstErr error
	for _, coll := range s.collections() {
		if err := coll.Drop(ctx); err != nil {
			slog.Error("删除集合失败", "collection", coll.Name(), "error", err)
			// 即使出错也继续尝试删除其他集合
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr == nil {
		slog.Info("所有集合已成功删除。")
	}
	return firstErr
}

func (s *Store) collections() []*mongo.Collection {
	return []*mongo.Collection{s.images.coll, s.audits.coll, s.journal.coll, s.compression.coll}
}

// --- table 方法实现 ---

// ListAll 返回集合中的全部实体。
func (t *table[T]) ListAll(ctx context.Context) ([]T, error) {
	cursor, err := t.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var list []T
	if err = cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (t *table[T]) Get(ctx context.Context, partitionKey, rowKey string) (*T, error) {
	var entity T
	err := t.coll.FindOne(ctx, keyFilter(partitionKey, rowKey)).Decode(&entity)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return &entity, nil
}

func (t *table[T]) Create(ctx context.Context, entity T) (T, error) {
	stamped := database.Stamp(entity)
	if _, err := t.coll.InsertOne(ctx, stamped); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return entity, fmt.Errorf("%w: %s", database.ErrDuplicateKey, entity.EntityKeys().RowKey)
		}
		return entity, err
	}
	return stamped, nil
}

// Update 整体替换 (partitionKey, rowKey) 对应的文档。
func (t *table[T]) Update(ctx context.Context, entity T) (T, error) {
	k := entity.EntityKeys()
	filter := keyFilter(k.PartitionKey, k.RowKey)
	if k.ETag != "" {
		filter["etag"] = k.ETag
	}
	stamped := database.Stamp(entity)
	res, err := t.coll.ReplaceOne(ctx, filter, stamped)
	if err != nil {
		return entity, err
	}
	if res.MatchedCount == 0 {
		if k.ETag != "" {
			n, err := t.coll.CountDocuments(ctx, keyFilter(k.PartitionKey, k.RowKey))
			if err != nil {
				return entity, err
			}
			if n > 0 {
				return entity, fmt.Errorf("%w: %s", database.ErrETagMismatch, k.RowKey)
			}
		}
		return entity, fmt.Errorf("%w: %s", database.ErrNotFound, k.RowKey)
	}
	return stamped, nil
}

func (t *table[T]) Delete(ctx context.Context, partitionKey, rowKey string) error {
	res, err := t.coll.DeleteOne(ctx, keyFilter(partitionKey, rowKey))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", database.ErrNotFound, rowKey)
	}
	return nil
}

func keyFilter(partitionKey, rowKey string) bson.M {
	return bson.M{"partitionKey": partitionKey, "rowKey": rowKey}
}
