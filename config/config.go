package config

import (
	"sync"
	"time"

	"github.com/spf13/viper"
)

// S3Config 描述 S3 兼容对象存储的连接信息。
type S3Config struct {
	BucketName string `mapstructure:"bucketName" yaml:"bucketName"`
	Region     string `mapstructure:"region" yaml:"region"`
	AccessKey  string `mapstructure:"accessKey" yaml:"accessKey" json:"-"`
	SecretKey  string `mapstructure:"secretKey" yaml:"secretKey" json:"-"`
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint"`
}

// ContainerConfig 给出各个逻辑容器的名称。
type ContainerConfig struct {
	Images     string `mapstructure:"images" yaml:"images"`
	Compressed string `mapstructure:"compressed" yaml:"compressed"`
	Deleted    string `mapstructure:"deleted" yaml:"deleted"`
	Journal    string `mapstructure:"journal" yaml:"journal"`
}

// CacheConfig 中每一个缓存实例都有显式的 TTL，测试可以注入很短的值。
type CacheConfig struct {
	EntityTTL       time.Duration `mapstructure:"entityTTL" yaml:"entityTTL"`
	FilterTTL       time.Duration `mapstructure:"filterTTL" yaml:"filterTTL"`
	ImageTTL        time.Duration `mapstructure:"imageTTL" yaml:"imageTTL"`
	ImageCacheSize  int           `mapstructure:"imageCacheSize" yaml:"imageCacheSize"`
	BlobListTTL     time.Duration `mapstructure:"blobListTTL" yaml:"blobListTTL"`
	CleanupInterval time.Duration `mapstructure:"cleanupInterval" yaml:"cleanupInterval"`
}

type CompressionConfig struct {
	Width   int `mapstructure:"width" yaml:"width"`
	Height  int `mapstructure:"height" yaml:"height"`
	Quality int `mapstructure:"quality" yaml:"quality"`
}

type CatalogConfig struct {
	PartitionKey string `mapstructure:"partitionKey" yaml:"partitionKey"`
	DefaultStart int    `mapstructure:"defaultStart" yaml:"defaultStart"`
	DefaultLimit int    `mapstructure:"defaultLimit" yaml:"defaultLimit"`
	SearchLimit  int    `mapstructure:"searchLimit" yaml:"searchLimit"`
	DefaultImage string `mapstructure:"defaultImage" yaml:"defaultImage"`
}

type Config struct {
	Server struct {
		Port           string        `mapstructure:"port" yaml:"port"`
		Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
		AllowedOrigins []string      `mapstructure:"allowedOrigins" yaml:"allowedOrigins"`
	} `mapstructure:"server" yaml:"server"`

	Database struct {
		Driver string `mapstructure:"driver" yaml:"driver"`
		URI    string `mapstructure:"uri" yaml:"uri"`
		Name   string `mapstructure:"name" yaml:"name"`
	} `mapstructure:"database" yaml:"database"`

	Blob struct {
		Driver     string          `mapstructure:"driver" yaml:"driver"`
		S3         S3Config        `mapstructure:"s3" yaml:"s3"`
		Containers ContainerConfig `mapstructure:"containers" yaml:"containers"`
	} `mapstructure:"blob" yaml:"blob"`

	Logger struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
		Path   string `mapstructure:"path" yaml:"path"`
	} `mapstructure:"logger" yaml:"logger"`

	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Compression CompressionConfig `mapstructure:"compression" yaml:"compression"`
	Catalog     CatalogConfig     `mapstructure:"catalog" yaml:"catalog"`

	Task struct {
		WorkerCount int `mapstructure:"workerCount" yaml:"workerCount"`
	} `mapstructure:"task" yaml:"task"`
}

// C 是启动时加载的配置。运行期间的读取和替换走 Current / Replace。
var (
	C  *Config
	mu sync.RWMutex
)

// Current 返回当前配置。返回值不能修改，需要修改时先复制。
func Current() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return C
}

// Replace 替换当前配置。
func Replace(c *Config) {
	mu.Lock()
	defer mu.Unlock()
	C = c
}

// Default 返回一份完整的默认配置，没有 config.yaml 时也能直接运行。
func Default() *Config {
	c := &Config{}
	c.Server.Port = ":8080"
	c.Server.Timeout = 30 * time.Second
	c.Server.AllowedOrigins = []string{"http://localhost:5173"}

	c.Database.Driver = "mongo"
	c.Database.URI = "mongodb://localhost:27017"
	c.Database.Name = "image_repo"

	c.Blob.Driver = "s3"
	c.Blob.S3.Region = "us-east-1"
	c.Blob.Containers = ContainerConfig{
		Images:     "newimages",
		Compressed: "compressed",
		Deleted:    "deletedimages",
		Journal:    "journal",
	}

	c.Logger.Level = "info"
	c.Logger.Format = "text"
	c.Logger.Path = "logs"

	c.Cache = CacheConfig{
		EntityTTL:       10 * time.Second,
		FilterTTL:       10 * time.Second,
		ImageTTL:        10 * time.Minute,
		ImageCacheSize:  512,
		BlobListTTL:     10 * time.Second,
		CleanupInterval: time.Minute,
	}
	c.Compression = CompressionConfig{Width: 375, Height: 375, Quality: 100}
	c.Catalog = CatalogConfig{
		PartitionKey: "masterFinal",
		DefaultStart: 0,
		DefaultLimit: 50,
		SearchLimit:  30,
		DefaultImage: "default/default-image.jpg",
	}
	c.Task.WorkerCount = 4
	return c
}

// LoadConfig 读取 path 目录下的 config.yaml，缺省项使用 Default() 的值。
func LoadConfig(path string) (err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v, Default())

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
	}

	cfg := Default()
	if err = v.Unmarshal(cfg); err != nil {
		return
	}
	Replace(cfg)
	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.timeout", d.Server.Timeout)
	v.SetDefault("server.allowedOrigins", d.Server.AllowedOrigins)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.uri", d.Database.URI)
	v.SetDefault("database.name", d.Database.Name)
	v.SetDefault("blob.driver", d.Blob.Driver)
	v.SetDefault("blob.s3.region", d.Blob.S3.Region)
	v.SetDefault("blob.containers.images", d.Blob.Containers.Images)
	v.SetDefault("blob.containers.compressed", d.Blob.Containers.Compressed)
	v.SetDefault("blob.containers.deleted", d.Blob.Containers.Deleted)
	v.SetDefault("blob.containers.journal", d.Blob.Containers.Journal)
	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.format", d.Logger.Format)
	v.SetDefault("logger.path", d.Logger.Path)
	v.SetDefault("cache.entityTTL", d.Cache.EntityTTL)
	v.SetDefault("cache.filterTTL", d.Cache.FilterTTL)
	v.SetDefault("cache.imageTTL", d.Cache.ImageTTL)
	v.SetDefault("cache.imageCacheSize", d.Cache.ImageCacheSize)
	v.SetDefault("cache.blobListTTL", d.Cache.BlobListTTL)
	v.SetDefault("cache.cleanupInterval", d.Cache.CleanupInterval)
	v.SetDefault("compression.width", d.Compression.Width)
	v.SetDefault("compression.height", d.Compression.Height)
	v.SetDefault("compression.quality", d.Compression.Quality)
	v.SetDefault("catalog.partitionKey", d.Catalog.PartitionKey)
	v.SetDefault("catalog.defaultStart", d.Catalog.DefaultStart)
	v.SetDefault("catalog.defaultLimit", d.Catalog.DefaultLimit)
	v.SetDefault("catalog.searchLimit", d.Catalog.SearchLimit)
	v.SetDefault("catalog.defaultImage", d.Catalog.DefaultImage)
	v.SetDefault("task.workerCount", d.Task.WorkerCount)
}
