package s3

import (
	"Image_Repo_Server/config"
	"Image_Repo_Server/pkg/blobstore"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Provider 把每个逻辑容器映射到同一个桶下的 "<container>/" 前缀。
type Provider struct {
	client *s3.Client
	bucket string
}

var _ blobstore.Provider = (*Provider)(nil)

// NewProvider 根据配置创建 S3 客户端。Endpoint 非空时使用路径风格（MinIO 等兼容服务）。
func NewProvider(ctx context.Context, cfg config.S3Config) (*Provider, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("未配置 S3 桶名")
	}
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 50,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		Timeout: 60 * time.Second,
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("加载 AWS 配置失败: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	slog.Info("S3 客户端已创建", "bucket", cfg.BucketName, "endpoint", cfg.Endpoint)
	return &Provider{client: client, bucket: cfg.BucketName}, nil
}

func (p *Provider) Container(name string) blobstore.Container {
	return &container{client: p.client, bucket: p.bucket, name: name}
}

type container struct {
	client *s3.Client
	bucket string
	name   string
}

func (c *container) Name() string { return c.name }

func (c *container) key(name string) string {
	return c.name + "/" + name
}

func (c *container) Download(ctx context.Context, name string) ([]byte, error) {
	resp, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &c.bucket,
		Key:    aws.String(c.key(name)),
	})
	if err != nil {
		return nil, c.mapErr(name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取 blob %s/%s 失败: %w", c.name, name, err)
	}
	return data, nil
}

func (c *container) Upload(ctx context.Context, name string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = blobstore.ContentType(name)
	}
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &c.bucket,
		Key:           aws.String(c.key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("上传 blob %s/%s 失败: %w", c.name, name, err)
	}
	return nil
}

// Delete 对不存在的对象不报错，这是 S3 的语义。
func (c *container) Delete(ctx context.Context, name string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &c.bucket,
		Key:    aws.String(c.key(name)),
	})
	if err != nil {
		return c.mapErr(name, err)
	}
	return nil
}

func (c *container) List(ctx context.Context) ([]string, error) {
	prefix := c.name + "/"
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: &c.bucket,
		Prefix: aws.String(prefix),
	})

	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("列出容器 %s 失败: %w", c.name, err)
		}
		for _, obj := range page.Contents {
			names = append(names, strings.TrimPrefix(aws.ToString(obj.Key), prefix))
		}
	}
	return names, nil
}

// Rename 是复制后删除，S3 没有原子重命名。
func (c *container) Rename(ctx context.Context, oldName, newName string) error {
	_, err := c.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &c.bucket,
		CopySource: aws.String(escapePath(c.bucket + "/" + c.key(oldName))),
		Key:        aws.String(c.key(newName)),
	})
	if err != nil {
		return c.mapErr(oldName, err)
	}
	return c.Delete(ctx, oldName)
}

func (c *container) mapErr(name string, err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s/%s", blobstore.ErrNotFound, c.name, name)
	}
	return fmt.Errorf("blob %s/%s 操作失败: %w", c.name, name, err)
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
