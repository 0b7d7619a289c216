package memory

import (
	"Image_Repo_Server/pkg/blobstore"
	"context"
	"fmt"
	"sort"
	"sync"
)

// Provider 在内存中保存所有容器，用于 memory 驱动和测试。
type Provider struct {
	mu         sync.Mutex
	containers map[string]*Container
}

var _ blobstore.Provider = (*Provider)(nil)

func NewProvider() *Provider {
	return &Provider{containers: make(map[string]*Container)}
}

func (p *Provider) Container(name string) blobstore.Container {
	return p.Bucket(name)
}

// Bucket 返回具体类型，测试可以读取计数器或注入故障。
func (p *Provider) Bucket(name string) *Container {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.containers[name]
	if !ok {
		c = &Container{name: name, blobs: make(map[string]object)}
		p.containers[name] = c
	}
	return c
}

type object struct {
	data        []byte
	contentType string
}

type Container struct {
	name      string
	mu        sync.Mutex
	blobs     map[string]object
	downloads int
	uploads   int
	fail      error
}

var _ blobstore.Container = (*Container)(nil)

func (c *Container) Name() string { return c.name }

// FailWith 让之后的每次调用都返回 err，传 nil 恢复正常。
func (c *Container) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}

func (c *Container) Downloads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.downloads
}

func (c *Container) Uploads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploads
}

// Has 不计入下载次数。
func (c *Container) Has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.blobs[name]
	return ok
}

func (c *Container) Download(ctx context.Context, name string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloads++
	if c.fail != nil {
		return nil, c.fail
	}
	obj, ok := c.blobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", blobstore.ErrNotFound, c.name, name)
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

func (c *Container) Upload(ctx context.Context, name string, data []byte, contentType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploads++
	if c.fail != nil {
		return c.fail
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.blobs[name] = object{data: buf, contentType: contentType}
	return nil
}

func (c *Container) Delete(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	if _, ok := c.blobs[name]; !ok {
		return fmt.Errorf("%w: %s/%s", blobstore.ErrNotFound, c.name, name)
	}
	delete(c.blobs, name)
	return nil
}

func (c *Container) List(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}
	names := make([]string, 0, len(c.blobs))
	for name := range c.blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *Container) Rename(ctx context.Context, oldName, newName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	obj, ok := c.blobs[oldName]
	if !ok {
		return fmt.Errorf("%w: %s/%s", blobstore.ErrNotFound, c.name, oldName)
	}
	c.blobs[newName] = obj
	delete(c.blobs, oldName)
	return nil
}
