package maintenance

import (
	"Image_Repo_Server/pkg/blobstore"
	"Image_Repo_Server/pkg/hasher"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Maintenance 定义了维护工具的接口
type Maintenance interface {
	GenerateBlobManifest(ctx context.Context, container blobstore.Container, outputPath string) (string, error)
	BackupDatabase(ctx context.Context, dbURI, dbName, outputPath string) (string, error)
	Close() error
}

type defaultMaintenance struct {
	logger     *log.Logger
	logFile    *os.File
	numWorkers int
	now        func() time.Time
}

// NewMaintenance 创建一个新的维护模块实例，日志写入 logDir/maintenance.log。
func NewMaintenance(logDir string, workerCount int) (Maintenance, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("无法创建日志目录: %w", err)
	}
	logFilePath := filepath.Join(logDir, "maintenance.log")
	file, err := os.OpenFile(logFilePath, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o666)
	if err != nil {
		return nil, fmt.Errorf("无法初始化维护模块日志: %w", err)
	}
	logger := log.New(file, "MAINTENANCE: ", log.LstdFlags|log.Lshortfile)
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &defaultMaintenance{
		logger:     logger,
		logFile:    file,
		numWorkers: workerCount,
		now:        time.Now,
	}, nil
}

func (m *defaultMaintenance) Close() error {
	return m.logFile.Close()
}

// GenerateBlobManifest 并发地下载容器中的每个 blob 并计算 SHA-256，
// 按名称排序写入 "<hash> *<name>" 格式的清单，返回清单路径。
func (m *defaultMaintenance) GenerateBlobManifest(ctx context.Context, container blobstore.Container, outputPath string) (string, error) {
	m.logger.Printf("--- 开始为容器 %s 生成清单 ---", container.Name())

	names, err := container.List(ctx)
	if err != nil {
		return "", fmt.Errorf("列出容器 %s 失败: %w", container.Name(), err)
	}

	var wg sync.WaitGroup
	tasks := make(chan string, m.numWorkers)
	results := make(chan manifestEntry, m.numWorkers)
	for i := 0; i < m.numWorkers; i++ {
		wg.Add(1)
		go m.manifestWorker(ctx, &wg, container, tasks, results)
	}

	// 单独的协程收集结果
	var entries []manifestEntry
	var collectWg sync.WaitGroup
	collectWg.Add(1)
	go func() {
		defer collectWg.Done()
		for e := range results {
			entries = append(entries, e)
		}
	}()

	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		tasks <- name
	}
	close(tasks)
	wg.Wait()
	close(results)
	collectWg.Wait()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.line)
	}
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return "", fmt.Errorf("无法创建输出目录: %w", err)
	}
	manifestFileName := fmt.Sprintf("manifest_%s_%s.txt", container.Name(), m.now().Format("2006-01-02"))
	manifestPath := filepath.Join(outputPath, manifestFileName)
	if err := os.WriteFile(manifestPath, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("无法写入清单文件: %w", err)
	}
	m.logger.Printf("--- 清单生成完毕: %s, 共 %d 项 ---", manifestPath, len(entries))
	return manifestPath, nil
}

// manifestEntry 是清单中的一行和它对应的 blob 名称，用于按名称排序。
type manifestEntry struct {
	name string
	line string
}

// manifestWorker 是下载 blob、计算哈希并格式化输出的工人
func (m *defaultMaintenance) manifestWorker(ctx context.Context, wg *sync.WaitGroup, container blobstore.Container, tasks <-chan string, results chan<- manifestEntry) {
	defer wg.Done()
	for name := range tasks {
		data, err := container.Download(ctx, name)
		if err != nil {
			m.logger.Printf("警告: 下载 %s 失败: %v", name, err)
			continue
		}
		results <- manifestEntry{name: name, line: fmt.Sprintf("%s *%s\n", hasher.CalculateSHA256FromBytes(data), name)}
	}
}

// BackupDatabase 调用 mongodump 工具来备份数据库，返回备份文件路径。
func (m *defaultMaintenance) BackupDatabase(ctx context.Context, dbURI, dbName, outputPath string) (string, error) {
	m.logger.Println("--- 开始执行数据库备份 ---")

	if _, err := exec.LookPath("mongodump"); err != nil {
		m.logger.Println("致命错误: 在系统 PATH 中找不到 'mongodump' 命令。")
		return "", fmt.Errorf("'mongodump' command not found in PATH")
	}

	backupFileName := fmt.Sprintf("db_backup_%s.gz", m.now().Format("2006-01-02_150405"))
	archiveFile := filepath.Join(outputPath, backupFileName)
	m.logger.Printf("数据库备份文件将被保存到: %s", archiveFile)

	cmd := exec.CommandContext(ctx, "mongodump",
		"--uri", dbURI,
		"--db", dbName,
		"--archive="+archiveFile,
		"--gzip",
	)
	cmd.Stdout = m.logger.Writer()
	cmd.Stderr = m.logger.Writer()

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("执行 mongodump 失败: %w", err)
	}

	m.logger.Println("--- 数据库备份成功 ---")
	return archiveFile, nil
}
