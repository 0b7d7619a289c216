package task

import (
	"Image_Repo_Server/pkg/catalog"
	"Image_Repo_Server/pkg/scanner"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus 定义了任务可能的状态。
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// TaskKind 是任务的种类。
type TaskKind string

const (
	KindCompress TaskKind = "compress"
	KindImport   TaskKind = "import"
)

// Task 结构体代表一个具体的后台任务。
type Task struct {
	ID        string     `json:"id"`
	Kind      TaskKind   `json:"kind"`
	Status    TaskStatus `json:"status"`
	Progress  float64    `json:"progress"`
	Result    any        `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

// Compressor 为缺少压缩图的图片补齐压缩图。
type Compressor interface {
	CompressMissing(ctx context.Context, progress func(done, total int)) (catalog.CompressReport, error)
}

// Importer 从本地目录导入图片。
type Importer interface {
	ImportDir(ctx context.Context, rootDir string, progress func(done, total int)) (scanner.ImportReport, error)
}

type job func(ctx context.Context, progress func(done, total int)) (any, error)

// Manager 结构体是任务管理器。同一时间只运行一个任务。
type Manager struct {
	tasks map[string]*Task
	mu    sync.RWMutex

	compressor Compressor
	importer   Importer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager 创建并返回一个新的任务管理器实例。
func NewManager(c Compressor, i Importer) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		tasks:      make(map[string]*Task),
		compressor: c,
		importer:   i,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// StartCompressTask 在后台为所有缺少压缩记录的图片生成压缩图。
func (m *Manager) StartCompressTask() (string, error) {
	return m.start(KindCompress, func(ctx context.Context, progress func(done, total int)) (any, error) {
		return m.compressor.CompressMissing(ctx, progress)
	})
}

// StartImportTask 在后台导入 path 目录下的图片。
func (m *Manager) StartImportTask(path string) (string, error) {
	if m.importer == nil {
		return "", fmt.Errorf("未配置导入器")
	}
	return m.start(KindImport, func(ctx context.Context, progress func(done, total int)) (any, error) {
		return m.importer.ImportDir(ctx, path, progress)
	})
}

func (m *Manager) start(kind TaskKind, run job) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return "", fmt.Errorf("任务管理器已关闭")
	}
	for _, task := range m.tasks {
		if task.Status == StatusRunning || task.Status == StatusPending {
			return "", fmt.Errorf("另一个任务正在进行中 (ID: %s)，请等待其完成后再试", task.ID)
		}
	}

	taskID := uuid.New().String()
	newTask := &Task{
		ID:        taskID,
		Kind:      kind,
		Status:    StatusPending,
		StartTime: time.Now(),
	}
	m.tasks[taskID] = newTask

	m.wg.Add(1)
	go m.run(newTask, run)

	return taskID, nil
}

// GetTaskStatus 根据任务ID返回任务当前状态的副本。
func (m *Manager) GetTaskStatus(taskID string) (Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, exists := m.tasks[taskID]
	if !exists {
		return Task{}, fmt.Errorf("找不到任务ID: %s", taskID)
	}
	return *task, nil
}

// Shutdown 取消正在运行的任务并等待它退出。
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) run(task *Task, run job) {
	defer m.wg.Done()

	m.mu.Lock()
	task.Status = StatusRunning
	m.mu.Unlock()
	slog.Info("任务启动", "id", task.ID, "kind", task.Kind)

	result, err := run(m.ctx, func(done, total int) {
		if total <= 0 {
			return
		}
		m.mu.Lock()
		task.Progress = float64(done) * 100 / float64(total)
		m.mu.Unlock()
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	endTime := time.Now()
	task.EndTime = &endTime
	task.Result = result
	if err != nil {
		task.Status = StatusFailed
		task.Error = err.Error()
		slog.Error("任务失败", "id", task.ID, "kind", task.Kind, "error", err)
		return
	}
	task.Status = StatusCompleted
	task.Progress = 100
	slog.Info("任务完成", "id", task.ID, "kind", task.Kind, "duration", endTime.Sub(task.StartTime))
}
