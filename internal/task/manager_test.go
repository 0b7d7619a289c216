package task

import (
	"Image_Repo_Server/pkg/catalog"
	"Image_Repo_Server/pkg/scanner"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeCompressor struct {
	release chan struct{}
	err     error
}

func (f *fakeCompressor) CompressMissing(ctx context.Context, progress func(done, total int)) (catalog.CompressReport, error) {
	progress(1, 2)
	select {
	case <-f.release:
	case <-ctx.Done():
		return catalog.CompressReport{}, ctx.Err()
	}
	progress(2, 2)
	return catalog.CompressReport{Total: 2, Compressed: 2}, f.err
}

type fakeImporter struct{}

func (fakeImporter) ImportDir(ctx context.Context, rootDir string, progress func(done, total int)) (scanner.ImportReport, error) {
	return scanner.ImportReport{Scanned: 1, Uploaded: 1}, nil
}

func waitFor(t *testing.T, m *Manager, id string, want TaskStatus) Task {
	t.Helper()
	var task Task
	require.Eventually(t, func() bool {
		var err error
		task, err = m.GetTaskStatus(id)
		return err == nil && task.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return task
}

func TestCompressTaskCompletes(t *testing.T) {
	defer goleak.VerifyNone(t)
	comp := &fakeCompressor{release: make(chan struct{})}
	m := NewManager(comp, fakeImporter{})
	defer m.Shutdown()

	id, err := m.StartCompressTask()
	require.NoError(t, err)

	running := waitFor(t, m, id, StatusRunning)
	assert.Equal(t, KindCompress, running.Kind)

	_, err = m.StartImportTask("/tmp")
	assert.Error(t, err, "同一时间只允许一个任务")

	close(comp.release)
	done := waitFor(t, m, id, StatusCompleted)
	assert.Equal(t, float64(100), done.Progress)
	assert.Equal(t, catalog.CompressReport{Total: 2, Compressed: 2}, done.Result)
	require.NotNil(t, done.EndTime)
}

func TestTaskFailureIsRecorded(t *testing.T) {
	defer goleak.VerifyNone(t)
	comp := &fakeCompressor{release: make(chan struct{}), err: errors.New("boom")}
	close(comp.release)
	m := NewManager(comp, nil)
	defer m.Shutdown()

	id, err := m.StartCompressTask()
	require.NoError(t, err)
	failed := waitFor(t, m, id, StatusFailed)
	assert.Equal(t, "boom", failed.Error)

	_, err = m.StartImportTask("/tmp")
	assert.Error(t, err, "没有导入器")
}

func TestImportTask(t *testing.T) {
	defer goleak.VerifyNone(t)
	m := NewManager(&fakeCompressor{}, fakeImporter{})
	defer m.Shutdown()

	id, err := m.StartImportTask("/photos")
	require.NoError(t, err)
	done := waitFor(t, m, id, StatusCompleted)
	assert.Equal(t, scanner.ImportReport{Scanned: 1, Uploaded: 1}, done.Result)
}

func TestShutdownCancelsRunningTask(t *testing.T) {
	defer goleak.VerifyNone(t)
	m := NewManager(&fakeCompressor{release: make(chan struct{})}, nil)

	id, err := m.StartCompressTask()
	require.NoError(t, err)
	waitFor(t, m, id, StatusRunning)

	m.Shutdown()
	task, err := m.GetTaskStatus(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Contains(t, task.Error, context.Canceled.Error())

	_, err = m.StartCompressTask()
	assert.Error(t, err)
}

func TestUnknownTask(t *testing.T) {
	m := NewManager(&fakeCompressor{}, nil)
	defer m.Shutdown()
	_, err := m.GetTaskStatus("nope")
	assert.Error(t, err)
}
