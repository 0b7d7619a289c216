// Package scanner 把本地目录中的图片导入到编目中。
package scanner

import (
	"Image_Repo_Server/pkg/catalog"
	"Image_Repo_Server/pkg/hasher"
	"Image_Repo_Server/pkg/logger"
	"Image_Repo_Server/pkg/thumbnailer"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Uploader 是导入器需要的编目能力。
type Uploader interface {
	Upload(ctx context.Context, files []catalog.UploadFile, uploader string) []catalog.ItemResult
}

// ImportReport 汇总一次导入。
type ImportReport struct {
	Scanned    int `json:"scanned"`
	Damaged    int `json:"damaged"`
	Duplicates int `json:"duplicates"`
	Repaired   int `json:"repaired"`
	Uploaded   int `json:"uploaded"`
	Failed     int `json:"failed"`
}

// fileGroup 是一个"文件家族"：基础文件 name.ext 和它的编号副本 name (n).ext。
type fileGroup struct {
	key           string
	basePath      string
	numberedFiles map[int]string
}

type checked struct {
	path    string
	hash    string
	damaged bool
}

// candidate 是最终要上传的文件，name 是上传使用的文件名。
type candidate struct {
	path string
	name string
}

type Importer struct {
	target     Uploader
	numWorkers int
	uploader   string
}

// NewImporter 创建导入器，workerCount <= 0 时使用 CPU 数。uploader 记录在每个实体上。
func NewImporter(target Uploader, workerCount int, uploader string) *Importer {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &Importer{target: target, numWorkers: workerCount, uploader: uploader}
}

var familyPattern = regexp.MustCompile(`^(.*?)(?: \((\d+)\))?(\.\w+)$`)

// ImportDir 扫描目录，跳过损坏和内容重复的文件，再逐个上传。
// 基础文件损坏而某个编号副本健康时，用副本的内容以基础文件名上传。
// progress 在每个文件上传后调用，可以为 nil。
func (im *Importer) ImportDir(ctx context.Context, rootDir string, progress func(done, total int)) (ImportReport, error) {
	log := logger.FromContext(ctx)
	var report ImportReport

	groups, err := scanAndGroupFiles(rootDir)
	if err != nil {
		return report, fmt.Errorf("扫描目录 %s 失败: %w", rootDir, err)
	}
	var paths []string
	for _, g := range groups {
		if g.basePath != "" {
			paths = append(paths, g.basePath)
		}
		for _, p := range g.numberedFiles {
			paths = append(paths, p)
		}
	}
	report.Scanned = len(paths)
	log.Info("导入扫描完成", "dir", rootDir, "files", len(paths), "families", len(groups))

	health := im.checkAll(paths)
	candidates := im.choose(groups, health, &report)

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		data, err := os.ReadFile(c.path)
		if err != nil {
			report.Failed++
			log.Warn("读取文件失败", "path", c.path, "error", err)
			continue
		}
		res := im.target.Upload(ctx, []catalog.UploadFile{{Name: c.name, Data: data}}, im.uploader)
		if len(res) == 1 && res[0].OK {
			report.Uploaded++
		} else {
			report.Failed++
			if len(res) == 1 {
				log.Warn("导入上传失败", "file", c.name, "error", res[0].Error)
			}
		}
		if progress != nil {
			progress(i+1, len(candidates))
		}
	}
	log.Info("导入结束", "uploaded", report.Uploaded, "failed", report.Failed,
		"duplicates", report.Duplicates, "damaged", report.Damaged, "repaired", report.Repaired)
	return report, nil
}

func scanAndGroupFiles(rootDir string) (map[string]*fileGroup, error) {
	groups := make(map[string]*fileGroup)
	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isImageExtension(path) {
			return nil
		}
		matches := familyPattern.FindStringSubmatch(d.Name())
		if len(matches) < 4 {
			return nil
		}
		baseName, numberStr, ext := matches[1], matches[2], matches[3]
		key := strings.ToLower(filepath.Join(filepath.Dir(path), baseName+ext))
		g, ok := groups[key]
		if !ok {
			g = &fileGroup{key: key, numberedFiles: make(map[int]string)}
			groups[key] = g
		}
		if numberStr == "" {
			g.basePath = path
		} else if num, _ := strconv.Atoi(numberStr); num > 0 {
			g.numberedFiles[num] = path
		}
		return nil
	})
	return groups, err
}

// checkAll 并发地检查每个文件能否解码并计算内容哈希。
func (im *Importer) checkAll(paths []string) map[string]checked {
	tasks := make(chan string, len(paths))
	results := make(chan checked, len(paths))
	var wg sync.WaitGroup
	for i := 0; i < im.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range tasks {
				results <- checkFile(p)
			}
		}()
	}
	for _, p := range paths {
		tasks <- p
	}
	close(tasks)
	wg.Wait()
	close(results)

	out := make(map[string]checked, len(paths))
	for r := range results {
		out[r.path] = r
	}
	return out
}

func checkFile(path string) checked {
	data, err := os.ReadFile(path)
	if err != nil {
		return checked{path: path, damaged: true}
	}
	_, _, err = thumbnailer.Decode(data)
	return checked{path: path, hash: hasher.CalculateSHA256FromBytes(data), damaged: err != nil}
}

// choose 按家族决定上传哪些文件，结果按上传名排序。内容相同的文件只保留一个。
func (im *Importer) choose(groups map[string]*fileGroup, health map[string]checked, report *ImportReport) []candidate {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]bool)
	var out []candidate
	add := func(path, name string) {
		h := health[path]
		if seen[h.hash] {
			report.Duplicates++
			return
		}
		seen[h.hash] = true
		out = append(out, candidate{path: path, name: name})
	}

	for _, k := range keys {
		g := groups[k]
		nums := make([]int, 0, len(g.numberedFiles))
		for n := range g.numberedFiles {
			nums = append(nums, n)
		}
		sort.Ints(nums)

		repairedWith := ""
		if g.basePath != "" {
			if !health[g.basePath].damaged {
				add(g.basePath, filepath.Base(g.basePath))
			} else {
				report.Damaged++
				for _, n := range nums {
					if p := g.numberedFiles[n]; !health[p].damaged {
						repairedWith = p
						report.Repaired++
						add(p, filepath.Base(g.basePath))
						break
					}
				}
			}
		}
		for _, n := range nums {
			p := g.numberedFiles[n]
			switch {
			case p == repairedWith:
			case health[p].damaged:
				report.Damaged++
			default:
				add(p, filepath.Base(p))
			}
		}
	}
	return out
}

func isImageExtension(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	default:
		return false
	}
}
