package main

import (
	"Image_Repo_Server/config"
	"Image_Repo_Server/internal/app"
	"Image_Repo_Server/pkg/maintenance"
	"Image_Repo_Server/pkg/query"
	"Image_Repo_Server/pkg/scanner"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
)

func main() {
	// --- 1. 定义命令行参数 ---
	action := flag.String("action", "", "要执行的操作: list, search, filters, compress, import, create-manifest, dump-database")
	keyword := flag.String("query", "", "用于 search 操作的搜索关键词")
	mode := flag.String("mode", "substring", "搜索模式: substring 或 indexed")
	start := flag.Int("start", 0, "分页起点")
	limit := flag.Int("limit", 20, "每页数量")
	order := flag.String("order", "oldest", "排序: oldest 或 newest")
	unmatched := flag.Bool("unmatched", false, "只列出没有拍摄日期的图片")
	dir := flag.String("dir", "", "import 操作的本地目录")
	container := flag.String("container", "", "create-manifest 操作的容器，默认是原图容器")
	output := flag.String("output", "backups", "清单和备份的输出目录")

	flag.Parse()

	if *action == "" {
		fmt.Println("错误: 必须提供 -action 参数。")
		flag.Usage()
		os.Exit(1)
	}

	// --- 2. 初始化应用核心组件 ---
	if err := config.LoadConfig("."); err != nil {
		log.Fatalf("FATAL: 无法加载配置: %v", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	ctx := context.Background()
	a, err := app.New(ctx, config.C, nil)
	if err != nil {
		slog.Error("FATAL: 无法初始化存储", "error", err)
		os.Exit(1)
	}
	defer a.Close(ctx)

	maintenanceModule, err := maintenance.NewMaintenance(config.C.Logger.Path, config.C.Task.WorkerCount)
	if err != nil {
		slog.Error("FATAL: 无法创建维护模块", "error", err)
		os.Exit(1)
	}
	defer maintenanceModule.Close()

	progress := func(done, total int) {
		fmt.Printf("\r进度: %d/%d", done, total)
		if done == total {
			fmt.Println()
		}
	}

	// --- 3. 根据 action 参数执行相应的功能 ---
	switch *action {
	case "list":
		page, err := a.Catalog.List(ctx, query.ViewOptions{
			Start:     *start,
			Limit:     *limit,
			Order:     query.ParseOrder(*order),
			Unmatched: *unmatched,
		})
		if err != nil {
			slog.Error("获取图片列表失败", "error", err)
			return
		}
		fmt.Printf("总共找到 %d 张图片 (从第 %d 张开始，每页 %d 张):\n", page.Total, page.Start, page.Limit)
		for _, img := range page.Items {
			fmt.Printf("  %s  %s  date=%s  tags=%s\n", img.RowKey, img.ImageName, img.DateTaken, img.Tags)
		}

	case "search":
		if *keyword == "" {
			fmt.Println("错误: search 操作需要提供 -query 参数。")
			return
		}
		images, err := a.Catalog.Search(ctx, *keyword, query.ParseSearchMode(*mode))
		if err != nil {
			slog.Error("搜索失败", "error", err)
			return
		}
		fmt.Printf("--- 搜索 '%s' 找到 %d 张图片 ---\n", *keyword, len(images))
		for _, img := range images {
			fmt.Printf("  %s  %s  tags=%s\n", img.RowKey, img.ImageName, img.Tags)
		}

	case "filters":
		filters, err := a.Catalog.Filters(ctx)
		if err != nil {
			slog.Error("获取标签失败", "error", err)
			return
		}
		for _, f := range filters {
			fmt.Printf("  %-24s %5d  %s\n", f.Tag, f.Count, f.Color)
		}

	case "compress":
		slog.Info("开始为缺少压缩图的图片生成压缩图...")
		report, err := a.Catalog.CompressMissing(ctx, progress)
		if err != nil {
			slog.Error("压缩任务失败", "error", err)
			return
		}
		slog.Info("压缩任务完成", "total", report.Total, "compressed", report.Compressed, "failed", report.Failed)

	case "import":
		if *dir == "" {
			fmt.Println("错误: import 操作需要提供 -dir 参数。")
			return
		}
		root, _ := filepath.Abs(*dir)
		importer := scanner.NewImporter(a.Catalog, config.C.Task.WorkerCount, "cli")
		report, err := importer.ImportDir(ctx, root, progress)
		if err != nil {
			slog.Error("导入失败", "error", err)
			return
		}
		slog.Info("导入完成", "scanned", report.Scanned, "uploaded", report.Uploaded,
			"duplicates", report.Duplicates, "damaged", report.Damaged, "repaired", report.Repaired, "failed", report.Failed)

	case "create-manifest":
		name := *container
		if name == "" {
			name = config.C.Blob.Containers.Images
		}
		slog.Info("开始生成 blob 清单...", "container", name)
		outputPath, _ := filepath.Abs(*output)
		path, err := maintenanceModule.GenerateBlobManifest(ctx, a.Blobs.Container(name), outputPath)
		if err != nil {
			slog.Error("生成清单失败", "error", err)
		} else {
			slog.Info("清单生成成功！", "file", path)
		}

	case "dump-database":
		if config.C.Database.Driver != "mongo" {
			fmt.Println("错误: dump-database 只支持 mongo 驱动。")
			return
		}
		slog.Info("开始执行数据库压缩备份...")
		outputPath, _ := filepath.Abs(*output)
		if err := os.MkdirAll(outputPath, 0755); err != nil {
			slog.Error("无法创建输出目录", "error", err)
			return
		}
		path, err := maintenanceModule.BackupDatabase(ctx, config.C.Database.URI, config.C.Database.Name, outputPath)
		if err != nil {
			slog.Error("数据库备份失败", "error", err)
		} else {
			slog.Info("数据库备份成功！", "file", path)
		}

	default:
		fmt.Printf("错误: 未知的 action '%s'\n", *action)
		flag.Usage()
	}
}
