// 文件: internal/api/handlers.go
package api

import (
	"Image_Repo_Server/config"
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/internal/task"
	"Image_Repo_Server/pkg/cache"
	"Image_Repo_Server/pkg/catalog"
	"Image_Repo_Server/pkg/logger"
	"Image_Repo_Server/pkg/query"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"
)

// actorHeader 携带执行写操作的用户名，写入审计记录。
const actorHeader = "X-User"

// APIHandlers 持有所有依赖
type APIHandlers struct {
	catalog     *catalog.Catalog
	taskManager *task.Manager
	configFile  string
}

// NewAPIHandlers 创建一个新的API处理器实例
func NewAPIHandlers(cat *catalog.Catalog, tm *task.Manager, configFile string) *APIHandlers {
	if configFile == "" {
		configFile = "config.yaml"
	}
	return &APIHandlers{
		catalog:     cat,
		taskManager: tm,
		configFile:  configFile,
	}
}

// --- 辅助函数 ---

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

// statusFor 把错误分类映射到 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrStore), errors.Is(err, cache.ErrCompression):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondErr 记录错误并按分类返回。
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("请求失败", "error", err)
	}
	respondError(w, code, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "无效的请求体: "+err.Error())
		return false
	}
	return true
}

func actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(actorHeader))
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func queryInt64(r *http.Request, key string) int64 {
	n, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return n
}

// table 取出路径中的表，找不到时已经写好了响应。
func (h *APIHandlers) table(w http.ResponseWriter, r *http.Request) (catalog.Table, bool) {
	t, err := h.catalog.Table(chi.URLParam(r, "table"))
	if err != nil {
		respondErr(w, r, err)
		return nil, false
	}
	return t, true
}

// imagesTable 只接受主图片表，视图和搜索只在它上面定义。
func (h *APIHandlers) imagesTable(w http.ResponseWriter, r *http.Request) bool {
	t, ok := h.table(w, r)
	if !ok {
		return false
	}
	if t.Kind() != models.TableImages {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("表 %s 不支持这个操作", t.Kind()))
		return false
	}
	return true
}

// --- 表处理器 ---

func (h *APIHandlers) HandleListEntities(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}
	if t.Kind() != models.TableImages {
		items, err := t.List(r.Context())
		if err != nil {
			respondErr(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, items)
		return
	}

	q := r.URL.Query()
	unmatched, _ := strconv.ParseBool(q.Get("unmatched"))
	opts := query.ViewOptions{
		Start:     queryInt(r, "start"),
		Limit:     queryInt(r, "limit"),
		Order:     query.ParseOrder(q.Get("order")),
		Unmatched: unmatched,
		Search:    q.Get("search"),
		Range:     query.DateRange{Start: queryInt64(r, "startDate"), End: queryInt64(r, "endDate")},
	}
	if tags := q.Get("tags"); tags != "" {
		opts.Tags = models.SplitTags(tags)
	}
	page, err := h.catalog.List(r.Context(), opts)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *APIHandlers) HandleGetByName(w http.ResponseWriter, r *http.Request) {
	if !h.imagesTable(w, r) {
		return
	}
	images, err := h.catalog.GetByName(r.Context(), chi.URLParam(r, "imageName"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, images)
}

func (h *APIHandlers) HandleCount(w http.ResponseWriter, r *http.Request) {
	if !h.imagesTable(w, r) {
		return
	}
	total, unmatched, err := h.catalog.Counts(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"total": total, "unmatched": unmatched})
}

func (h *APIHandlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if !h.imagesTable(w, r) {
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		respondError(w, http.StatusBadRequest, "缺少搜索查询参数 'q'")
		return
	}
	images, err := h.catalog.Search(r.Context(), q, query.ParseSearchMode(r.URL.Query().Get("mode")))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, images)
}

func (h *APIHandlers) HandleExtendedSearch(w http.ResponseWriter, r *http.Request) {
	if !h.imagesTable(w, r) {
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		respondError(w, http.StatusBadRequest, "缺少搜索查询参数 'q'")
		return
	}
	result, err := h.catalog.ExtendedSearch(r.Context(), q)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *APIHandlers) HandleFilters(w http.ResponseWriter, r *http.Request) {
	if !h.imagesTable(w, r) {
		return
	}
	filters, err := h.catalog.Filters(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, filters)
}

func (h *APIHandlers) HandleRefreshFilters(w http.ResponseWriter, r *http.Request) {
	if !h.imagesTable(w, r) {
		return
	}
	filters, err := h.catalog.RefreshFilters(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, filters)
}

func (h *APIHandlers) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}
	n, err := t.Refresh(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"table": t.Kind(), "count": n})
}

func (h *APIHandlers) HandleColumns(w http.ResponseWriter, r *http.Request) {
	t, ok := h.table(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, t.Columns())
}

func (h *APIHandlers) HandleCacheSummary(w http.ResponseWriter, r *http.Request) {
	originals, compressed := h.catalog.ImageCacheLen()
	respondJSON(w, http.StatusOK, map[string]any{
		"tables": h.catalog.CacheSummary(),
		"imageBytes": map[string]int{
			"originals":  originals,
			"compressed": compressed,
		},
	})
}

func (h *APIHandlers) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	audits, err := h.catalog.AuditLog(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, audits)
}

// --- 任务处理器 ---

func (h *APIHandlers) HandleStartCompressTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := h.taskManager.StartCompressTask()
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
}

func (h *APIHandlers) HandleStartImportTask(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Path string `json:"path"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	if payload.Path == "" {
		respondError(w, http.StatusBadRequest, "缺少 'path' 字段")
		return
	}
	taskID, err := h.taskManager.StartImportTask(payload.Path)
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
}

func (h *APIHandlers) HandleGetTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	status, err := h.taskManager.GetTaskStatus(taskID)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// --- 配置处理器 ---

// HandleGetConfig 获取当前应用配置。S3 凭据不会出现在 JSON 中。
func (h *APIHandlers) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, config.Current())
}

// HandleUpdateConfig 更新配置并写回 YAML 文件，缓存参数在重启后生效。
// 请求体不能携带 S3 凭据，写回时沿用当前的凭据。
func (h *APIHandlers) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	newConfig := config.Default()
	if !decodeBody(w, r, newConfig) {
		return
	}
	if current := config.Current(); current != nil {
		newConfig.Blob.S3.AccessKey = current.Blob.S3.AccessKey
		newConfig.Blob.S3.SecretKey = current.Blob.S3.SecretKey
	}

	yamlData, err := yaml.Marshal(newConfig)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "序列化配置为YAML失败: "+err.Error())
		return
	}
	if err := os.WriteFile(h.configFile, yamlData, 0600); err != nil {
		respondError(w, http.StatusInternalServerError, "写入配置文件失败: "+err.Error())
		return
	}

	config.Replace(newConfig)
	logger.FromContext(r.Context()).Info("配置已更新", "file", h.configFile)
	respondJSON(w, http.StatusOK, newConfig)
}
