package api

import (
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/pkg/cache"
	"Image_Repo_Server/pkg/catalog"
	"Image_Repo_Server/pkg/logger"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const maxUploadMemory = 32 << 20

// --- 图片写操作 ---

func (h *APIHandlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var edit models.ImageEdit
	if !decodeBody(w, r, &edit) {
		return
	}
	edit.RowKey = chi.URLParam(r, "key")
	img, err := h.catalog.Update(r.Context(), edit, actor(r))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, img)
}

func (h *APIHandlers) HandleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RowKeys []string `json:"rowKeys"`
		Value   string   `json:"value"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	results, err := h.catalog.BulkUpdate(r.Context(), chi.URLParam(r, "field"), payload.RowKeys, payload.Value, actor(r))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *APIHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "key"), actor(r)); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandlers) HandleRename(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OldName string `json:"oldName"`
		NewName string `json:"newName"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	img, err := h.catalog.Rename(r.Context(), payload.OldName, payload.NewName, actor(r))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, img)
}

func (h *APIHandlers) HandleApprove(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		User string `json:"user"`
	}
	if r.ContentLength != 0 && !decodeBody(w, r, &payload) {
		return
	}
	if payload.User == "" {
		payload.User = actor(r)
	}
	img, err := h.catalog.Approve(r.Context(), chi.URLParam(r, "key"), payload.User)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, img)
}

func (h *APIHandlers) HandleUnapproved(w http.ResponseWriter, r *http.Request) {
	images, err := h.catalog.Unapproved(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, images)
}

// HandleUpload 接收 multipart 表单：若干 "files" 文件，加上可选的 "data" 字段（UploadMeta 的 JSON 数组）。
func (h *APIHandlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		respondError(w, http.StatusBadRequest, "无法解析表单: "+err.Error())
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		respondError(w, http.StatusBadRequest, "缺少上传文件 'files'")
		return
	}

	files := make([]catalog.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, "读取上传文件失败: "+err.Error())
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			respondError(w, http.StatusBadRequest, "读取上传文件失败: "+err.Error())
			return
		}
		files = append(files, catalog.UploadFile{Name: fh.Filename, Data: data})
	}
	if raw := r.FormValue("data"); raw != "" {
		var metas []models.UploadMeta
		if err := json.Unmarshal([]byte(raw), &metas); err != nil {
			respondError(w, http.StatusBadRequest, "无效的元数据: "+err.Error())
			return
		}
		catalog.AttachMeta(files, metas)
	}

	results := h.catalog.Upload(r.Context(), files, actor(r))
	status := http.StatusOK
	var firstErr error
	for _, res := range results {
		if res.OK {
			firstErr = nil
			break
		}
		if firstErr == nil {
			firstErr = res.Err()
		}
	}
	if firstErr != nil {
		status = statusFor(firstErr)
	}
	respondJSON(w, status, results)
}

func (h *APIHandlers) HandleCheckNames(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Names []string `json:"names"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	names, err := h.catalog.SuggestNames(r.Context(), payload.Names)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]string{"names": names})
}

// HandleSearchByImage 接收 multipart 字段 "image"，按感知哈希返回相似图片。
func (h *APIHandlers) HandleSearchByImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "无法解析表单: "+err.Error())
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "获取上传文件失败: "+err.Error())
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "读取上传文件失败: "+err.Error())
		return
	}
	similar, err := h.catalog.Similar(r.Context(), data, queryInt(r, "maxDistance"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, similar)
}

// --- 图片读取 ---

func writeImage(w http.ResponseWriter, data []byte, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=600")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// serveDefault 在图片不存在时返回占位图，占位图也不存在时返回原来的错误。
func (h *APIHandlers) serveDefault(w http.ResponseWriter, r *http.Request, cause error) {
	data, contentType, err := h.catalog.DefaultImage(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Warn("默认图片不可用", "error", err)
		respondErr(w, r, cause)
		return
	}
	writeImage(w, data, contentType)
}

func (h *APIHandlers) HandleServeOriginal(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := h.catalog.ServeOriginal(r.Context(), chi.URLParam(r, "key"))
	switch {
	case err == nil:
		writeImage(w, data, contentType)
	case errors.Is(err, catalog.ErrNotFound):
		h.serveDefault(w, r, err)
	default:
		respondErr(w, r, err)
	}
}

func (h *APIHandlers) HandleServeCompressed(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "key")
	data, err := h.catalog.ServeCompressed(r.Context(), name)
	switch {
	case err == nil:
		writeImage(w, data, "image/webp")
	case errors.Is(err, cache.ErrCompression):
		logger.FromContext(r.Context()).Warn("压缩失败，回退到原图", "image", name, "error", err)
		h.HandleServeOriginal(w, r)
	case errors.Is(err, catalog.ErrNotFound):
		h.serveDefault(w, r, err)
	default:
		respondErr(w, r, err)
	}
}
