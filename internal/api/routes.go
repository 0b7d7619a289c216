// 文件: internal/api/routes.go
package api

import (
	"Image_Repo_Server/config"
	"Image_Repo_Server/internal/task"
	"Image_Repo_Server/pkg/catalog"
	"Image_Repo_Server/pkg/logger"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 注册所有API路由。configFile 是 PUT /config 写回的文件。
func RegisterRoutes(cat *catalog.Catalog, tm *task.Manager, configFile string) *chi.Mux {
	r := chi.NewRouter()

	// --- 中间件 (Middleware) ---
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := []string{"http://localhost:5173"}
	if config.C != nil && len(config.C.Server.AllowedOrigins) > 0 {
		origins = config.C.Server.AllowedOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", actorHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := NewAPIHandlers(cat, tm, configFile)

	// --- API路由 ---
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tables/{table}", func(r chi.Router) {
			r.Get("/entities", h.HandleListEntities)
			r.Get("/entities/{imageName}", h.HandleGetByName)
			r.Get("/count", h.HandleCount)
			r.Get("/search", h.HandleSearch)
			r.Get("/search/extended", h.HandleExtendedSearch)
			r.Get("/filters", h.HandleFilters)
			r.Post("/filters/refresh", h.HandleRefreshFilters)
			r.Post("/rebuild", h.HandleRebuild)
			r.Get("/columns", h.HandleColumns)
		})
		r.Get("/cache/summary", h.HandleCacheSummary)
		r.Get("/audits", h.HandleAuditLog)

		r.Route("/images", func(r chi.Router) {
			r.Post("/upload", h.HandleUpload)
			r.Post("/rename", h.HandleRename)
			r.Post("/names/check", h.HandleCheckNames)
			r.Post("/similar", h.HandleSearchByImage)
			r.Get("/unapproved", h.HandleUnapproved)
			r.Post("/bulk/{field}", h.HandleBulkUpdate)
			// PUT 的 {key} 是 rowKey，其余路由的 {key} 是图片名
			r.Put("/{key}", h.HandleUpdate)
			r.Delete("/{key}", h.HandleDelete)
			r.Post("/{key}/approve", h.HandleApprove)
			r.Get("/{key}/raw", h.HandleServeOriginal)
			r.Get("/{key}/compressed", h.HandleServeCompressed)
		})

		r.Route("/journal", func(r chi.Router) {
			r.Get("/", h.HandleListJournal)
			r.Post("/{folder}", h.HandleMakeFolder)
			r.Post("/{folder}/names", h.HandleAddName)
			r.Put("/{folder}/names/{name}", h.HandleChangeName)
			r.Delete("/{folder}/names/{name}", h.HandleDeleteName)
			r.Post("/{folder}/names/{name}/images", h.HandleAddJournalImages)
			r.Delete("/{folder}/names/{name}/images", h.HandleRemoveJournalImages)
			r.Get("/{folder}/names/{name}/text", h.HandleReadText)
			r.Put("/{folder}/names/{name}/text", h.HandleWriteText)
		})

		r.Post("/tasks/compress", h.HandleStartCompressTask)
		r.Post("/tasks/import", h.HandleStartImportTask)
		r.Get("/tasks/{taskId}", h.HandleGetTaskStatus)
		r.Get("/config", h.HandleGetConfig)
		r.Put("/config", h.HandleUpdateConfig)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requestLogger 把带请求ID的 logger 放进请求的 context。
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.CtxWithLogger(r.Context(),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
