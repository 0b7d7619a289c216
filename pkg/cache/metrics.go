package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 汇总缓存层的计数器。registerer 为 nil 时计数器不注册，测试中可以重复创建。
type Metrics struct {
	EntityHits     *prometheus.CounterVec
	EntityMisses   *prometheus.CounterVec
	EntityRebuilds *prometheus.CounterVec
	ImageHits      *prometheus.CounterVec
	ImageMisses    *prometheus.CounterVec
	Compressions   prometheus.Counter
	CompressFails  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EntityHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "image_repo",
			Subsystem: "entity_cache",
			Name:      "hits_total",
			Help:      "实体缓存命中次数",
		}, []string{"table"}),
		EntityMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "image_repo",
			Subsystem: "entity_cache",
			Name:      "misses_total",
			Help:      "实体缓存未命中（触发全表扫描）次数",
		}, []string{"table"}),
		EntityRebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "image_repo",
			Subsystem: "entity_cache",
			Name:      "rebuilds_total",
			Help:      "实体缓存强制重建次数",
		}, []string{"table"}),
		ImageHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "image_repo",
			Subsystem: "image_cache",
			Name:      "hits_total",
			Help:      "图片字节缓存命中次数",
		}, []string{"tier"}),
		ImageMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "image_repo",
			Subsystem: "image_cache",
			Name:      "misses_total",
			Help:      "图片字节缓存未命中次数",
		}, []string{"tier"}),
		Compressions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "image_repo",
			Subsystem: "image_cache",
			Name:      "compressions_total",
			Help:      "按需压缩次数",
		}),
		CompressFails: f.NewCounter(prometheus.CounterOpts{
			Namespace: "image_repo",
			Subsystem: "image_cache",
			Name:      "compression_failures_total",
			Help:      "按需压缩失败次数",
		}),
	}
}
