package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics 入库与检索管道的Prometheus指标
type PipelineMetrics struct {
	ingestCounter   *prometheus.CounterVec
	ingestDuration  *prometheus.HistogramVec
	chunksIndexed   prometheus.Counter
	queryCounter    *prometheus.CounterVec
	queryDuration   prometheus.Histogram
	cacheHitCounter *prometheus.CounterVec
}

// NewPipelineMetrics 创建并注册管道指标
func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		ingestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "document_ingest_total",
				Help: "Total number of document ingestion attempts",
			},
			[]string{"status"}, // stored, duplicate, failed
		),
		ingestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "document_ingest_duration_seconds",
				Help:    "Duration of the full ingestion pipeline",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		),
		chunksIndexed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "document_chunks_indexed_total",
				Help: "Total number of chunks written to the vector index",
			},
		),
		queryCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_queries_total",
				Help: "Total number of RAG queries",
			},
			[]string{"status"}, // answered, not_available, failed
		),
		queryDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rag_query_duration_seconds",
				Help:    "Duration of the retrieval and generation path",
				Buckets: prometheus.DefBuckets,
			},
		),
		cacheHitCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_query_cache_total",
				Help: "RAG query cache lookups",
			},
			[]string{"result"}, // hit, miss
		),
	}
}

// ObserveIngest 记录一次入库
func (m *PipelineMetrics) ObserveIngest(status, format string, duration time.Duration, chunks int) {
	if m == nil {
		return
	}
	m.ingestCounter.WithLabelValues(status).Inc()
	m.ingestDuration.WithLabelValues(format).Observe(duration.Seconds())
	if chunks > 0 {
		m.chunksIndexed.Add(float64(chunks))
	}
}

// ObserveQuery 记录一次问答
func (m *PipelineMetrics) ObserveQuery(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.queryCounter.WithLabelValues(status).Inc()
	m.queryDuration.Observe(duration.Seconds())
}

// ObserveCache 记录一次缓存查找
func (m *PipelineMetrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHitCounter.WithLabelValues("hit").Inc()
	} else {
		m.cacheHitCounter.WithLabelValues("miss").Inc()
	}
}
