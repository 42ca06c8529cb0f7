// Package mwobserve 暴露 Prometheus 指标
package mwobserve

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 指标定义
var (
	TotalReq = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modwarden_requests_total",
		Help: "请求总数",
	})
	FailReq = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modwarden_requests_failed",
		Help: "请求失败数",
	})
	AnalyzeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "modwarden_analyze_duration_seconds",
		Help:    "单次分析耗时",
		Buckets: prometheus.DefBuckets,
	})
	AnalyzeCacheHit = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modwarden_analyze_cache_hits_total",
		Help: "分析结果缓存命中数",
	})
	ConflictsFound = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modwarden_conflicts_found_total",
		Help: "按严重等级统计的冲突发现数",
	}, []string{"severity"})
	RulesetRebuilds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modwarden_ruleset_rebuilds_total",
		Help: "规则集快照重建次数",
	})
)

// Register 必须在 main 调用一次
func Register() {
	prometheus.MustRegister(TotalReq, FailReq, AnalyzeDuration, AnalyzeCacheHit, ConflictsFound, RulesetRebuilds)
}

// Handler 返回 HTTP 处理器
func Handler() http.Handler { return promhttp.Handler() }
