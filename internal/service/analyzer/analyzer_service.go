// Package analyzer 把规范化、模糊匹配、冲突检测与顺序解析串成确定性流水线
package analyzer

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"ModWarden/internal/catalog"
	"ModWarden/internal/core/domain"
	"ModWarden/internal/core/port"
	"ModWarden/internal/detector"
	"ModWarden/internal/mwobserve"
	"ModWarden/internal/normalizer"
	"ModWarden/internal/resolver"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

// 断言 *Service 实现 port.Analyzer 接口，编译期校验
var _ port.Analyzer = (*Service)(nil)

// Options 是分析服务的可调参数
type Options struct {
	NormalizerOpts normalizer.Options
	MatchPolicy    catalog.Policy
	LimitPolicy    detector.LimitPolicy
	CacheSize      int           // 结果缓存条数
	CacheTTL       time.Duration // 结果缓存存活时间
}

// DefaultOptions 返回默认参数
func DefaultOptions() Options {
	return Options{
		NormalizerOpts: normalizer.DefaultOptions(),
		MatchPolicy:    catalog.DefaultPolicy(),
		LimitPolicy:    detector.DefaultLimitPolicy(),
		CacheSize:      2048,
		CacheTTL:       10 * time.Minute,
	}
}

// Service 是分析流水线的入口实现。
// 整个分析过程持有同一个规则集快照指针：并发发布新快照不影响进行中的请求。
type Service struct {
	provider port.RulesetProvider
	matcher  *catalog.Matcher
	opts     Options

	cache *lru.LRU[string, *domain.AnalysisResult]
	group singleflight.Group
}

// New 创建分析服务
func New(provider port.RulesetProvider, opts Options) *Service {
	return &Service{
		provider: provider,
		matcher:  catalog.NewMatcher(opts.MatchPolicy),
		opts:     opts,
		cache:    lru.NewLRU[string, *domain.AnalysisResult](opts.CacheSize, nil, opts.CacheTTL),
	}
}

// Analyze 执行一次完整分析。
// 同一 (规范化输入, 规则集版本) 的结果带TTL缓存；并发的相同请求
// 经 singleflight 合并为一次计算。缓存命中与重算产出逐字节一致
// （GeneratedAt 除外，它不参与缓存键）。
func (s *Service) Analyze(ctx context.Context, req port.AnalyzeRequest) (*domain.AnalysisResult, error) {
	start := time.Now()
	defer func() {
		mwobserve.AnalyzeDuration.Observe(time.Since(start).Seconds())
	}()

	rs, err := s.snapshot(req)
	if err != nil {
		return nil, err
	}

	plugins, warnings := normalizer.Normalize(req.RawList, s.opts.NormalizerOpts)
	hash := inputHash(plugins)
	cacheKey := rs.VersionTag + "|" + hash

	if cached, ok := s.cache.Get(cacheKey); ok {
		mwobserve.AnalyzeCacheHit.Inc()
		return resultWithTimestamp(cached), nil
	}

	v, err, _ := s.group.Do(cacheKey, func() (interface{}, error) {
		if cached, ok := s.cache.Get(cacheKey); ok {
			mwobserve.AnalyzeCacheHit.Inc()
			return cached, nil
		}
		result := s.run(plugins, warnings, hash, rs)
		s.cache.Add(cacheKey, result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return resultWithTimestamp(v.(*domain.AnalysisResult)), nil
}

// snapshot 解析请求应使用的快照：版本锁定优先，否则取当前发布版本
func (s *Service) snapshot(req port.AnalyzeRequest) (*domain.Ruleset, error) {
	if req.GameID == "" {
		return nil, port.ErrGameNotFound
	}
	if req.RulesetVersion != "" {
		return s.provider.SnapshotByVersion(req.GameID, req.RulesetVersion)
	}
	return s.provider.Snapshot(req.GameID)
}

// run 执行流水线主体：匹配 → 检测 → 解析
func (s *Service) run(
	plugins []domain.PluginRecord,
	warnings []domain.ParseWarning,
	hash string,
	rs *domain.Ruleset,
) *domain.AnalysisResult {

	// 未识别名称解析：目录与规则都不认识的名称尝试模糊建议
	unresolved := make([]domain.UnresolvedName, 0)
	for i := range plugins {
		name := plugins[i].CanonicalName
		if rs.InCatalog(name) || rs.KnownToRules(name) {
			continue
		}
		unresolved = append(unresolved, domain.UnresolvedName{
			RawName:    plugins[i].RawName, // 保留用户原始拼写，便于回溯输入
			Suggestion: s.matcher.Match(name, rs),
		})
	}

	conflicts, constraints := detector.Detect(plugins, warnings, unresolved, rs, s.opts.LimitPolicy)
	for i := range conflicts {
		mwobserve.ConflictsFound.WithLabelValues(string(conflicts[i].Severity)).Inc()
	}

	result := &domain.AnalysisResult{
		InputHash:       hash,
		RulesetVersion:  rs.VersionTag,
		Conflicts:       conflicts,
		UnresolvedNames: unresolved,
		Warnings:        warnings,
		GeneratedAt:     time.Now().UTC(),
	}

	order, orderErr := resolver.Resolve(plugins, constraints)
	if orderErr != nil {
		result.OrderError = orderErr
		slog.Info("排序约束存在环，无法给出建议顺序",
			"rules", orderErr.InvolvedRules, "plugins", orderErr.InvolvedPlugins)
	} else {
		result.ProposedOrder = order
	}
	return result
}

// inputHash 对规范化后的列表取稳定散列。
// 散列覆盖规范名、启用状态与提交顺序，对原始文本的空白与注释差异不敏感。
func inputHash(plugins []domain.PluginRecord) string {
	h, _ := blake2b.New256(nil)
	for _, p := range plugins {
		state := "0"
		if p.Enabled {
			state = "1"
		}
		fmt.Fprintf(h, "%s\x00%s\x00%d\n", p.CanonicalName, state, p.Position)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// resultWithTimestamp 返回带新时间戳的浅拷贝，缓存内的结果保持不变
func resultWithTimestamp(r *domain.AnalysisResult) *domain.AnalysisResult {
	out := *r
	out.GeneratedAt = time.Now().UTC()
	return &out
}
