package mwmiddleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterEntry 存储限制器和最后访问时间
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 管理全局与按IP两层速率限制。
// 分析接口是 CPU 密集型操作，全局层保护引擎整体吞吐，IP 层防止单一客户端独占。
type RateLimiter struct {
	globalLimiter *rate.Limiter

	ipLimiters map[string]*limiterEntry
	ipMu       sync.Mutex
	ipRate     rate.Limit
	ipBurst    int
}

// NewRateLimiter 创建两层速率限制器并启动清理守护
func NewRateLimiter(globalRate float64, globalBurst int, ipRate float64, ipBurst int) *RateLimiter {
	rl := &RateLimiter{
		globalLimiter: rate.NewLimiter(rate.Limit(globalRate), globalBurst),
		ipLimiters:    make(map[string]*limiterEntry),
		ipRate:        rate.Limit(ipRate),
		ipBurst:       ipBurst,
	}
	go rl.cleanupDaemon()
	return rl
}

// cleanupDaemon 定期清理不活跃的IP条目
func (rl *RateLimiter) cleanupDaemon() {
	for {
		time.Sleep(10 * time.Minute)
		rl.ipMu.Lock()
		for ip, entry := range rl.ipLimiters {
			if time.Since(entry.lastSeen) > 15*time.Minute {
				delete(rl.ipLimiters, ip)
			}
		}
		rl.ipMu.Unlock()
	}
}

// getClientIP 从请求中获取客户端IP地址，考虑代理情况
func getClientIP(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	ip = strings.TrimSpace(strings.Split(ip, ",")[0])
	if ip != "" {
		return ip
	}
	ip = r.Header.Get("X-Real-IP")
	if ip != "" {
		return ip
	}
	ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	return ip
}

// allowIP 返回指定IP此刻是否放行
func (rl *RateLimiter) allowIP(ip string) bool {
	rl.ipMu.Lock()
	entry, exists := rl.ipLimiters[ip]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.ipRate, rl.ipBurst)}
		rl.ipLimiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	rl.ipMu.Unlock()
	return entry.limiter.Allow()
}

// Middleware 返回组合了全局与IP两层限制的HTTP中间件
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.globalLimiter.Allow() {
			errResp(w, http.StatusTooManyRequests, "系统繁忙，请稍后再试 (global limit)")
			return
		}
		if !rl.allowIP(getClientIP(r)) {
			errResp(w, http.StatusTooManyRequests, "您的请求过于频繁，请稍后再试 (per-ip limit)")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// errResp 的一个本地副本
func errResp(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
