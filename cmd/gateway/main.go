// file: cmd/gateway/main.go

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ModWarden/internal/adapter/rulerepo/sqlite"
	"ModWarden/internal/adapter/snapstore"
	"ModWarden/internal/catalog"
	"ModWarden/internal/core/port"
	"ModWarden/internal/detector"
	"ModWarden/internal/mwmiddleware"
	"ModWarden/internal/mwobserve"
	"ModWarden/internal/reliability"
	"ModWarden/internal/rulestore"
	"ModWarden/internal/service/analyzer"
	"ModWarden/internal/service/enrich"
	"ModWarden/internal/transport/http/middleware"
	"ModWarden/internal/transport/http/router"

	"github.com/spf13/viper"
)

const version = "v0.3.0"

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	Pprof    string `mapstructure:"pprof_addr"`
}

type PathsConfig struct {
	MasterlistDir string `mapstructure:"masterlist_dir"`
	SnapshotDir   string `mapstructure:"snapshot_dir"`
	CandidateDB   string `mapstructure:"candidate_db"` // 为空时禁用社区候选管线
}

type AdminConfig struct {
	JWTKey string `mapstructure:"jwt_key"`
	Issuer string `mapstructure:"issuer"`
}

type LimitsConfig struct {
	GlobalRate  float64 `mapstructure:"global_rate"`
	GlobalBurst int     `mapstructure:"global_burst"`
	IPRate      float64 `mapstructure:"ip_rate"`
	IPBurst     int     `mapstructure:"ip_burst"`
}

type ReliabilityConfig struct {
	Interval    time.Duration          `mapstructure:"interval"`
	SourceTrust map[string]float64     `mapstructure:"source_trust"`
	Thresholds  reliability.Thresholds `mapstructure:"thresholds"`
}

type Config struct {
	Server      ServerConfig              `mapstructure:"server"`
	Paths       PathsConfig               `mapstructure:"paths"`
	Admin       AdminConfig               `mapstructure:"admin"`
	Limits      LimitsConfig              `mapstructure:"limits"`
	Matching    catalog.Policy            `mapstructure:"matching"`
	PluginLimit detector.LimitPolicy      `mapstructure:"plugin_limit"`
	Admission   rulestore.AdmissionPolicy `mapstructure:"admission"`
	Reliability ReliabilityConfig         `mapstructure:"reliability"`
	Enrich      enrich.Config             `mapstructure:"enrich"`
}

func main() {
	// 在日志系统完全初始化前，使用标准 log
	log.Printf("ModWarden Gateway %s 正在启动...", version)

	exePath, err := os.Executable()
	if err != nil {
		log.Fatalf("CRITICAL: 无法获取可执行文件路径: %v", err)
	}
	rootDir := filepath.Dir(filepath.Dir(exePath))

	configFilePath := filepath.Join(rootDir, "configs", "config.yaml")
	viper.SetConfigFile(configFilePath)
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("CRITICAL: 读取配置文件 '%s' 失败: %v", configFilePath, err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("CRITICAL: 解析配置到结构体失败: %v", err)
	}

	// 允许通过环境变量覆盖管理接口密钥
	if envKey := os.Getenv("MODWARDEN_JWT_KEY"); envKey != "" {
		config.Admin.JWTKey = envKey
	}

	mwobserve.InitLogger(config.Server.LogLevel)
	slog.Info("ModWarden Gateway starting up", "version", version)
	slog.Info("配置加载并解析成功", "path", configFilePath)

	masterlistDir := filepath.Join(rootDir, config.Paths.MasterlistDir)
	snapshotDir := filepath.Join(rootDir, config.Paths.SnapshotDir)

	// --- 存储层 ---
	blobs, err := snapstore.NewFileStore(snapshotDir)
	if err != nil {
		log.Fatalf("CRITICAL: 初始化快照存储失败: %v", err)
	}

	var repo *sqlite.Repo
	if config.Paths.CandidateDB != "" {
		repo, err = sqlite.Open(filepath.Join(rootDir, config.Paths.CandidateDB))
		if err != nil {
			log.Fatalf("CRITICAL: 初始化候选规则库失败: %v", err)
		}
		defer func() {
			slog.Info("正在关闭候选规则库连接...")
			if err := repo.Close(); err != nil {
				slog.Error("关闭候选规则库时发生错误", "error", err)
			}
		}()
	} else {
		slog.Info("未配置候选规则库，社区候选管线已禁用")
	}

	// --- 规则集仓库与快照发布 ---
	holder := rulestore.NewHolder()
	var candidateRepo port.CandidateRuleRepository
	if repo != nil {
		candidateRepo = repo
	}
	store := rulestore.NewStore(holder, blobs, candidateRepo, config.Admission, masterlistDir)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := store.Bootstrap(bootCtx); err != nil {
		log.Fatalf("CRITICAL: 规则集启动构建失败: %v", err)
	}
	bootCancel()
	slog.Info("规则集启动构建完成", "games", holder.Games())

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// 主列表热重建
	if err := store.WatchMasterlists(runCtx); err != nil {
		slog.Error("主列表监听启动失败，热重建不可用", "error", err)
	}

	// --- 可靠性评估后台任务 ---
	if repo != nil {
		runner := reliability.NewRunner(repo, holder, config.Reliability.SourceTrust, config.Reliability.Thresholds)
		runner.Start(runCtx, config.Reliability.Interval)
		slog.Info("后台任务: 可靠性评估已启动", "interval", config.Reliability.Interval.String())
	}

	// --- 服务层 ---
	analyzerOpts := analyzer.DefaultOptions()
	analyzerOpts.MatchPolicy = config.Matching
	analyzerOpts.LimitPolicy = config.PluginLimit
	analyzerSvc := analyzer.New(holder, analyzerOpts)
	slog.Info("服务层: Analyzer 初始化完成")

	enricher := enrich.New(config.Enrich)
	if enricher != nil {
		slog.Info("服务层: 冲突说明生成已启用", "model", config.Enrich.Model)
	}

	rateLimiter := mwmiddleware.NewRateLimiter(
		config.Limits.GlobalRate, config.Limits.GlobalBurst,
		config.Limits.IPRate, config.Limits.IPBurst)
	auth := middleware.NewAuthenticator(config.Admin.JWTKey, config.Admin.Issuer)

	httpRouter := router.New(router.Dependencies{
		Analyzer: analyzerSvc,
		Holder:   holder,
		Store:    store,
		Repo:     candidateRepo,
		Enricher: enricher,
		Auth:     auth,
		Limiter:  rateLimiter,
	})
	slog.Info("传输层: HTTP 路由器创建完成。")

	addr := fmt.Sprintf(":%d", config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: httpRouter,
	}

	go func() {
		slog.Info("ModWarden 启动成功，开始监听HTTP请求...", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP服务启动失败", "error", err)
			os.Exit(1)
		}
	}()

	mwobserve.EnablePprof(config.Server.Pprof)
	mwobserve.Register()
	slog.Info("监控: metrics 已注册。")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("收到停机信号，准备优雅关闭...")
	runCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("HTTP服务优雅关闭失败", "error", err)
		os.Exit(1)
	}

	slog.Info("HTTP服务已成功关闭。")
	slog.Info("程序即将退出。")
}

// setDefaults 注册配置缺省值
func setDefaults() {
	viper.SetDefault("server.port", 10330)
	viper.SetDefault("server.log_level", "INFO")
	viper.SetDefault("paths.masterlist_dir", "masterlists")
	viper.SetDefault("paths.snapshot_dir", "instance/snapshots")
	viper.SetDefault("limits.global_rate", 10.0)
	viper.SetDefault("limits.global_burst", 30)
	viper.SetDefault("limits.ip_rate", 1.0)
	viper.SetDefault("limits.ip_burst", 20)
	viper.SetDefault("reliability.interval", "5m")
}
