// Package enrich 为分析结果生成可读的冲突说明。
// 这是纯增值路径：生成失败或超时只影响说明字段，绝不影响分析本身。
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ModWarden/internal/core/domain"

	"github.com/sashabaranov/go-openai"
)

// Config 描述说明生成所用的 OpenAI 兼容端点
type Config struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"` // 本地推理端点亦可
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Service 封装说明生成的客户端与模型选择
type Service struct {
	client *openai.Client
	model  string
	limit  time.Duration
}

// New 创建说明生成服务；cfg.Enabled 为 false 时返回 nil
func New(cfg Config) *Service {
	if !cfg.Enabled {
		return nil
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	limit := cfg.Timeout
	if limit <= 0 {
		limit = 10 * time.Second
	}
	return &Service{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		limit:  limit,
	}
}

// Explain 为一组冲突发现生成面向用户的说明文本。
// 任何失败都返回空串并记日志，调用方按"无说明"处理。
func (s *Service) Explain(ctx context.Context, result *domain.AnalysisResult) string {
	if s == nil || len(result.Conflicts) == 0 {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, s.limit)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(result)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		slog.Warn("冲突说明生成失败", "error", err)
		return ""
	}
	if len(resp.Choices) == 0 {
		slog.Warn("冲突说明生成返回空结果")
		return ""
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}

const systemPrompt = "你是一名游戏模组兼容性助手。" +
	"用简洁的要点向玩家解释下面的冲突清单：每条冲突一行，说明原因与建议动作。" +
	"不要编造清单之外的冲突。"

// buildPrompt 把冲突清单序列化为提示文本
func buildPrompt(result *domain.AnalysisResult) string {
	var b strings.Builder
	for _, c := range result.Conflicts {
		fmt.Fprintf(&b, "- [%s/%s] %s 涉及: %s 建议: %s\n",
			c.Severity, c.Kind, c.MessageKey,
			strings.Join(c.Subjects, ", "), c.Resolution)
	}
	if result.OrderError != nil {
		fmt.Fprintf(&b, "- 排序约束成环，涉及规则: %s\n",
			strings.Join(result.OrderError.InvolvedRules, ", "))
	}
	return b.String()
}
