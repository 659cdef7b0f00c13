package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/rams-care-platform/internal/config"
	"github.com/wolfman30/rams-care-platform/internal/triage"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

// BuildLLMClient wires Gemini as the primary provider and Bedrock as the
// fallback. Either may be absent. When neither is configured the client is
// nil and the AI endpoints answer 503.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (triage.LLMClient, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		primary  triage.LLMClient
		fallback triage.LLMClient
		closeFn  = func() {}
	)
	if key := strings.TrimSpace(cfg.GeminiAPIKey); key != "" {
		gemini, err := triage.NewGeminiLLMClient(ctx, key, cfg.GeminiModelID)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		primary = gemini
		closeFn = func() {
			if err := gemini.Close(); err != nil {
				logger.Warn("gemini client close failed", "error", err)
			}
		}
	}
	if model := strings.TrimSpace(cfg.BedrockModelID); model != "" {
		fallback = triage.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), model)
	}

	switch {
	case primary != nil && fallback != nil:
		logger.Info("ai triage enabled", "primary", "gemini", "fallback", "bedrock")
		return triage.NewFallbackLLMClient(primary, fallback, logger), closeFn, nil
	case primary != nil:
		logger.Info("ai triage enabled", "primary", "gemini")
		return primary, closeFn, nil
	case fallback != nil:
		logger.Info("ai triage enabled", "primary", "bedrock")
		return fallback, closeFn, nil
	default:
		logger.Warn("no AI provider configured; triage endpoints will report unavailable")
		return nil, closeFn, nil
	}
}
