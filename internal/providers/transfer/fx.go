package transfer

import (
	"time"

	"github.com/draftworks/meridian/internal/config"
	transferdomain "github.com/draftworks/meridian/internal/providers/transfer/domain"
	"github.com/draftworks/meridian/internal/providers/transfer/paystack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.transfer",
	fx.Provide(provideClient),
)

func provideClient(cfg config.Config, policy *config.PayoutPolicyHolder, log *zap.Logger) transferdomain.Client {
	timeout := time.Duration(policy.Get().ProviderTimeoutSeconds) * time.Second
	return paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, timeout, log)
}
