package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/autocare/autocare-backend/pkg/config"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/security"
)

type otpStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Del(ctx context.Context, keys ...string) error
	OTPKey(purpose, mobile string) string
	OTPAttemptsKey(purpose, mobile string) string
	OTPCooldownKey(purpose, mobile string) string
}

// otpManager issues and checks one-time passwords kept as argon2id hashes in redis.
type otpManager struct {
	store otpStore
	cfg   config.OTPConfig
}

func newOTPManager(store otpStore, cfg config.OTPConfig) (*otpManager, error) {
	if store == nil {
		return nil, fmt.Errorf("otp store required")
	}
	if cfg.Length <= 0 {
		cfg.Length = 6
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &otpManager{store: store, cfg: cfg}, nil
}

// Issue stores a fresh code for mobile and returns it. A second request inside
// the resend cooldown is refused.
func (m *otpManager) Issue(ctx context.Context, purpose, mobile string) (string, error) {
	if m.cfg.ResendCooldown > 0 {
		cooldownKey := m.store.OTPCooldownKey(purpose, mobile)
		ok, err := m.store.SetNX(ctx, cooldownKey, "1", m.cfg.ResendCooldown)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "otp cooldown")
		}
		if !ok {
			wait, _ := m.store.TTL(ctx, cooldownKey)
			if wait <= 0 {
				wait = m.cfg.ResendCooldown
			}
			return "", pkgerrors.New(pkgerrors.CodeRateLimit, "please wait before requesting another OTP").
				WithDetails(map[string]any{"retry_after_seconds": int(math.Ceil(wait.Seconds()))})
		}
	}

	code, err := security.GenerateOTP(m.cfg.Length)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate otp")
	}
	hash, err := security.HashOTP(code, m.cfg)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash otp")
	}
	if err := m.store.Set(ctx, m.store.OTPKey(purpose, mobile), hash, m.cfg.TTL); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store otp")
	}
	if err := m.store.Del(ctx, m.store.OTPAttemptsKey(purpose, mobile)); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset otp attempts")
	}
	return code, nil
}

// Check consumes the pending code on success. After MaxAttempts wrong codes the
// pending code is burned.
func (m *otpManager) Check(ctx context.Context, purpose, mobile, code string) error {
	otpKey := m.store.OTPKey(purpose, mobile)
	attemptsKey := m.store.OTPAttemptsKey(purpose, mobile)

	hash, err := m.store.Get(ctx, otpKey)
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "OTP expired or not requested")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load otp")
	}

	attempts, err := m.store.IncrWithTTL(ctx, attemptsKey, m.cfg.TTL)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count otp attempts")
	}
	if attempts > int64(m.cfg.MaxAttempts) {
		_ = m.store.Del(ctx, otpKey, attemptsKey)
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts; request a new OTP")
	}

	ok, err := security.VerifyOTP(code, hash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify otp")
	}
	if !ok {
		remaining := int64(m.cfg.MaxAttempts) - attempts
		if remaining <= 0 {
			_ = m.store.Del(ctx, otpKey, attemptsKey)
		}
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid OTP").
			WithDetails(map[string]any{"remaining_attempts": remaining})
	}

	if err := m.store.Del(ctx, otpKey, attemptsKey); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume otp")
	}
	return nil
}
