package auth

import (
	"context"

	"github.com/autocare/autocare-backend/pkg/logger"
)

// SMSSender delivers a one-time password to a mobile number.
type SMSSender interface {
	SendOTP(ctx context.Context, mobile, code string) error
}

// LogSender stands in for an SMS gateway. The code itself is only logged when
// reveal is set, which callers do outside production.
type LogSender struct {
	logg   *logger.Logger
	reveal bool
}

func NewLogSender(logg *logger.Logger, reveal bool) *LogSender {
	return &LogSender{logg: logg, reveal: reveal}
}

func (s *LogSender) SendOTP(ctx context.Context, mobile, code string) error {
	if s == nil || s.logg == nil {
		return nil
	}
	fields := map[string]any{"mobile": MaskMobile(mobile)}
	if s.reveal {
		fields["otp"] = code
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "otp dispatched")
	return nil
}
