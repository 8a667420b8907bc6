// Package logging builds the process zap logger and a zap-backed audit sink.
package logging

import (
	"context"
	"sort"
	"strings"

	"github.com/Yellowatch/boxumco"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a development logger unless env is "production".
func New(env string) (*zap.Logger, error) {
	if strings.EqualFold(env, "production") {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg.Build()
	}
	return zap.NewDevelopment()
}

// AuditSink writes audit events as structured log entries under the "audit"
// logger. Failures log at warn level, successes at info.
type AuditSink struct {
	logger *zap.Logger
}

var _ boxumco.AuditSink = (*AuditSink)(nil)

// NewAuditSink returns a sink writing to logger.
func NewAuditSink(logger *zap.Logger) *AuditSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditSink{logger: logger.Named("audit")}
}

func (s *AuditSink) Emit(_ context.Context, ev boxumco.AuditEvent) {
	fields := make([]zap.Field, 0, 8+len(ev.Metadata))
	fields = append(fields,
		zap.Time("at", ev.Timestamp),
		zap.Bool("success", ev.Success),
	)
	if ev.UserID != "" {
		fields = append(fields, zap.String("user_id", ev.UserID))
	}
	if ev.AccountType != "" {
		fields = append(fields, zap.String("account_type", ev.AccountType))
	}
	if ev.Email != "" {
		fields = append(fields, zap.String("email", ev.Email))
	}
	if ev.IP != "" {
		fields = append(fields, zap.String("ip", ev.IP))
	}
	if ev.UserAgent != "" {
		fields = append(fields, zap.String("user_agent", ev.UserAgent))
	}
	if ev.Error != "" {
		fields = append(fields, zap.String("error", ev.Error))
	}

	keys := make([]string, 0, len(ev.Metadata))
	for k := range ev.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.String("meta."+k, ev.Metadata[k]))
	}

	if ev.Success {
		s.logger.Info(ev.EventType, fields...)
		return
	}
	s.logger.Warn(ev.EventType, fields...)
}
