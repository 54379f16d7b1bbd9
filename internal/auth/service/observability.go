package service

import (
	"context"
	"time"

	"keyline/internal/auth/models"
	"keyline/internal/platform/middleware"
	"keyline/internal/tenantctx"
)

// Observability helpers for logging and metrics. Metrics are optional; every
// helper is a no-op when metrics were not configured.

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if tc, ok := tenantctx.From(ctx); ok {
		attributes = append(attributes, "tenant_id", tc.TenantID.String())
	}
	if requestID := middleware.GetRequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

// authFailure logs a failed authentication step. isError marks failures that
// indicate a broken invariant rather than a wrong credential.
func (s *Service) authFailure(ctx context.Context, reason string, isError bool, attributes ...any) {
	if tc, ok := tenantctx.From(ctx); ok {
		attributes = append(attributes, "tenant_id", tc.TenantID.String())
	}
	if requestID := middleware.GetRequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", "auth_failed", "reason", reason)
	if isError {
		s.logger.ErrorContext(ctx, "auth_failed", args...)
	} else {
		s.logger.WarnContext(ctx, "auth_failed", args...)
	}
	if s.metrics != nil {
		s.metrics.AuthFailures.Inc()
	}
}

func (s *Service) countLoginSuccess(method models.AuthMethod) {
	if s.metrics != nil {
		s.metrics.LoginSuccesses.WithLabelValues(string(method)).Inc()
		s.metrics.SessionsIssued.Inc()
	}
}

func (s *Service) countOtpIssued(purpose models.Purpose, channel models.Channel) {
	if s.metrics != nil {
		s.metrics.OtpIssued.WithLabelValues(string(purpose), string(channel)).Inc()
	}
}

func (s *Service) countOtpVerification(outcome models.OtpOutcome) {
	if s.metrics != nil {
		s.metrics.OtpVerifications.WithLabelValues(string(outcome)).Inc()
	}
}

func (s *Service) countDeliveryFailure() {
	if s.metrics != nil {
		s.metrics.DeliveryFailures.Inc()
	}
}

func (s *Service) countSessionRevoked(n int) {
	if s.metrics != nil {
		s.metrics.SessionsRevoked.Add(float64(n))
	}
}

func (s *Service) countUserRegistered() {
	if s.metrics != nil {
		s.metrics.UsersRegistered.Inc()
	}
}

func (s *Service) observeLatency(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
