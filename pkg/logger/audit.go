package logger

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// Audit types group events for downstream filtering
const (
	AuditTypeLogin      = "login"
	AuditTypeLockout    = "lockout"
	AuditTypeCredential = "credential"
	AuditTypeAdmin      = "admin"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	AuditType     string
	EventType     string
	Subject       string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// Log writes one audit event. Failures are logged at warn level.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", event.AuditType),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.Subject != "" {
		attrs = append(attrs, slog.String("subject", event.Subject))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogLoginAttempt records a login outcome seen by the protection layer
func (al *AuditLogger) LogLoginAttempt(ctx context.Context, ip, username, device string, success bool) {
	event := AuditEvent{
		AuditType: AuditTypeLogin,
		EventType: "login_attempt",
		Subject:   MaskUsername(username),
		IPAddress: ip,
		Success:   success,
	}
	if device != "" {
		event.Metadata = map[string]string{"device": device}
	}
	if !success {
		event.FailureReason = "invalid_credentials"
	}
	al.Log(ctx, event)
}

// LogLockout records that a lockout was placed
func (al *AuditLogger) LogLockout(ctx context.Context, ip, username string, failures int, unlockAt time.Time) {
	al.Log(ctx, AuditEvent{
		AuditType:     AuditTypeLockout,
		EventType:     "lockout_created",
		Subject:       MaskUsername(username),
		IPAddress:     ip,
		Success:       false,
		FailureReason: "threshold_exceeded",
		Metadata: map[string]string{
			"failures":  strconv.Itoa(failures),
			"unlock_at": unlockAt.UTC().Format(time.RFC3339),
		},
	})
}

// LogCredentialAuth records an API credential authentication outcome.
// Only the sanitized credential prefix is written.
func (al *AuditLogger) LogCredentialAuth(ctx context.Context, secret, ip, endpoint string, success bool, reason string) {
	al.Log(ctx, AuditEvent{
		AuditType:     AuditTypeCredential,
		EventType:     "credential_auth",
		Subject:       SanitizeCredential(secret),
		IPAddress:     ip,
		Success:       success,
		FailureReason: reason,
		Metadata:      map[string]string{"endpoint": endpoint},
	})
}

// LogAdminAction logs administrative changes to protection state
func (al *AuditLogger) LogAdminAction(ctx context.Context, eventType, actor string, metadata map[string]string) {
	al.Log(ctx, AuditEvent{
		AuditType: AuditTypeAdmin,
		EventType: eventType,
		Subject:   actor,
		Success:   true,
		Metadata:  metadata,
	})
}
