// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/auth"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventDataClassification is logged for every trust classification decision
	// the trusted-data policy engine makes about a tool-result message.
	EventDataClassification SecurityEventType = "data_classification"
	// EventToolInvocationRefused is logged when the tool-invocation policy
	// evaluator blocks a proposed tool call.
	EventToolInvocationRefused SecurityEventType = "tool_invocation_refused"
	// EventQuotaExceeded is logged when the quota enforcement layer rejects
	// a request for exceeding an agent, team, or organization limit.
	EventQuotaExceeded SecurityEventType = "quota_exceeded"
	// EventInjectionSignatureDetected is logged when libinjection flags a
	// proposed tool call's argument value as a SQL injection pattern.
	EventInjectionSignatureDetected SecurityEventType = "injection_signature_detected"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	AgentID   uuid.UUID         `json:"agent_id"`
	ChatID    string            `json:"chat_id,omitempty"`
	AdminUser string            `json:"admin_user,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// ClassificationDetails contains the outcome of a trust classification decision.
type ClassificationDetails struct {
	ToolName      string `json:"tool_name"`
	AttributePath string `json:"attribute_path,omitempty"`
	PolicyID      string `json:"policy_id,omitempty"`
	Trusted       bool   `json:"trusted"`
	Blocked       bool   `json:"blocked"`
	Reason        string `json:"reason"`
}

// InvocationRefusalDetails contains the reason a proposed tool call was refused.
type InvocationRefusalDetails struct {
	ToolName  string `json:"tool_name"`
	PolicyID  string `json:"policy_id"`
	Condition string `json:"condition"`
}

// InjectionSignatureDetails identifies a tool-call argument libinjection
// flagged before the call reached the invocation policy evaluator's
// configured policies.
type InjectionSignatureDetails struct {
	ToolName    string `json:"tool_name"`
	ParamName   string `json:"param_name"`
	Fingerprint string `json:"fingerprint"`
}

// QuotaExceededDetails identifies which entity's limit was exceeded.
type QuotaExceededDetails struct {
	EntityType string  `json:"entity_type"`
	EntityID   string  `json:"entity_id"`
	LimitValue float64 `json:"limit_value"`
	Usage      float64 `json:"usage"`
}

// SecurityAuditor logs security events for SIEM consumption.
// Events are logged in structured JSON format with appropriate severity levels.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
// The logger is automatically configured with "security_audit" namespace for easy
// filtering in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	securityLogger := logger.Named("security_audit")
	return &SecurityAuditor{logger: securityLogger}
}

func adminUserFromContext(ctx context.Context) string {
	claims, ok := auth.GetClaims(ctx)
	if !ok {
		return ""
	}
	return claims.Email
}

// LogClassification records a trust classification decision made by the
// trusted-data policy engine about a tool-result message.
func (a *SecurityAuditor) LogClassification(
	ctx context.Context,
	agentID uuid.UUID,
	chatID string,
	details ClassificationDetails,
) {
	severity := "info"
	if details.Blocked {
		severity = "critical"
	} else if !details.Trusted {
		severity = "warning"
	}

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventDataClassification,
		AgentID:   agentID,
		ChatID:    chatID,
		Details:   details,
		Severity:  severity,
	}
	eventJSON, _ := json.Marshal(event)

	log := a.logger.Info
	if severity == "critical" {
		log = a.logger.Error
	} else if severity == "warning" {
		log = a.logger.Warn
	}

	log("tool result classified",
		zap.String("event_json", string(eventJSON)),
		zap.String("agent_id", agentID.String()),
		zap.String("chat_id", chatID),
		zap.String("tool_name", details.ToolName),
		zap.Bool("trusted", details.Trusted),
		zap.Bool("blocked", details.Blocked),
		zap.String("reason", details.Reason),
		zap.String("severity", severity),
	)
}

// LogToolInvocationRefused records that a proposed tool call was blocked by
// the tool-invocation policy evaluator. Logged at WARN level since this is
// the policy engine working as intended, not an attack in progress.
func (a *SecurityAuditor) LogToolInvocationRefused(
	ctx context.Context,
	agentID uuid.UUID,
	chatID string,
	details InvocationRefusalDetails,
) {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventToolInvocationRefused,
		AgentID:   agentID,
		ChatID:    chatID,
		AdminUser: adminUserFromContext(ctx),
		Details:   details,
		Severity:  "warning",
	}
	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("tool invocation refused",
		zap.String("event_json", string(eventJSON)),
		zap.String("agent_id", agentID.String()),
		zap.String("chat_id", chatID),
		zap.String("tool_name", details.ToolName),
		zap.String("policy_id", details.PolicyID),
		zap.String("severity", "warning"),
	)
}

// LogInjectionSignatureDetected records a tool-call argument value that
// matched a known SQL injection signature. Logged at ERROR level: unlike
// a policy refusal, this is a signal an attack may be in progress.
func (a *SecurityAuditor) LogInjectionSignatureDetected(
	ctx context.Context,
	agentID uuid.UUID,
	chatID string,
	details InjectionSignatureDetails,
) {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventInjectionSignatureDetected,
		AgentID:   agentID,
		ChatID:    chatID,
		Details:   details,
		Severity:  "critical",
	}
	eventJSON, _ := json.Marshal(event)

	a.logger.Error("tool call argument matched an injection signature",
		zap.String("event_json", string(eventJSON)),
		zap.String("agent_id", agentID.String()),
		zap.String("chat_id", chatID),
		zap.String("tool_name", details.ToolName),
		zap.String("param_name", details.ParamName),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", "critical"),
	)
}

// LogQuotaExceeded records a request rejected by the quota enforcement layer.
func (a *SecurityAuditor) LogQuotaExceeded(
	ctx context.Context,
	agentID uuid.UUID,
	details QuotaExceededDetails,
) {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventQuotaExceeded,
		AgentID:   agentID,
		Details:   details,
		Severity:  "warning",
	}
	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("quota exceeded",
		zap.String("event_json", string(eventJSON)),
		zap.String("agent_id", agentID.String()),
		zap.String("entity_type", details.EntityType),
		zap.String("entity_id", details.EntityID),
		zap.Float64("limit_value", details.LimitValue),
		zap.Float64("usage", details.Usage),
		zap.String("severity", "warning"),
	)
}
