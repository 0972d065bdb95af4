package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseAgentID extracts and validates the agent ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: agentId
func ParseAgentID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "agentId", "Invalid agent ID format", logger)
}

// ParsePromptID extracts and validates the prompt ID from the request path.
// Expects path parameter: promptId
func ParsePromptID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "promptId", "Invalid prompt ID format", logger)
}

// ParseLimitID extracts and validates the limit ID from the request path.
// Expects path parameter: limitId
func ParseLimitID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "limitId", "Invalid limit ID format", logger)
}

// adminIdentity returns the caller identity recorded against a prompt's
// createdBy/updatedBy column. pkg/auth sets this header after validating the
// bearer token; handlers can't import pkg/auth directly since it already
// imports this package for WriteError.
func adminIdentity(r *http.Request) string {
	if email := r.Header.Get("X-Admin-Email"); email != "" {
		return email
	}
	return "admin"
}

// parseUUID is the shared implementation backing the ParseXID helpers.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, message string, logger *zap.Logger) (uuid.UUID, bool) {
	raw := r.PathValue(pathParam)
	id, err := uuid.Parse(raw)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to parse path parameter",
				zap.String("param", pathParam), zap.String("value", raw), zap.Error(err))
		}
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, message)
		return uuid.Nil, false
	}
	return id, true
}
