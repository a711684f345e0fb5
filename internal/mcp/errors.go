package mcp

import (
	"fmt"
	"strings"

	"github.com/HyphaGroup/kepoki/internal/logger"
)

// sensitivePatterns contains substrings that indicate sensitive error details
var sensitivePatterns = []string{
	"api_key",
	"x-api-key",
	"aws_secret",
	"token",
	"password",
	"secret",
	"credential",
}

// internalErrorPatterns contains substrings that indicate internal errors
var internalErrorPatterns = []string{
	"database is locked",
	"sql:",
	"no such file",
	"permission denied",
	"connection refused",
}

// SanitizeError returns a client-safe error message.
// Internal details are logged but not exposed to clients.
func SanitizeError(err error, operation string) error {
	if err == nil {
		return nil
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lower, pattern) {
			logger.Error("%s failed (sensitive): %v", operation, err)
			return fmt.Errorf("%s failed: internal configuration error", operation)
		}
	}
	for _, pattern := range internalErrorPatterns {
		if strings.Contains(lower, pattern) {
			logger.Error("%s failed (internal): %v", operation, err)
			return fmt.Errorf("%s failed: internal error", operation)
		}
	}
	return err
}
