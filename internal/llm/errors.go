package llm

import "strings"

// classifyError buckets a provider error for metrics and retry policy.
func classifyError(err error) string {
	if err == nil {
		return "unknown_error"
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return "rate_limit"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "auth") || strings.Contains(msg, "api key"):
		return "auth_error"
	case strings.Contains(msg, "400") || strings.Contains(msg, "422") ||
		strings.Contains(msg, "invalid"):
		return "invalid_request"
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "504"):
		return "server_error"
	case strings.Contains(msg, "connect") || strings.Contains(msg, "connection") ||
		strings.Contains(msg, "dns") || strings.Contains(msg, "dial"):
		return "network_error"
	default:
		return "unknown_error"
	}
}

// isFatal reports whether an error should stop the retry loop on the
// current provider. Credentials do not heal between attempts, and a
// content-policy refusal will repeat for the same prompt.
func isFatal(err error) bool {
	if err == nil {
		return false
	}
	if classifyError(err) == "auth_error" {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "content policy") ||
		strings.Contains(msg, "content_filter") ||
		strings.Contains(msg, "content filtering")
}
