// Package output provides text/JSON/YAML output formatting and error handling.
package output

// Exit codes.
const (
	ExitOK          = 0 // Success
	ExitUsage       = 1 // Invalid arguments or flags
	ExitNotFound    = 2 // Resource not found
	ExitAuth        = 3 // Not authenticated
	ExitRateLimit   = 4 // Rate limited
	ExitNetwork     = 5 // Connection/DNS/timeout error
	ExitAPI         = 6 // Server returned error
	ExitUnavailable = 7 // Requests suspended by the circuit breaker
)

// Error codes for the JSON envelope.
const (
	CodeUsage       = "usage"
	CodeNotFound    = "not_found"
	CodeAuth        = "auth_required"
	CodeRateLimit   = "rate_limit"
	CodeNetwork     = "network"
	CodeAPI         = "api_error"
	CodeUnavailable = "unavailable"
)

// ExitCodeFor returns the exit code for a given error code.
func ExitCodeFor(code string) int {
	switch code {
	case CodeUsage:
		return ExitUsage
	case CodeNotFound:
		return ExitNotFound
	case CodeAuth:
		return ExitAuth
	case CodeRateLimit:
		return ExitRateLimit
	case CodeNetwork:
		return ExitNetwork
	case CodeUnavailable:
		return ExitUnavailable
	default:
		return ExitAPI
	}
}
