package errors

import "net/http"

// ErrorCode identifies a failure class in API responses.
//
//	10xxx  system, storage and request validation
//	12xxx  exam sets
//	13xxx  submissions
//	14xxx  sandbox
type ErrorCode int

const (
	Success ErrorCode = 10000

	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	DatabaseError     ErrorCode = 10100
	TransactionFailed ErrorCode = 10103

	ExamSetNotFound ErrorCode = 12000

	SubmissionNotFound ErrorCode = 13000

	LanguageNotSupported ErrorCode = 14000
	CodeTooLarge         ErrorCode = 14001
	SandboxBusy          ErrorCode = 14002
	SandboxSystemError   ErrorCode = 14003
)

type codeInfo struct {
	message string
	status  int
}

var codes = map[ErrorCode]codeInfo{
	Success:             {"Success", http.StatusOK},
	InternalServerError: {"Internal server error", http.StatusInternalServerError},
	InvalidParams:       {"Invalid parameters", http.StatusBadRequest},
	ServiceUnavailable:  {"Service temporarily unavailable", http.StatusServiceUnavailable},
	Timeout:             {"Request timeout", http.StatusGatewayTimeout},

	DatabaseError:     {"Database operation failed", http.StatusInternalServerError},
	TransactionFailed: {"Database transaction failed", http.StatusInternalServerError},

	ExamSetNotFound:    {"Exam set not found", http.StatusNotFound},
	SubmissionNotFound: {"Submission not found", http.StatusNotFound},

	LanguageNotSupported: {"Programming language not supported", http.StatusBadRequest},
	CodeTooLarge:         {"Code is too large", http.StatusBadRequest},
	SandboxBusy:          {"Sandbox is busy, please try again later", http.StatusServiceUnavailable},
	SandboxSystemError:   {"Sandbox system error", http.StatusInternalServerError},
}

// Message is the default client-facing text for c.
func (c ErrorCode) Message() string {
	if info, ok := codes[c]; ok {
		return info.message
	}
	return "Unknown error"
}

// HTTPStatus maps c to a response status; unknown codes are 500.
func (c ErrorCode) HTTPStatus() int {
	if info, ok := codes[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}
