package contextkey

// Key is a private-valued type to avoid context key collisions across packages.
type Key string

const (
	TraceID      Key = "trace_id"
	RequestID    Key = "request_id"
	UserID       Key = "user_id"
	SubmissionID Key = "submission_id"
)

// String returns the plain name, also used as the gin context key.
func (k Key) String() string { return string(k) }
