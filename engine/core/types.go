package core

// -----------------------------------------------------------------------------
// Execution status
// -----------------------------------------------------------------------------

// StatusType marks the outcome of a single dispatch in the execution log.
type StatusType string

const (
	StatusSuccess StatusType = "SUCCESS"
	StatusError   StatusType = "ERROR"
)

func (s StatusType) String() string {
	return string(s)
}
