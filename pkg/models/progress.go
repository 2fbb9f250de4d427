package models

// BulkState is the phase of a bulk translation run.
type BulkState string

const (
	BulkDiscovering BulkState = "discovering"
	BulkTranslating BulkState = "translating"
	BulkComplete    BulkState = "complete"
)

// Progress is emitted to bulk observers after every state change.
// Completed counts successful translations only.
type Progress struct {
	RequestID string    `json:"requestId"`
	State     BulkState `json:"state"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
}

// Handled is the number of elements whose pipeline run has finished.
func (p Progress) Handled() int {
	return p.Completed + p.Skipped + p.Failed
}
