package common

import (
	"github.com/google/uuid"
)

// NewWorkItemID generates a unique work item ID with the "work_" prefix
// Format: work_<uuid>
func NewWorkItemID() string {
	return "work_" + uuid.New().String()
}
