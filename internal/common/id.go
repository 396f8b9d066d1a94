package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a unique job run ID with the "run_" prefix
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewInsightLogID generates a unique insight generation log ID with the "llm_" prefix
// Format: llm_<uuid>
func NewInsightLogID() string {
	return "llm_" + uuid.New().String()
}

// NewInsightID generates a unique insight ID with the "ins_" prefix
// Format: ins_<uuid>
func NewInsightID() string {
	return "ins_" + uuid.New().String()
}
