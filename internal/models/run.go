package models

import (
	"encoding/json"
	"time"
)

// RunSummary is the stored header of one analysis run.
type RunSummary struct {
	ID            string          `json:"id"`
	StartedAt     time.Time       `json:"started_at"`
	DurationMs    int64           `json:"duration_ms"`
	Strategy      string          `json:"strategy"`
	Settings      json.RawMessage `json:"settings"`
	InputCount    int             `json:"input_count"`
	CleanCount    int             `json:"clean_count"`
	RejectedCount int             `json:"rejected_count"`
	WarnedCount   int             `json:"warned_count"`
	GroupCount    int             `json:"group_count"`
}

// StoredGroup is a group summary together with the members it was built from.
type StoredGroup struct {
	Summary GroupSummary     `json:"summary"`
	Members []PropertyRecord `json:"members"`
}
