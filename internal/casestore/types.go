package casestore

import (
	"context"
	"time"
)

// CaseRecord stores the metadata of one review case (one roast request).
type CaseRecord struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	RoleName   string    `json:"role_name"`
	LLMModel   string    `json:"llm_model"`
	VoiceID    string    `json:"voice_id,omitempty"`
	TTSEnabled bool      `json:"tts_enabled"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists review cases. Writes are best effort: a failed save never
// blocks or fails the request that created the case.
type Store interface {
	SaveCase(ctx context.Context, record CaseRecord) error
	RecentCases(ctx context.Context, limit int) ([]CaseRecord, error)
	Close() error
}
