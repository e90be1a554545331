package domain

import "time"

type InterestLevel string

const (
	InterestLow    InterestLevel = "low"
	InterestMedium InterestLevel = "medium"
	InterestHigh   InterestLevel = "high"
)

// AttentionMetrics is a snapshot of session-scoped attention accounting.
type AttentionMetrics struct {
	LocalScore          float64       `json:"localScore"`
	RemoteScore         float64       `json:"remoteScore"`
	LocalSamples        int           `json:"localSamples"`
	RemoteSamples       int           `json:"remoteSamples"`
	MutualAttentionTime time.Duration `json:"mutualAttentionTime"`
	TotalCallTime       time.Duration `json:"totalCallTime"`
	InterestLevel       InterestLevel `json:"interestLevel"`
}
