package model

import "time"

// Metadata attribution sources.
const (
	SourceAutomated = "automated"
	SourceHuman     = "human"
)

// Metadata is the attribution envelope attached to every persisted
// mutation. One envelope is created per reporting-period submission and
// shared read-only across all upserts that submission triggers.
type Metadata struct {
	Source    string    `json:"source"`
	ReportURL string    `json:"reportUrl,omitempty"`
	Verified  bool      `json:"verified"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMetadata builds an automated, unverified envelope for a submission.
func NewMetadata(reportURL string) Metadata {
	return Metadata{
		Source:    SourceAutomated,
		ReportURL: reportURL,
		CreatedAt: time.Now().UTC(),
	}
}
