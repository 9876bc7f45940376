package models

import "time"

// Content is a reading text a session can be seeded with.
type Content struct {
	Ref       string    `json:"ref" validate:"required,max=128"`
	Title     string    `json:"title" validate:"required"`
	Language  string    `json:"language" validate:"required,bcp47_language_tag"`
	Body      string    `json:"body" validate:"required"`
	CreatedAt time.Time `json:"created_at"`
}

// ContentOverview is the cached summary of a Content body.
type ContentOverview struct {
	Ref         string    `json:"ref"`
	Fingerprint string    `json:"fingerprint"`
	Summary     string    `json:"summary"`
	GeneratedAt time.Time `json:"generated_at"`
}
