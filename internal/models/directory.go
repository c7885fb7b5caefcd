package models

import "time"

// Directory records are read-only from the assistant's perspective. Their
// free-text fields are treated as a bag of searchable text by retrieval.

// Resource is a general directory entry (food banks, hygiene services, etc.).
type Resource struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Tags        string    `json:"tags"`
	City        string    `json:"city"`
	Verified    bool      `json:"verified"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TreatmentCenter is a substance-use treatment facility.
type TreatmentCenter struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Services        string    `json:"services"`
	City            string    `json:"city"`
	AcceptsMedicaid bool      `json:"accepts_medicaid"`
	Verified        bool      `json:"verified"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Provider is an individual care provider (doctor, counselor, case worker).
type Provider struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Specialty   string    `json:"specialty"`
	Description string    `json:"description"`
	City        string    `json:"city"`
	Verified    bool      `json:"verified"`
	UpdatedAt   time.Time `json:"updated_at"`
}
