package domain

import "time"

type ContractStatus string

const (
	ContractActive    ContractStatus = "active"
	ContractSuspended ContractStatus = "suspended"
	ContractExpired   ContractStatus = "expired"
)

// DateLayout is how contract dates are stored and compared.
const DateLayout = "2006-01-02"

type Contract struct {
	ID              int64
	PartnerID       string
	StartDate       time.Time
	EndDate         time.Time
	Status          ContractStatus
	MaxPublications *int
}

// Inverted reports a contract whose end date precedes its start date.
func (c Contract) Inverted() bool { return c.EndDate.Before(c.StartDate) }
