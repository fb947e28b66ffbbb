package dto

import "time"

// CreateCycleRequest payload for opening a performance cycle.
type CreateCycleRequest struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}
