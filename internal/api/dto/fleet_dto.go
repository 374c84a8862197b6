package dto

import (
	"time"

	"github.com/spec-kit/opsdesk/internal/domain"
)

// VehicleRequest creates or edits a vehicle.
type VehicleRequest struct {
	Make           string               `json:"make"`
	Model          string               `json:"model"`
	Year           int                  `json:"year"`
	Plate          string               `json:"plate"`
	CurrentMileage int                  `json:"current_mileage"`
	Status         domain.VehicleStatus `json:"status"`
}

// VehicleResponse representation.
type VehicleResponse struct {
	ID                 int64                `json:"id"`
	Make               string               `json:"make"`
	Model              string               `json:"model"`
	Year               int                  `json:"year,omitempty"`
	Plate              string               `json:"plate"`
	CurrentMileage     int                  `json:"current_mileage"`
	Status             domain.VehicleStatus `json:"status"`
	CurrentDriver      *string              `json:"current_driver"`
	CurrentDriverEmail *string              `json:"current_driver_email"`
}

// TripApproveRequest names who approved. Defaults to the signed-in user.
type TripApproveRequest struct {
	ApprovedBy string `json:"approved_by"`
}

// TripReturnRequest closes a trip.
type TripReturnRequest struct {
	EndingMileage *int       `json:"ending_mileage"`
	ReturnTime    *time.Time `json:"return_time"`
	Notes         string     `json:"notes"`
}

// TripResponse representation.
type TripResponse struct {
	ID                  int64             `json:"id"`
	VehicleID           int64             `json:"vehicle_id"`
	RequesterName       string            `json:"requester_name"`
	RequesterEmail      string            `json:"requester_email"`
	Destination         string            `json:"destination"`
	Purpose             string            `json:"purpose,omitempty"`
	Status              domain.TripStatus `json:"status"`
	StartingMileage     *int              `json:"starting_mileage"`
	EndingMileage       *int              `json:"ending_mileage"`
	MilesDriven         *int              `json:"miles_driven"`
	DepartureTime       *time.Time        `json:"departure_time"`
	ReturnTime          *time.Time        `json:"return_time"`
	ApprovedBy          *string           `json:"approved_by"`
	ReturnNotes         string            `json:"return_notes,omitempty"`
	UnaccountedNotified bool              `json:"unaccounted_notified"`
	CreatedAt           time.Time         `json:"created_at"`
	Notes               []NoteResponse    `json:"notes,omitempty"`
}
