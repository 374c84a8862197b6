package domain

import (
	"fmt"
	"time"
)

// TripStatus enumerates lifecycle states for a vehicle trip.
type TripStatus string

const (
	TripStatusRequested TripStatus = "Requested"
	TripStatusInUse     TripStatus = "In Use"
	TripStatusReturned  TripStatus = "Returned"
)

// TripAction names a lifecycle operation on a trip.
type TripAction string

const (
	TripActionApprove TripAction = "approve"
	TripActionReturn  TripAction = "return"
)

var tripTransitions = map[TripStatus]map[TripAction]TripStatus{
	TripStatusRequested: {TripActionApprove: TripStatusInUse},
	TripStatusInUse:     {TripActionReturn: TripStatusReturned},
	TripStatusReturned:  {},
}

// Next returns the status reached by applying action from s.
func (s TripStatus) Next(action TripAction) (TripStatus, bool) {
	next, ok := tripTransitions[s][action]
	return next, ok
}

// VehicleStatus describes vehicle availability.
type VehicleStatus string

const (
	VehicleStatusAvailable   VehicleStatus = "Available"
	VehicleStatusInUse       VehicleStatus = "In Use"
	VehicleStatusMaintenance VehicleStatus = "Maintenance"
)

// Vehicle is a pool car.
type Vehicle struct {
	ID                 int64
	Make               string
	Model              string
	Year               int
	Plate              string
	CurrentMileage     int
	Status             VehicleStatus
	CurrentDriver      *string
	CurrentDriverEmail *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Label returns a human readable vehicle name.
func (v Vehicle) Label() string {
	if v.Year > 0 {
		return fmt.Sprintf("%d %s %s (%s)", v.Year, v.Make, v.Model, v.Plate)
	}
	return fmt.Sprintf("%s %s (%s)", v.Make, v.Model, v.Plate)
}

// VehicleTrip is one checkout of a vehicle.
type VehicleTrip struct {
	ID                  int64
	VehicleID           int64
	RequesterName       string
	RequesterEmail      string
	Destination         string
	Purpose             string
	Status              TripStatus
	StartingMileage     *int
	EndingMileage       *int
	DepartureTime       *time.Time
	ReturnTime          *time.Time
	ApprovedBy          *string
	ReturnNotes         string
	UnaccountedNotified bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// MilesDriven returns ending minus starting mileage once both are known.
func (t VehicleTrip) MilesDriven() (int, bool) {
	if t.StartingMileage == nil || t.EndingMileage == nil {
		return 0, false
	}
	return *t.EndingMileage - *t.StartingMileage, true
}

// Unaccounted reports whether the trip has been out longer than dwell
// without a notification having gone out.
func (t VehicleTrip) Unaccounted(now time.Time, dwell time.Duration) bool {
	if t.Status != TripStatusInUse || t.UnaccountedNotified || t.DepartureTime == nil {
		return false
	}
	return now.Sub(*t.DepartureTime) > dwell
}

// ValidateReturnMileage checks the odometer reading given on return.
func ValidateReturnMileage(starting int, ending *int) error {
	if ending == nil {
		return fmt.Errorf("ending mileage is required")
	}
	if *ending < starting {
		return fmt.Errorf("ending mileage %d is below starting mileage %d", *ending, starting)
	}
	return nil
}

// TripApproval is the conditional write for Requested -> In Use.
type TripApproval struct {
	TripID          int64
	VehicleID       int64
	ApprovedBy      string
	DepartureTime   time.Time
	StartingMileage int
	Driver          string
	DriverEmail     string
}

// TripReturn is the conditional write for In Use -> Returned.
type TripReturn struct {
	TripID        int64
	VehicleID     int64
	EndingMileage int
	ReturnTime    time.Time
	Notes         string
}
