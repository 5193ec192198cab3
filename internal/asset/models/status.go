package models

// Status is the lifecycle position of a physical asset.
type Status string

const (
	StatusUnregistered  Status = "unregistered"
	StatusAvailable     Status = "available"
	StatusAssigned      Status = "assigned"
	StatusInTransit     Status = "in_transit"
	StatusDeployed      Status = "deployed"
	StatusInMaintenance Status = "in_maintenance"
	StatusOutOfService  Status = "out_of_service"
)

// transitions lists the statuses reachable from each status. Available is
// reachable again from every working state (return to warehouse).
var transitions = map[Status][]Status{
	StatusUnregistered:  {StatusAvailable},
	StatusAvailable:     {StatusAssigned, StatusInMaintenance, StatusOutOfService},
	StatusAssigned:      {StatusAssigned, StatusAvailable, StatusInTransit},
	StatusInTransit:     {StatusDeployed, StatusAvailable},
	StatusDeployed:      {StatusAvailable, StatusInMaintenance, StatusOutOfService},
	StatusInMaintenance: {StatusAvailable, StatusOutOfService},
	StatusOutOfService:  {},
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether the asset is retired.
func (s Status) IsTerminal() bool {
	return s == StatusOutOfService
}

// CanTransitionTo reports whether next is reachable from s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
