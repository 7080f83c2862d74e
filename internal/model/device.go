package model

import "time"

// Status is the administrative intent for a device. The registry is the
// source of truth for it; the router only reflects it.
type Status string

const (
	// StatusAuthorized devices may use the network.
	StatusAuthorized Status = "authorized"
	// StatusQuarantine is assigned to every newly detected device until an
	// admin vets it. Enforced as blocked.
	StatusQuarantine Status = "quarantine"
	// StatusBanned devices are blocked permanently.
	StatusBanned Status = "banned"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusAuthorized, StatusQuarantine, StatusBanned:
		return true
	}

	return false
}

// Blocked reports the router-side state this status demands.
func (s Status) Blocked() bool {
	return s == StatusQuarantine || s == StatusBanned
}

// Device is one tracked MAC address.
type Device struct {
	MAC       string    `json:"mac_address"`
	Status    Status    `json:"status"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Comment   string    `json:"comment,omitempty"`
}

// DeviceEvent is emitted once per classification worth alerting on,
// currently only for newly quarantined devices. Name is best effort.
type DeviceEvent struct {
	MAC       string    `json:"mac_address"`
	Status    Status    `json:"status"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
