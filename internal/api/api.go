package api

// DeviceRequest is the explicit add payload. Status defaults to
// quarantine when empty.
type DeviceRequest struct {
	MAC     string `json:"mac_address"`
	Status  string `json:"status,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// StatusRequest changes the intent for a known device. A null comment
// keeps the stored annotation.
type StatusRequest struct {
	Status  string  `json:"status"`
	Comment *string `json:"comment,omitempty"`
}

type CommentRequest struct {
	Comment string `json:"comment"`
}

type InfoResponse struct {
	Revision     string  `json:"revision"`
	Branch       string  `json:"branch"`
	BootTime     string  `json:"boot_time"`
	Uptime       float64 `json:"uptime"`
	RequestCount int     `json:"request_count"`
}
