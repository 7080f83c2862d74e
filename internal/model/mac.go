package model

import (
	"net"
	"strings"
)

// NormalizeMAC parses mac and returns its canonical form: lowercase,
// colon-separated, six octets. Every MAC stored or compared anywhere in
// the service goes through here first.
func NormalizeMAC(mac string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(mac))
	if err != nil {
		return "", ErrInvalidMAC
	}
	if len(hw) != 6 {
		return "", ErrInvalidMAC
	}

	return strings.ToLower(hw.String()), nil
}
