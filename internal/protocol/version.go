package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a protocol version. All minors of a major share the same
// value encoding; peers negotiate the highest minor both sides support.
type Version struct {
	Major uint32
	Minor uint32
}

// The protocol epoch implemented by this broker.
const (
	MajorVersion = 1
	MinMinor     = 14
	MaxMinor     = 20
)

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ParseVersion parses "major.minor".
func ParseVersion(s string) (Version, error) {
	majorStr, minorStr, ok := strings.Cut(s, ".")
	if !ok {
		return Version{}, fmt.Errorf("invalid protocol version %q", s)
	}
	major, err := strconv.ParseUint(majorStr, 10, 32)
	if err != nil {
		return Version{}, fmt.Errorf("invalid protocol version %q", s)
	}
	minor, err := strconv.ParseUint(minorStr, 10, 32)
	if err != nil {
		return Version{}, fmt.Errorf("invalid protocol version %q", s)
	}
	return Version{Major: uint32(major), Minor: uint32(minor)}, nil
}

// NegotiateMinor picks the highest mutually supported minor from the
// minors offered by a peer. Peers with newer minors negotiate down.
func NegotiateMinor(offered []uint32) (uint32, bool) {
	best := uint32(0)
	found := false
	for _, m := range offered {
		if m > MaxMinor {
			m = MaxMinor
		}
		if m >= MinMinor && (!found || m > best) {
			best = m
			found = true
		}
	}
	return best, found
}
