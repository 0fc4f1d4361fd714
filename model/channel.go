package model

import (
	"encoding/json"
	"fmt"
)

// ChannelWidth is the operating bandwidth of a link.
type ChannelWidth int

const (
	WidthInvalid ChannelWidth = iota
	Width20
	Width40
	Width80
	Width160
	Width320
)

// MHz returns the bandwidth in megahertz, or 0 for WidthInvalid.
func (w ChannelWidth) MHz() int {
	switch w {
	case Width20:
		return 20
	case Width40:
		return 40
	case Width80:
		return 80
	case Width160:
		return 160
	case Width320:
		return 320
	default:
		return 0
	}
}

func (w ChannelWidth) String() string {
	if mhz := w.MHz(); mhz > 0 {
		return fmt.Sprintf("%dMHz", mhz)
	}
	return "invalid"
}

// ChannelWidthFromMHz maps a bandwidth in MHz onto a ChannelWidth.
// Unknown values map to WidthInvalid.
func ChannelWidthFromMHz(mhz int) ChannelWidth {
	switch mhz {
	case 20:
		return Width20
	case 40:
		return Width40
	case 80:
		return Width80
	case 160:
		return Width160
	case 320:
		return Width320
	default:
		return WidthInvalid
	}
}

// MarshalJSON encodes the width as its MHz value.
func (w ChannelWidth) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.MHz())
}

// UnmarshalJSON accepts the width as an MHz value. 0 decodes to
// WidthInvalid; any other unsupported value is an error.
func (w *ChannelWidth) UnmarshalJSON(data []byte) error {
	var mhz int
	if err := json.Unmarshal(data, &mhz); err != nil {
		return fmt.Errorf("channel width: %w", err)
	}
	parsed := ChannelWidthFromMHz(mhz)
	if parsed == WidthInvalid && mhz != 0 {
		return fmt.Errorf("channel width: unsupported %d MHz", mhz)
	}
	*w = parsed
	return nil
}

// Channel is the active operating channel of a link. A zero FreqMHz means
// the link has no active channel.
type Channel struct {
	FreqMHz uint32       `json:"freq_mhz"`
	Width   ChannelWidth `json:"width_mhz"`
}

// Active reports whether the channel carries a usable centre frequency.
func (c Channel) Active() bool {
	return c.FreqMHz != 0
}
