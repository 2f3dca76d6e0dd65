package utils

import (
	"fmt"
	"strconv"
	"strings"
)

var rateUnits = []struct {
	suffix string
	scale  float64
}{
	{"gbps", 1e9},
	{"mbps", 1e6},
	{"kbps", 1e3},
	{"bps", 1},
}

// ParseDataRate parses strings such as "10Mbps", "100Kbps" or "500bps" into bits per second.
// A bare number is taken as bits per second.
func ParseDataRate(s string) (float64, error) {
	text := strings.ToLower(strings.TrimSpace(s))
	if text == "" {
		return 0, fmt.Errorf("empty data rate")
	}
	scale := 1.0
	for _, u := range rateUnits {
		if strings.HasSuffix(text, u.suffix) {
			text = strings.TrimSpace(strings.TrimSuffix(text, u.suffix))
			scale = u.scale
			break
		}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid data rate %q: %w", s, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("data rate %q must be positive", s)
	}
	return v * scale, nil
}

// FormatDataRate renders bits per second with the largest whole unit
func FormatDataRate(bps float64) string {
	for _, u := range rateUnits {
		if bps >= u.scale && u.scale > 1 {
			return strconv.FormatFloat(bps/u.scale, 'g', -1, 64) + strings.ToUpper(u.suffix[:1]) + "bps"
		}
	}
	return strconv.FormatFloat(bps, 'g', -1, 64) + "bps"
}
