// Package idhash derives record identifiers.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// ComputeCampaignID computes a deterministic campaign_id using SHA256.
// Formula: SHA256(token|volume_required|reward|period_days|url)
// Floats use the shortest decimal form that round-trips.
// Returns hex-encoded hash (64 characters).
func ComputeCampaignID(
	token string,
	volumeRequired float64,
	reward float64,
	periodDays float64,
	url string,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s",
		token,
		formatFloat(volumeRequired),
		formatFloat(reward),
		formatFloat(periodDays),
		url,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
