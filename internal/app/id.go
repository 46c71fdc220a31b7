package app

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// generateDraftID produces a temporary draft identifier of the form
// TEMP-<base36 epoch millis>-<6 hex>, upper case.
func generateDraftID(now time.Time) (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	stamp := strconv.FormatInt(now.UnixMilli(), 36)
	return strings.ToUpper("TEMP-" + stamp + "-" + hex.EncodeToString(b)), nil
}
