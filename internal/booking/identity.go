package booking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// TaskID derives a deterministic task identity from the trigger instant and
// the slot payload. Submitting the same slots for the same instant always
// yields the same id, so a resubmission replaces rather than duplicates.
func TaskID(triggerAt time.Time, slots []SlotSelection) string {
	payload, _ := json.Marshal(slots)
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("task_%d_%s", triggerAt.Unix(), hex.EncodeToString(sum[:6]))
}
