package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func RecordingStatusKey(recordingID uuid.UUID) string {
	return fmt.Sprintf("recording:status:%s", recordingID)
}

func ProcessingLockKey(recordingID uuid.UUID) string {
	return fmt.Sprintf("recording:lock:%s", recordingID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
