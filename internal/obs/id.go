package obs

import "github.com/google/uuid"

// GenerateID returns a fresh random identifier suitable for correlating
// a log line or metrics sample across a request's lifetime. Node and
// worker identities use google/uuid directly; this is for the more
// ephemeral, human-facing ids that show up only in logs.
func GenerateID() string {
	return uuid.New().String()
}
