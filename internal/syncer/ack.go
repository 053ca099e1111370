package syncer

import (
	"strconv"

	"location-relay/internal/database"
)

// matchAcked returns the ids from the read snapshot that the server
// acknowledged. Acked ids outside the snapshot are dropped so a row
// inserted after the batch was read is never deleted. Ids that come back
// as bare numbers ("1700000000.1") match their zero-padded local form.
func matchAcked(snapshot, acked []string) []string {
	byID := make(map[string]string, len(snapshot))
	for _, id := range snapshot {
		byID[id] = id
		if canonical, ok := canonicalID(id); ok {
			if _, exists := byID[canonical]; !exists {
				byID[canonical] = id
			}
		}
	}

	seen := make(map[string]bool, len(acked))
	var ids []string
	for _, ack := range acked {
		id, ok := byID[ack]
		if !ok {
			canonical, valid := canonicalID(ack)
			if !valid {
				continue
			}
			if id, ok = byID[canonical]; !ok {
				continue
			}
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	return ids
}

func canonicalID(id string) (string, bool) {
	secs, err := strconv.ParseFloat(id, 64)
	if err != nil {
		return "", false
	}
	// Round to the nearest microsecond
	us := int64(secs*1e6 + 0.5)
	return database.FormatTimestamp(us), true
}
