package repository

// Key layout:
//
//	meeting:{id}                     meeting JSON
//	availability:{id}:{participant}  availability JSON or a legacy date array
//	shortlink:{code}                 short link JSON
//
// Participant names are validated to exclude ':' and glob characters, so a
// name can never escape its meeting's prefix.

const (
	meetingPrefix      = "meeting:"
	availabilityPrefix = "availability:"
	shortLinkPrefix    = "shortlink:"
)

func meetingKey(id string) string { return meetingPrefix + id }

func availabilityKeyPrefix(meetingID string) string {
	return availabilityPrefix + meetingID + ":"
}

func availabilityKey(meetingID, participant string) string {
	return availabilityKeyPrefix(meetingID) + participant
}

func shortLinkKey(code string) string { return shortLinkPrefix + code }
