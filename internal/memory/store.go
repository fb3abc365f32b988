package memory

// Store is the persistence boundary for relationship records, community
// knowledge, chat transcripts, and the agent mood singleton.
//
// Read methods never fail toward the caller: missing or corrupt data is
// recovered locally by returning defaults. Write errors are returned so
// the caller can log them, but a failed save must never abort message
// handling.
type Store interface {
	Relationship(id Identity) *Relationship
	SaveRelationship(id Identity, r *Relationship) error

	Community(communityID string) *Community
	SaveCommunity(communityID string, c *Community) error

	Transcript(id Identity) []ChatEntry
	AppendTranscript(id Identity, entries ...ChatEntry) error

	Mood(role string) *MoodState
	SaveMood(role string, m *MoodState) error

	Close() error
}
