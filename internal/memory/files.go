package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps memory as JSON files under a data root:
//
//	memory/{role}/{user}/memory.json
//	memory/{role}/{user}/chat.json
//	memory/{role}/{user}/servers/{community}/memory.json + chat.json
//	servers/{community}/memory.json + chat.json
//	memory/{role}/ai_mood.json
type FileStore struct {
	root string
	mu   sync.Mutex
}

func NewFileStore(root string) *FileStore {
	if root == "" {
		root = "data"
	}
	return &FileStore{root: root}
}

func (s *FileStore) identityDir(id Identity) string {
	dir := filepath.Join(s.root, "memory", id.Role, id.UserID)
	if !id.Private() {
		dir = filepath.Join(dir, "servers", id.CommunityID)
	}
	return dir
}

func (s *FileStore) communityDir(communityID string) string {
	return filepath.Join(s.root, "servers", communityID)
}

func (s *FileStore) Relationship(id Identity) *Relationship {
	s.mu.Lock()
	defer s.mu.Unlock()
	var r Relationship
	if !readJSON(filepath.Join(s.identityDir(id), "memory.json"), &r) {
		return DefaultRelationship()
	}
	if r.Facts == nil {
		r.Facts = []string{}
	}
	r.Clamp()
	return &r
}

func (s *FileStore) SaveRelationship(id Identity, r *Relationship) error {
	if r == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return writeJSON(filepath.Join(s.identityDir(id), "memory.json"), r)
}

func (s *FileStore) Community(communityID string) *Community {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c Community
	if !readJSON(filepath.Join(s.communityDir(communityID), "memory.json"), &c) {
		return DefaultCommunity()
	}
	if c.Facts == nil {
		c.Facts = []string{}
	}
	return &c
}

func (s *FileStore) SaveCommunity(communityID string, c *Community) error {
	if c == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return writeJSON(filepath.Join(s.communityDir(communityID), "memory.json"), c)
}

func (s *FileStore) Transcript(id Identity) []ChatEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []ChatEntry
	readJSON(filepath.Join(s.identityDir(id), "chat.json"), &entries)
	return entries
}

func (s *FileStore) AppendTranscript(id Identity, entries ...ChatEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.identityDir(id), "chat.json")
	var existing []ChatEntry
	readJSON(path, &existing)
	existing = append(existing, entries...)
	if len(existing) > MaxChatEntries {
		existing = existing[len(existing)-MaxChatEntries:]
	}
	return writeJSON(path, existing)
}

func (s *FileStore) Mood(role string) *MoodState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var m MoodState
	if !readJSON(filepath.Join(s.root, "memory", role, "ai_mood.json"), &m) {
		return DefaultMoodState()
	}
	return &m
}

func (s *FileStore) SaveMood(role string, m *MoodState) error {
	if m == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m.LastUpdated = time.Now().UTC()
	return writeJSON(filepath.Join(s.root, "memory", role, "ai_mood.json"), m)
}

func (s *FileStore) Close() error { return nil }

// readJSON fills v from the file at path and reports success. Missing
// or corrupt files are recovered by the caller substituting defaults.
func readJSON(path string, v interface{}) bool {
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(b, v) == nil
}

func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
