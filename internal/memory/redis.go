package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the same records in Redis instead of JSON files.
// Key schema mirrors the file layout:
//
//	muse:rel:{role}:{user}[:{community}]   relationship JSON
//	muse:chat:{role}:{user}[:{community}]  transcript list (RPUSH/LTRIM)
//	muse:community:{community}             community JSON
//	muse:mood:{role}                       mood JSON
type RedisStore struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ctx:    context.Background(),
	}
}

func (s *RedisStore) relKey(id Identity) string  { return "muse:rel:" + id.Key() }
func (s *RedisStore) chatKey(id Identity) string { return "muse:chat:" + id.Key() }

func (s *RedisStore) Relationship(id Identity) *Relationship {
	raw, err := s.client.Get(s.ctx, s.relKey(id)).Result()
	if err != nil {
		return DefaultRelationship()
	}
	var r Relationship
	if json.Unmarshal([]byte(raw), &r) != nil {
		return DefaultRelationship()
	}
	if r.Facts == nil {
		r.Facts = []string{}
	}
	r.Clamp()
	return &r
}

func (s *RedisStore) SaveRelationship(id Identity, r *Relationship) error {
	if r == nil {
		return nil
	}
	r.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.client.Set(s.ctx, s.relKey(id), b, 0).Err()
}

func (s *RedisStore) Community(communityID string) *Community {
	raw, err := s.client.Get(s.ctx, "muse:community:"+communityID).Result()
	if err != nil {
		return DefaultCommunity()
	}
	var c Community
	if json.Unmarshal([]byte(raw), &c) != nil {
		return DefaultCommunity()
	}
	if c.Facts == nil {
		c.Facts = []string{}
	}
	return &c
}

func (s *RedisStore) SaveCommunity(communityID string, c *Community) error {
	if c == nil {
		return nil
	}
	c.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.client.Set(s.ctx, "muse:community:"+communityID, b, 0).Err()
}

func (s *RedisStore) Transcript(id Identity) []ChatEntry {
	items, err := s.client.LRange(s.ctx, s.chatKey(id), 0, -1).Result()
	if err != nil {
		return nil
	}
	entries := make([]ChatEntry, 0, len(items))
	for _, raw := range items {
		var e ChatEntry
		if json.Unmarshal([]byte(raw), &e) == nil {
			entries = append(entries, e)
		}
	}
	return entries
}

func (s *RedisStore) AppendTranscript(id Identity, entries ...ChatEntry) error {
	if len(entries) == 0 {
		return nil
	}
	key := s.chatKey(id)
	values := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		values = append(values, b)
	}
	if err := s.client.RPush(s.ctx, key, values...).Err(); err != nil {
		return err
	}
	return s.client.LTrim(s.ctx, key, int64(-MaxChatEntries), -1).Err()
}

func (s *RedisStore) Mood(role string) *MoodState {
	raw, err := s.client.Get(s.ctx, "muse:mood:"+role).Result()
	if err != nil {
		return DefaultMoodState()
	}
	var m MoodState
	if json.Unmarshal([]byte(raw), &m) != nil {
		return DefaultMoodState()
	}
	return &m
}

func (s *RedisStore) SaveMood(role string, m *MoodState) error {
	if m == nil {
		return nil
	}
	m.LastUpdated = time.Now().UTC()
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.client.Set(s.ctx, "muse:mood:"+role, b, 0).Err()
}

func (s *RedisStore) Close() error { return s.client.Close() }

var _ Store = (*RedisStore)(nil)
var _ Store = (*FileStore)(nil)
