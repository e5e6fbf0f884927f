package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps session documents in Redis: the preference as a string
// key and the transcript as a list, one JSON message per element.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func preferenceKey(userID string) string {
	return fmt.Sprintf("session:%s:preference", userID)
}

func transcriptKey(userID string) string {
	return fmt.Sprintf("session:%s:transcript", userID)
}

func (s *RedisStore) Get(ctx context.Context, userID string) (Session, error) {
	sess := Session{UserID: userID}

	pref, err := s.client.Get(ctx, preferenceKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return Session{}, fmt.Errorf("reading preference for %s: %w", userID, err)
	}
	sess.Preference = pref

	vals, err := s.client.LRange(ctx, transcriptKey(userID), 0, -1).Result()
	if err != nil {
		return Session{}, fmt.Errorf("reading transcript for %s: %w", userID, err)
	}
	for _, v := range vals {
		var msg Message
		if err := json.Unmarshal([]byte(v), &msg); err != nil {
			continue // skip malformed entries
		}
		sess.Transcript = append(sess.Transcript, msg)
	}
	return sess, nil
}

func (s *RedisStore) SetPreference(ctx context.Context, userID, preference string) error {
	if err := s.client.Set(ctx, preferenceKey(userID), preference, 0).Err(); err != nil {
		return fmt.Errorf("storing preference for %s: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) ClearPreference(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, preferenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("clearing preference for %s: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) SetTranscript(ctx context.Context, userID string, transcript []Message, maxLen int) error {
	if maxLen > 0 && len(transcript) > maxLen {
		transcript = transcript[len(transcript)-maxLen:]
	}

	key := transcriptKey(userID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	for _, msg := range transcript {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshaling transcript entry: %w", err)
		}
		pipe.RPush(ctx, key, string(data))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing transcript for %s: %w", userID, err)
	}
	return nil
}
