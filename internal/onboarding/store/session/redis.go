package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"crecheflow/internal/onboarding/models"
	"crecheflow/pkg/domain"
	"crecheflow/pkg/platform/sentinel"
)

// terminalTTL bounds how long completed/abandoned sessions stay readable for
// support queries before Redis reclaims them. Active sessions never expire;
// there is no timeout on inter-turn gaps.
const terminalTTL = 90 * 24 * time.Hour

// Redis stores sessions as JSON, with a per-identity pointer to the active
// session so FindActiveByIdentity is one GET.
type Redis struct {
	client redis.Cmdable
}

// NewRedis constructs a Redis-backed session store.
func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

func sessionKey(id domain.SessionID) string {
	return "onboarding:session:" + id.String()
}

func activeKey(tenantID domain.TenantID, channelID string) string {
	return "onboarding:active:" + tenantID.String() + ":" + channelID
}

func (s *Redis) FindActiveByIdentity(ctx context.Context, tenantID domain.TenantID, channelID string) (*models.Session, error) {
	sessionID, err := s.client.Get(ctx, activeKey(tenantID, channelID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find active session: %w", err)
	}

	raw, err := s.client.Get(ctx, "onboarding:session:"+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Dangling pointer; treat the identity as having no session.
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var sess models.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &sess, nil
}

func (s *Redis) Create(ctx context.Context, sess *models.Session) error {
	return s.write(ctx, sess)
}

func (s *Redis) Update(ctx context.Context, sess *models.Session) error {
	return s.write(ctx, sess)
}

func (s *Redis) write(ctx context.Context, sess *models.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	pipe := s.client.TxPipeline()
	key := activeKey(sess.TenantID, sess.ChannelID)
	if sess.Status == models.SessionStatusInProgress {
		pipe.Set(ctx, sessionKey(sess.ID), raw, 0)
		pipe.Set(ctx, key, sess.ID.String(), 0)
	} else {
		pipe.Set(ctx, sessionKey(sess.ID), raw, terminalTTL)
		pipe.Del(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// FindByID returns a session regardless of status, or sentinel.ErrNotFound.
func (s *Redis) FindByID(ctx context.Context, sessionID domain.SessionID) (*models.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sess models.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}
