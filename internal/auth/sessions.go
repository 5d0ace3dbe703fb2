package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/fittrack/pkg"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultSessionTTL = 24 * 7 * time.Hour
	sessionKeyPrefix  = "fittrack-session||"
	tokensSetKey      = "fittrack-sessions"
)

var ErrSessionNotFound = errors.New("session not found")

type sessionRecord struct {
	Identity
	CreatedAt int64 `json:"created_at"`
}

// SessionStore keeps web session tokens in redis, mapped to the
// identity of the logged-in user.
type SessionStore struct {
	redisClient *redis.Client
	ttl         time.Duration
	// ability to inject random string generator func for tokens (for unit and dev testing)
	RandStringFunc func(s int) (string, error)
}

func NewSessionStore(ttl time.Duration, redisClient *redis.Client) *SessionStore {
	return &SessionStore{
		ttl:            ttl,
		redisClient:    redisClient,
		RandStringFunc: pkg.GenerateRandomString,
	}
}

// Add creates a new session for the given identity and returns its token.
func (ss *SessionStore) Add(ctx context.Context, identity Identity, createdAt time.Time) (string, error) {
	token, err := ss.RandStringFunc(32)
	if err != nil {
		return "", err
	}

	recordJson, err := json.Marshal(sessionRecord{
		Identity:  identity,
		CreatedAt: createdAt.Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal session record: %w", err)
	}

	sessionKey := sessionKeyPrefix + token
	if err := ss.redisClient.Set(ctx, sessionKey, recordJson, 0).Err(); err != nil {
		return "", err
	}

	// add token to list of sessions
	if err := ss.redisClient.SAdd(ctx, tokensSetKey, token).Err(); err != nil {
		return "", err
	}

	return token, nil
}

// Get returns the identity bound to the token, or ErrSessionNotFound for
// unknown and expired sessions.
func (ss *SessionStore) Get(ctx context.Context, token string) (*Identity, error) {
	sessionKey := sessionKeyPrefix + token
	cmd := ss.redisClient.Get(ctx, sessionKey)
	if err := cmd.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	var record sessionRecord
	if err := json.Unmarshal([]byte(cmd.Val()), &record); err != nil {
		return nil, fmt.Errorf("unmarshal session record: %w", err)
	}

	createdAt := time.Unix(record.CreatedAt, 0)
	if time.Since(createdAt) > ss.ttl {
		return nil, ErrSessionNotFound
	}

	return &record.Identity, nil
}

// Remove drops the session; returns false when the token was not known.
func (ss *SessionStore) Remove(ctx context.Context, token string) (bool, error) {
	sessionKey := sessionKeyPrefix + token
	removed, err := ss.redisClient.Del(ctx, sessionKey).Result()
	if err != nil {
		return false, err
	}

	// remove token from the list of sessions
	if err := ss.redisClient.SRem(ctx, tokensSetKey, token).Err(); err != nil {
		return false, err
	}

	return removed > 0, nil
}

// ScanAndClean will run through all sessions, check the TTL, and clean them if old
func (ss *SessionStore) ScanAndClean(ctx context.Context) {
	cmd := ss.redisClient.SMembers(ctx, tokensSetKey)
	if err := cmd.Err(); err != nil {
		log.Errorf("!!! session store, scan and clean, get sessions: %s", err)
		return
	}

	sessionTokens := cmd.Val()
	if len(sessionTokens) == 0 {
		log.Debugln("=> session store, scan and clean abort, no sessions")
		return
	}

	log.Debugf("=> session store, scan and clean [%d sessions] start ...", len(sessionTokens))
	var toRemove []string
	for _, token := range sessionTokens {
		sessionKey := sessionKeyPrefix + token
		cmd := ss.redisClient.Get(ctx, sessionKey)
		if err := cmd.Err(); err != nil {
			if errors.Is(err, redis.Nil) {
				toRemove = append(toRemove, token)
				continue
			}
			log.Errorf("=> session store, scan and clean token %s: %s", token, err)
			continue
		}

		var record sessionRecord
		if err := json.Unmarshal([]byte(cmd.Val()), &record); err != nil {
			log.Errorf("=> session store, scan and clean token %s: %s", token, err)
			toRemove = append(toRemove, token)
			continue
		}

		createdAt := time.Unix(record.CreatedAt, 0)
		if time.Since(createdAt) > ss.ttl {
			log.Debugf("=>\twill clean the session with token: %s", token)
			toRemove = append(toRemove, token)
		}
	}

	for _, token := range toRemove {
		sessionKey := sessionKeyPrefix + token
		if err := ss.redisClient.Del(ctx, sessionKey).Err(); err != nil {
			log.Errorf("=> session store, clean token %s: %s", token, err)
			continue
		}

		// remove token from the list of sessions
		if err := ss.redisClient.SRem(ctx, tokensSetKey, token).Err(); err != nil {
			log.Errorf("=> session store, clean token %s: %s", token, err)
			continue
		}
	}
}
