package security

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/bvanengelen78/guardrail/internal/clock"
	"github.com/bvanengelen78/guardrail/internal/models"
)

// EvictFunc is called with sessions invalidated to satisfy the per-user cap
type EvictFunc func(evicted models.Session)

// SessionStore holds login sessions and enforces idle timeout, absolute
// timeout and a per-user concurrency cap.
//
// Lock order: a user's index shard is always taken before any session shard.
type SessionStore struct {
	sessions *shardedMap[*models.Session]
	byUser   *shardedMap[map[string]struct{}]
	config   SessionConfig
	clock    clock.Clock
	onEvict  EvictFunc
}

// NewSessionStore creates a SessionStore
func NewSessionStore(clk clock.Clock, config SessionConfig, shards int) *SessionStore {
	return &SessionStore{
		sessions: newShardedMap[*models.Session](shards),
		byUser:   newShardedMap[map[string]struct{}](shards),
		config:   config,
		clock:    clk,
	}
}

// OnEvict registers a hook for cap evictions. Call before serving traffic.
func (ss *SessionStore) OnEvict(fn EvictFunc) {
	ss.onEvict = fn
}

// Create starts a session for userID. The cap is enforced after insertion,
// so the new session always survives and the least recently accessed
// sessions are invalidated.
func (ss *SessionStore) Create(userID, userAgent, ipAddress string, rememberMe bool) (*models.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", models.ErrInvalidConfig)
	}

	now := ss.clock.Now()
	ttl := ss.config.ShortTTL
	if rememberMe {
		ttl = ss.config.LongTTL
	}

	s := &models.Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		UserAgent:      userAgent,
		IPAddress:      ipAddress,
		CreatedAt:      now,
		LastAccessedAt: now,
		ExpiresAt:      now.Add(ttl),
		IsActive:       true,
	}
	out := *s

	var evicted []models.Session
	ss.byUser.with(userID, func(index map[string]map[string]struct{}) {
		ss.sessions.with(s.ID, func(items map[string]*models.Session) {
			items[s.ID] = s
		})

		ids, ok := index[userID]
		if !ok {
			ids = make(map[string]struct{})
			index[userID] = ids
		}
		ids[s.ID] = struct{}{}

		evicted = ss.enforceCap(ids, s.ID, now)
	})

	if ss.onEvict != nil {
		for _, e := range evicted {
			ss.onEvict(e)
		}
	}

	return &out, nil
}

// enforceCap must be called holding the user's index shard
func (ss *SessionStore) enforceCap(ids map[string]struct{}, keep string, now time.Time) []models.Session {
	var active []models.Session
	for id := range ids {
		ss.sessions.with(id, func(items map[string]*models.Session) {
			s, ok := items[id]
			if !ok || !s.IsActive || now.After(s.ExpiresAt) {
				delete(ids, id)
				return
			}
			active = append(active, *s)
		})
	}

	over := len(active) - ss.config.MaxConcurrentSessions
	if over <= 0 {
		return nil
	}

	slices.SortFunc(active, func(a, b models.Session) int {
		return a.LastAccessedAt.Compare(b.LastAccessedAt)
	})

	var evicted []models.Session
	for _, candidate := range active {
		if len(evicted) >= over {
			break
		}
		if candidate.ID == keep {
			continue
		}
		ss.sessions.with(candidate.ID, func(items map[string]*models.Session) {
			if s, ok := items[candidate.ID]; ok && s.IsActive {
				s.IsActive = false
				evicted = append(evicted, *s)
			}
		})
		delete(ids, candidate.ID)
	}
	return evicted
}

// Validate checks existence, active flag, absolute expiry, idle expiry and
// the optional IP and user agent bindings, in that order. On success the
// access time is refreshed and NeedsRotation reports whether the session
// has outlived the rotation interval.
func (ss *SessionStore) Validate(sessionID, userAgent, ipAddress string) models.SessionValidation {
	now := ss.clock.Now()
	var v models.SessionValidation

	ss.sessions.with(sessionID, func(items map[string]*models.Session) {
		s, ok := items[sessionID]
		switch {
		case !ok:
			v.Reason = models.SessionReasonNotFound
		case !s.IsActive:
			v.Reason = models.SessionReasonInactive
		case now.After(s.ExpiresAt):
			s.IsActive = false
			v.Reason = models.SessionReasonExpired
		case now.Sub(s.LastAccessedAt) > ss.config.IdleTimeout:
			s.IsActive = false
			v.Reason = models.SessionReasonIdleTimeout
		case ss.config.BindIP && s.IPAddress != ipAddress:
			v.Reason = models.SessionReasonIPMismatch
		case ss.config.BindUserAgent && s.UserAgent != userAgent:
			v.Reason = models.SessionReasonUserAgentMismatch
		default:
			s.LastAccessedAt = now
			cp := *s
			v = models.SessionValidation{
				Valid:         true,
				NeedsRotation: now.Sub(s.CreatedAt) > ss.config.RotationInterval,
				Session:       &cp,
			}
		}
	})

	return v
}

// Get returns a copy of the session regardless of its state
func (ss *SessionStore) Get(sessionID string) (*models.Session, bool) {
	var out *models.Session
	ss.sessions.with(sessionID, func(items map[string]*models.Session) {
		if s, ok := items[sessionID]; ok {
			cp := *s
			out = &cp
		}
	})
	return out, out != nil
}

// Rotate replaces an active session with a new id carrying the same user,
// context and absolute expiry. The old session is invalidated.
func (ss *SessionStore) Rotate(sessionID string) (*models.Session, error) {
	current, ok := ss.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("rotate %s: %w", sessionID, models.ErrSessionInvalid)
	}

	now := ss.clock.Now()
	var rotated *models.Session
	var err error

	ss.byUser.with(current.UserID, func(index map[string]map[string]struct{}) {
		ss.sessions.with(sessionID, func(items map[string]*models.Session) {
			s, ok := items[sessionID]
			if !ok || !s.IsActive || now.After(s.ExpiresAt) {
				err = fmt.Errorf("rotate %s: %w", sessionID, models.ErrSessionInvalid)
				return
			}
			s.IsActive = false
			rotated = &models.Session{
				ID:             uuid.NewString(),
				UserID:         s.UserID,
				UserAgent:      s.UserAgent,
				IPAddress:      s.IPAddress,
				CreatedAt:      now,
				LastAccessedAt: now,
				ExpiresAt:      s.ExpiresAt,
				IsActive:       true,
				RotationCount:  s.RotationCount + 1,
			}
		})
		if err != nil {
			return
		}

		ss.sessions.with(rotated.ID, func(items map[string]*models.Session) {
			items[rotated.ID] = rotated
		})
		ids, ok := index[current.UserID]
		if !ok {
			ids = make(map[string]struct{})
			index[current.UserID] = ids
		}
		delete(ids, sessionID)
		ids[rotated.ID] = struct{}{}
	})

	if err != nil {
		return nil, err
	}
	out := *rotated
	return &out, nil
}

// Invalidate deactivates a session. It returns false if the session was
// unknown or already inactive.
func (ss *SessionStore) Invalidate(sessionID string) bool {
	var userID string
	changed := false

	ss.sessions.with(sessionID, func(items map[string]*models.Session) {
		if s, ok := items[sessionID]; ok {
			userID = s.UserID
			if s.IsActive {
				s.IsActive = false
				changed = true
			}
		}
	})

	if userID != "" {
		ss.byUser.with(userID, func(index map[string]map[string]struct{}) {
			if ids, ok := index[userID]; ok {
				delete(ids, sessionID)
				if len(ids) == 0 {
					delete(index, userID)
				}
			}
		})
	}

	return changed
}

// InvalidateAllForUser deactivates every active session of userID and
// returns how many were active.
func (ss *SessionStore) InvalidateAllForUser(userID string) int {
	count := 0
	ss.byUser.with(userID, func(index map[string]map[string]struct{}) {
		for id := range index[userID] {
			ss.sessions.with(id, func(items map[string]*models.Session) {
				if s, ok := items[id]; ok && s.IsActive {
					s.IsActive = false
					count++
				}
			})
		}
		delete(index, userID)
	})
	return count
}

// ListForUser returns copies of the user's active sessions
func (ss *SessionStore) ListForUser(userID string) []models.Session {
	now := ss.clock.Now()
	var out []models.Session
	ss.byUser.with(userID, func(index map[string]map[string]struct{}) {
		for id := range index[userID] {
			ss.sessions.with(id, func(items map[string]*models.Session) {
				if s, ok := items[id]; ok && s.IsActive && !now.After(s.ExpiresAt) {
					out = append(out, *s)
				}
			})
		}
	})
	slices.SortFunc(out, func(a, b models.Session) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// Sweep deletes sessions that are inactive or past their absolute or idle
// expiry. User index entries are pruned lazily by Create and Invalidate.
func (ss *SessionStore) Sweep() int {
	now := ss.clock.Now()
	var stale []models.Session
	removed := ss.sessions.sweep(func(_ string, s *models.Session) bool {
		dead := !s.IsActive || now.After(s.ExpiresAt) || now.Sub(s.LastAccessedAt) > ss.config.IdleTimeout
		if dead {
			stale = append(stale, *s)
		}
		return dead
	})

	for _, s := range stale {
		ss.byUser.with(s.UserID, func(index map[string]map[string]struct{}) {
			if ids, ok := index[s.UserID]; ok {
				delete(ids, s.ID)
				if len(ids) == 0 {
					delete(index, s.UserID)
				}
			}
		})
	}
	return removed
}

// Len returns the number of stored sessions and how many are active
func (ss *SessionStore) Len() (total, active int) {
	ss.sessions.each(func(_ string, s *models.Session) {
		total++
		if s.IsActive {
			active++
		}
	})
	return total, active
}
