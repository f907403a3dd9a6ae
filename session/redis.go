package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// createWithEvictionScript evicts least-recently-used sessions of one user until
// one more fits under the limit, then writes the new session. Stale IDs in the
// user set (hash already expired) are pruned on the way.
//
// KEYS[1] user set, KEYS[2] new session hash, KEYS[3] refresh index key.
// ARGV: limit, session id, user id, refresh token, last used ms, created ms,
// session key prefix, ttl ms (0 = none).
//
// Reply: {-1} on refresh-token collision, otherwise {1, id, rt, lu, ca, ...}
// listing every evicted session.
const createWithEvictionScript = `
local user_key = KEYS[1]
local session_key = KEYS[2]
local rt_key = KEYS[3]
local limit = tonumber(ARGV[1])
local sid = ARGV[2]
local prefix = ARGV[7]
local ttl = tonumber(ARGV[8])

if redis.call("EXISTS", rt_key) == 1 then
  return {-1}
end

local live = {}
for _, id in ipairs(redis.call("SMEMBERS", user_key)) do
  local fields = redis.call("HMGET", prefix .. id, "lu", "ca", "rt", "rk")
  if fields[1] then
    table.insert(live, {id = id, lu = tonumber(fields[1]), lus = fields[1], ca = fields[2], rt = fields[3], rk = fields[4]})
  else
    redis.call("SREM", user_key, id)
  end
end

table.sort(live, function(a, b)
  if a.lu == b.lu then
    return a.id < b.id
  end
  return a.lu < b.lu
end)

local out = {1}
local remaining = #live
local i = 1
while remaining >= limit do
  local v = live[i]
  redis.call("DEL", prefix .. v.id)
  if v.rk then
    redis.call("DEL", v.rk)
  end
  redis.call("SREM", user_key, v.id)
  table.insert(out, v.id)
  table.insert(out, v.rt or "")
  table.insert(out, v.lus)
  table.insert(out, v.ca or "0")
  remaining = remaining - 1
  i = i + 1
end

redis.call("HSET", session_key, "uid", ARGV[3], "rt", ARGV[4], "lu", ARGV[5], "ca", ARGV[6], "rk", rt_key)
redis.call("SET", rt_key, sid)
redis.call("SADD", user_key, sid)
if ttl > 0 then
  redis.call("PEXPIRE", session_key, ttl)
  redis.call("PEXPIRE", rt_key, ttl)
end

return out
`

var createWithEvictionLua = redis.NewScript(createWithEvictionScript)

// deleteSessionScript removes the hash, its refresh index and its user-set entry.
// KEYS[1] session hash. ARGV[1] session id, ARGV[2] user set prefix.
const deleteSessionScript = `
local fields = redis.call("HMGET", KEYS[1], "uid", "rk")
if not fields[1] then
  return 0
end
redis.call("DEL", KEYS[1])
if fields[2] then
  redis.call("DEL", fields[2])
end
redis.call("SREM", ARGV[2] .. fields[1], ARGV[1])
return 1
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// touchSessionScript sets last-used on an existing hash without resetting its TTL.
const touchSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "lu", ARGV[1])
return 1
`

var touchSessionLua = redis.NewScript(touchSessionScript)

// RedisStore keeps each session in a hash, one set of session IDs per user and
// a refresh-token index pointing at the session ID. It implements [AtomicCreator]
// through a Lua script so eviction and insert happen in one round trip.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a [RedisStore]. prefix namespaces every key (default
// "sc"); ttl, when positive, bounds how long an untouched record survives and is
// normally set to the refresh-token lifetime.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "sc"
	}
	return &RedisStore{redis: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) sessionPrefix() string { return s.prefix + ":s:" }
func (s *RedisStore) userPrefix() string    { return s.prefix + ":u:" }

func (s *RedisStore) key(sessionID string) string {
	return s.sessionPrefix() + sessionID
}

func (s *RedisStore) userKey(userID int64) string {
	return s.userPrefix() + strconv.FormatInt(userID, 10)
}

// refreshKey indexes by digest so raw tokens never appear in key names.
func (s *RedisStore) refreshKey(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return s.prefix + ":rt:" + hex.EncodeToString(sum[:])
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

func prepareInsert(sess *Session) (*Session, error) {
	if sess == nil {
		return nil, errors.New("nil session")
	}
	out := sess.Clone()
	if out.ID == "" {
		id, err := NewID()
		if err != nil {
			return nil, err
		}
		out.ID = id
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = out.LastUsedAt
	}
	return out, nil
}

// Insert stores sess under a fresh ID.
func (s *RedisStore) Insert(ctx context.Context, sess *Session) (*Session, error) {
	out, err := prepareInsert(sess)
	if err != nil {
		return nil, err
	}

	rtKey := s.refreshKey(out.RefreshToken)
	ok, err := s.redis.SetNX(ctx, rtKey, out.ID, s.ttl).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if !ok {
		return nil, ErrRefreshTokenInUse
	}

	sessionKey := s.key(out.ID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey,
			"uid", strconv.FormatInt(out.UserID, 10),
			"rt", out.RefreshToken,
			"lu", strconv.FormatInt(out.LastUsedAt.UnixMilli(), 10),
			"ca", strconv.FormatInt(out.CreatedAt.UnixMilli(), 10),
			"rk", rtKey,
		)
		if s.ttl > 0 {
			pipe.PExpire(ctx, sessionKey, s.ttl)
		}
		pipe.SAdd(ctx, s.userKey(out.UserID), out.ID)
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}

	return out, nil
}

// CreateWithEviction implements [AtomicCreator].
func (s *RedisStore) CreateWithEviction(ctx context.Context, sess *Session, limit int) (*Session, []*Session, error) {
	out, err := prepareInsert(sess)
	if err != nil {
		return nil, nil, err
	}
	if limit < 1 {
		limit = 1
	}

	rtKey := s.refreshKey(out.RefreshToken)
	keys := []string{s.userKey(out.UserID), s.key(out.ID), rtKey}
	res, err := createWithEvictionLua.Run(ctx, s.redis, keys,
		limit,
		out.ID,
		strconv.FormatInt(out.UserID, 10),
		out.RefreshToken,
		strconv.FormatInt(out.LastUsedAt.UnixMilli(), 10),
		strconv.FormatInt(out.CreatedAt.UnixMilli(), 10),
		s.sessionPrefix(),
		s.ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, nil, unavailable(err)
	}
	if len(res) == 0 {
		return nil, nil, unavailable(errors.New("empty script reply"))
	}
	if status, _ := res[0].(int64); status == -1 {
		return nil, nil, ErrRefreshTokenInUse
	}

	rest := res[1:]
	evicted := make([]*Session, 0, len(rest)/4)
	for i := 0; i+3 < len(rest); i += 4 {
		evicted = append(evicted, &Session{
			ID:           replyString(rest[i]),
			UserID:       out.UserID,
			RefreshToken: replyString(rest[i+1]),
			LastUsedAt:   parseMillis(replyString(rest[i+2])),
			CreatedAt:    parseMillis(replyString(rest[i+3])),
		})
	}

	return out, evicted, nil
}

// FindByUser returns every live session of userID and prunes stale set members.
func (s *RedisStore) FindByUser(ctx context.Context, userID int64) ([]*Session, error) {
	userKey := s.userKey(userID)
	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, unavailable(err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	sessions := make([]*Session, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, unavailable(err)
		}
		sess, ok := sessionFromHash(ids[i], fields)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		sessions = append(sessions, sess)
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, unavailable(err)
		}
	}

	return sessions, nil
}

// FindByRefreshToken resolves the refresh index and loads the session.
func (s *RedisStore) FindByRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	id, err := s.redis.Get(ctx, s.refreshKey(refreshToken)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}

	fields, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	sess, ok := sessionFromHash(id, fields)
	if !ok || sess.RefreshToken != refreshToken {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete removes the session, its refresh index and its user-set entry.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	deleted, err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(sessionID)}, sessionID, s.userPrefix()).Int64()
	if err != nil {
		return unavailable(err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

// Update persists LastUsedAt. The record TTL is left untouched.
func (s *RedisStore) Update(ctx context.Context, sess *Session) error {
	if sess == nil {
		return errors.New("nil session")
	}
	ok, err := touchSessionLua.Run(ctx, s.redis, []string{s.key(sess.ID)}, strconv.FormatInt(sess.LastUsedAt.UnixMilli(), 10)).Int64()
	if err != nil {
		return unavailable(err)
	}
	if ok == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping reports whether the backing Redis answers.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func sessionFromHash(id string, fields map[string]string) (*Session, bool) {
	if len(fields) == 0 {
		return nil, false
	}
	uid, err := strconv.ParseInt(fields["uid"], 10, 64)
	if err != nil {
		return nil, false
	}
	return &Session{
		ID:           id,
		UserID:       uid,
		RefreshToken: fields["rt"],
		LastUsedAt:   parseMillis(fields["lu"]),
		CreatedAt:    parseMillis(fields["ca"]),
	}, true
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func replyString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
