package repository

import "github.com/redis/go-redis/v9"

// All scripts take every timestamp as an ARGV so a tick observed by the script
// is exactly the tick the caller decided on. Active membership is valid iff its
// score (expiry, unix millis) is strictly in the future.

// KEYS: queue, active, threshold
// ARGV: userID, nowMs, defaultThreshold
// Returns: {inQueue, inActive, position, queueSize, activeCount, effectiveThreshold}
const queueCheckScript = `
local rank = redis.call('ZRANK', KEYS[1], ARGV[1])
local inQueue = 0
local pos = -1
if rank then
	inQueue = 1
	pos = rank + 1
end

local inActive = 0
local expiry = redis.call('ZSCORE', KEYS[2], ARGV[1])
if expiry and tonumber(expiry) > tonumber(ARGV[2]) then
	inActive = 1
end

local queueSize = redis.call('ZCARD', KEYS[1])
local activeCount = redis.call('ZCOUNT', KEYS[2], '(' .. ARGV[2], '+inf')

local threshold = redis.call('GET', KEYS[3])
if not threshold then
	threshold = ARGV[3]
end

return {inQueue, inActive, pos, queueSize, activeCount, tonumber(threshold)}
`

// KEYS: queue, active, seenQueue, seenActive, threshold
// ARGV: nowMs, defaultThreshold, batchSize, activeTtlMs
// Pops up to min(batchSize, threshold - liveActiveCount) lowest-score queue
// members into the active set. Returns the count admitted.
const admitBatchScript = `
local threshold = tonumber(redis.call('GET', KEYS[5]) or ARGV[2])
local activeCount = redis.call('ZCOUNT', KEYS[2], '(' .. ARGV[1], '+inf')
local slots = threshold - activeCount
if slots <= 0 then
	return 0
end

local batch = tonumber(ARGV[3])
if slots < batch then
	batch = slots
end

local members = redis.call('ZRANGE', KEYS[1], 0, batch - 1)
if #members == 0 then
	return 0
end

local expiry = tonumber(ARGV[1]) + tonumber(ARGV[4])
for _, member in ipairs(members) do
	redis.call('ZADD', KEYS[2], expiry, member)
	redis.call('ZADD', KEYS[4], ARGV[1], member)
end
redis.call('ZREM', KEYS[1], unpack(members))
redis.call('ZREM', KEYS[3], unpack(members))

return #members
`

// KEYS: queue, seenQueue
// ARGV: cutoffMs, limit
// Removes a capped batch of queue members whose last heartbeat is older than
// the cutoff. Returns the count removed.
const sweepStaleQueueScript = `
local stale = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #stale == 0 then
	return 0
end

redis.call('ZREM', KEYS[1], unpack(stale))
redis.call('ZREM', KEYS[2], unpack(stale))

return #stale
`

// KEYS: queue, active
// ARGV: nowMs
// Returns 1 when the event has no queued members and no unexpired active
// members, 0 otherwise.
const eventDrainedScript = `
if redis.call('ZCARD', KEYS[1]) > 0 then
	return 0
end
if redis.call('ZCOUNT', KEYS[2], '(' .. ARGV[1], '+inf') > 0 then
	return 0
end
return 1
`

var (
	queueCheckCmd      = redis.NewScript(queueCheckScript)
	admitBatchCmd      = redis.NewScript(admitBatchScript)
	sweepStaleQueueCmd = redis.NewScript(sweepStaleQueueScript)
	eventDrainedCmd    = redis.NewScript(eventDrainedScript)
)
