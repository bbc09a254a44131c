package redisstore

import goredis "github.com/redis/go-redis/v9"

// KEYS[1] doc, KEYS[2] etag counter, KEYS[3] id set
// ARGV[1] id, ARGV[2] body, ARGV[3] timestamp (unix ms)
var createScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return -409
end
local etag = tostring(redis.call("INCR", KEYS[2]))
redis.call("HSET", KEYS[1], "etag", etag, "body", ARGV[2], "ts", ARGV[3])
redis.call("SADD", KEYS[3], ARGV[1])
return etag`)

// KEYS[1] doc, KEYS[2] etag counter
// ARGV[1] expected etag, ARGV[2] body, ARGV[3] timestamp (unix ms)
var replaceScript = goredis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "etag")
if not cur then
	return -404
end
if cur ~= ARGV[1] then
	return -412
end
local etag = tostring(redis.call("INCR", KEYS[2]))
redis.call("HSET", KEYS[1], "etag", etag, "body", ARGV[2], "ts", ARGV[3])
return etag`)

// KEYS[1] doc, KEYS[2] id set
// ARGV[1] id, ARGV[2] expected etag ("" = unconditional)
var deleteScript = goredis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "etag")
if not cur then
	return -404
end
if ARGV[2] ~= "" and cur ~= ARGV[2] then
	return -412
end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return 1`)

// KEYS[1] feed stream
// ARGV[1] ID of the first entry when the stream is still empty ("" = auto),
// ARGV[2..] id/body pairs
var appendScript = goredis.NewScript(`
local first = "*"
if ARGV[1] ~= "" and redis.call("XLEN", KEYS[1]) == 0 then
	first = ARGV[1]
end
local last = ""
for i = 2, #ARGV, 2 do
	last = redis.call("XADD", KEYS[1], first, "id", ARGV[i], "body", ARGV[i + 1])
	first = "*"
end
return last`)
