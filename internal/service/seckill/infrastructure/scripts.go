// internal/service/seckill/infrastructure/scripts.go
package infrastructure

// 秒杀闸门脚本。
// KEYS[1] 场次剩余额度，KEYS[2] 该用户已占额度。
// "判断 + 扣减"必须在一个脚本里做完，两条命令之间就是超卖窗口。

// admitScript 返回值：>=0 剩余额度；-1 额度不足；-2 超过单用户限购。
const admitScript = `
local stock = tonumber(redis.call('GET', KEYS[1]) or '-1')
local qty = tonumber(ARGV[1])
local cap = tonumber(ARGV[2])
if stock < 0 then
  return -1
end
if stock < qty then
  return -1
end
local used = tonumber(redis.call('GET', KEYS[2]) or '0')
if used + qty > cap then
  return -2
end
redis.call('DECRBY', KEYS[1], qty)
redis.call('INCRBY', KEYS[2], qty)
redis.call('EXPIRE', KEYS[2], tonumber(ARGV[3]))
return stock - qty
`

// refundScript 归还额度。补偿可能重试，用户占用额度减到 0 为止，
// 场次额度只在用户确实占着额度时回加，重复退款不会凭空造库存。
// 场次已被 Drain 后库存键不回写，否则会留下一个没有 TTL 的孤儿键。
const refundScript = `
local used = tonumber(redis.call('GET', KEYS[2]) or '0')
local qty = tonumber(ARGV[1])
if used <= 0 then
  return 0
end
if qty > used then
  qty = used
end
redis.call('DECRBY', KEYS[2], qty)
if redis.call('EXISTS', KEYS[1]) == 1 then
  redis.call('INCRBY', KEYS[1], qty)
end
return qty
`

// primeScript 装载场次额度，只在键不存在时写入。
const primeScript = `
local ok = redis.call('SET', KEYS[1], ARGV[1], 'NX', 'EX', tonumber(ARGV[2]))
if ok then
  return 1
end
return 0
`
