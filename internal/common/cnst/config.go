package cnst

const (
	OSRFYaml = "osrf.yaml"
)

const (
	TransportMemory = "memory"
	TransportRedis  = "redis"
)

const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

const (
	RedisClusterTypeSentinel = "sentinel"
	RedisClusterTypeCluster  = "cluster"
	RedisClusterTypeSingle   = "single"
)
