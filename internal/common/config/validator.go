package config

import (
	"fmt"
	"strings"

	"github.com/amoylab/osrf/internal/common/cnst"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one pass
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	var sb strings.Builder
	for i, err := range e {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("--> ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Validate checks the enumerated fields and the values every component relies on.
func Validate(cfg *OSRFConfig) error {
	var errs ValidationErrors

	if strings.ContainsAny(cfg.RouterName, "@/") {
		errs = append(errs, &ValidationError{Field: "router_name", Message: "must not contain '@' or '/'"})
	}
	if strings.ContainsAny(cfg.Domain, "@/") {
		errs = append(errs, &ValidationError{Field: "domain", Message: "must not contain '@' or '/'"})
	}

	switch cfg.Transport.Type {
	case cnst.TransportMemory:
	case cnst.TransportRedis:
		if cfg.Transport.Redis.Addr == "" {
			errs = append(errs, &ValidationError{Field: "transport.redis.addr", Message: "required for redis transport"})
		}
		errs = append(errs, validateClusterType("transport.redis.cluster_type", cfg.Transport.Redis.ClusterType)...)
	default:
		errs = append(errs, &ValidationError{Field: "transport.type", Message: fmt.Sprintf("unsupported transport %q", cfg.Transport.Type)})
	}

	switch cfg.Cache.Type {
	case cnst.CacheMemory:
	case cnst.CacheRedis:
		if cfg.Cache.Redis.Addr == "" {
			errs = append(errs, &ValidationError{Field: "cache.redis.addr", Message: "required for redis cache"})
		}
		errs = append(errs, validateClusterType("cache.redis.cluster_type", cfg.Cache.Redis.ClusterType)...)
	default:
		errs = append(errs, &ValidationError{Field: "cache.type", Message: fmt.Sprintf("unsupported cache %q", cfg.Cache.Type)})
	}

	switch cfg.Journal.Type {
	case "", "sqlite", "mysql", "postgres":
	default:
		errs = append(errs, &ValidationError{Field: "journal.type", Message: fmt.Sprintf("unsupported database %q", cfg.Journal.Type)})
	}

	if cfg.Client.RequestTimeout < 0 {
		errs = append(errs, &ValidationError{Field: "client.request_timeout", Message: "must not be negative"})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateClusterType(field, clusterType string) []*ValidationError {
	switch clusterType {
	case "", cnst.RedisClusterTypeSingle, cnst.RedisClusterTypeSentinel, cnst.RedisClusterTypeCluster:
		return nil
	}
	return []*ValidationError{{Field: field, Message: fmt.Sprintf("unsupported cluster type %q", clusterType)}}
}
