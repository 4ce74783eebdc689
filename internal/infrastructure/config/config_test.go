package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET": "secret",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.Store != BackendMemory || cfg.SessionTTL != 12*time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Mongo.Database != "vault_agents" {
		t.Fatalf("unexpected mongo database %q", cfg.Mongo.Database)
	}
	if !cfg.Development() || cfg.UsesRedis() {
		t.Fatalf("expected development env without redis")
	}
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET":  "secret",
		"ENV":         "production",
		"STORE":       BackendMongo,
		"LOCKER":      BackendRedis,
		"SESSION_TTL": "30m",
		"REDIS_ADDR":  "cache:6379",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Development() || !cfg.UsesRedis() {
		t.Fatalf("expected production env with redis")
	}
	if cfg.SessionTTL != 30*time.Minute || cfg.Redis.Addr != "cache:6379" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadFrom_Rejects(t *testing.T) {
	cases := map[string]struct {
		env  map[string]string
		want string
	}{
		"missing secret": {env: map[string]string{}, want: "JWT_SECRET"},
		"bad store":      {env: map[string]string{"JWT_SECRET": "s", "STORE": "redis"}, want: "STORE"},
		"bad tokens":     {env: map[string]string{"JWT_SECRET": "s", "TOKENS": "mongo"}, want: "TOKENS"},
		"bad locker":     {env: map[string]string{"JWT_SECRET": "s", "LOCKER": "etcd"}, want: "LOCKER"},
		"zero ttl":       {env: map[string]string{"JWT_SECRET": "s", "SESSION_TTL": "0s"}, want: "SESSION_TTL"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFrom(context.Background(), envconfig.MapLookuper(tc.env))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}
