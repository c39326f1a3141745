package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/redis/go-redis/v9"
	"github.com/target/sealbox/config"
	"github.com/target/sealbox/internal/migrate"
)

// DatabaseConfig contains configuration for broker and audit store connections.
type DatabaseConfig struct {
	AuditDB config.AuditDBConfig
	Redis   config.RedisConfig
	Logger  *slog.Logger
}

// Audit trail writes are small and bursty; a modest pool is plenty.
const (
	auditMaxOpenConns    = 10
	auditMaxIdleConns    = 2
	auditConnMaxLifetime = 5 * time.Minute
)

const connectProbeTimeout = 5 * time.Second

// ConnectAuditDB establishes a connection to the PostgreSQL audit database.
func ConnectAuditDB(cfg DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", auditDSN(cfg.AuditDB))
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	db.SetMaxOpenConns(auditMaxOpenConns)
	db.SetMaxIdleConns(auditMaxIdleConns)
	db.SetConnMaxLifetime(auditConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectProbeTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close audit database: %w", closeErr))
		}
		return nil, fmt.Errorf("ping audit database: %w", pingErr)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("audit database connected",
			"host", cfg.AuditDB.Host,
			"port", cfg.AuditDB.Port,
			"database", cfg.AuditDB.Name,
		)
	}

	return db, nil
}

// auditDSN renders the postgres URL, letting url.URL escape whatever
// characters the credentials carry.
func auditDSN(cfg config.AuditDBConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	q := u.Query()
	q.Set("sslmode", cfg.SSLMode)
	q.Set("connect_timeout", "5")
	u.RawQuery = q.Encode()
	return u.String()
}

// RunMigrations applies the audit schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.RunWithLogger(ctx, db, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	if logger != nil {
		logger.InfoContext(ctx, "audit database migrations completed")
	}

	return nil
}

// redisTarget is the resolved connection plan for the broker: which client
// flavor to build plus the addresses and credentials it needs.
type redisTarget struct {
	mode             string // direct, sentinel, or cluster
	addrs            []string
	username         string
	password         string
	db               int
	sentinelMaster   string
	sentinelPassword string
	tls              *tls.Config
}

// ConnectRedis establishes a connection to the Redis broker.
//
//nolint:ireturn // redis.UniversalClient lets deployment pick direct, sentinel, or cluster.
func ConnectRedis(cfg DatabaseConfig) (redis.UniversalClient, error) {
	target, err := resolveRedisTarget(cfg.Redis)
	if err != nil {
		return nil, err
	}

	client := target.build()

	ctx, cancel := context.WithTimeout(context.Background(), connectProbeTimeout)
	defer cancel()

	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected", "mode", target.mode, "addr", target.describe())
	}

	return client, nil
}

func resolveRedisTarget(cfg config.RedisConfig) (redisTarget, error) {
	switch {
	case cfg.UseCluster:
		return resolveCluster(cfg)
	case cfg.UseSentinel:
		if len(trimAddrs(cfg.SentinelNodes)) == 0 {
			return redisTarget{}, errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		return redisTarget{
			mode:             "sentinel",
			addrs:            trimAddrs(cfg.SentinelNodes),
			password:         cfg.Password,
			sentinelMaster:   cfg.SentinelMasterName,
			sentinelPassword: cfg.SentinelPassword,
		}, nil
	default:
		return resolveDirect(cfg)
	}
}

func resolveDirect(cfg config.RedisConfig) (redisTarget, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return redisTarget{}, errors.New("redis direct configuration requires a URI")
	}

	// Plain host:port form.
	if !isRedisURL(uri) {
		return redisTarget{mode: "direct", addrs: []string{uri}, password: cfg.Password}, nil
	}

	opt, err := redis.ParseURL(uri)
	if err != nil {
		return redisTarget{}, fmt.Errorf("parse redis url: %w", err)
	}
	return redisTarget{
		mode:     "direct",
		addrs:    []string{opt.Addr},
		username: opt.Username,
		password: opt.Password,
		db:       opt.DB,
		tls:      opt.TLSConfig,
	}, nil
}

func resolveCluster(cfg config.RedisConfig) (redisTarget, error) {
	target := redisTarget{mode: "cluster", password: cfg.Password}
	target.addrs = trimAddrs(cfg.ClusterNodes)

	// A lone URI can stand in for an explicit node list.
	if len(target.addrs) == 0 {
		uri := strings.TrimSpace(cfg.URI)
		switch {
		case uri == "":
		case !isRedisURL(uri):
			target.addrs = []string{uri}
		default:
			opt, err := redis.ParseURL(uri)
			if err != nil {
				return redisTarget{}, fmt.Errorf("parse redis cluster url: %w", err)
			}
			target.addrs = []string{opt.Addr}
			target.username = opt.Username
			if opt.Password != "" {
				target.password = opt.Password
			}
			target.tls = opt.TLSConfig
		}
	}

	if len(target.addrs) == 0 {
		return redisTarget{}, errors.New("redis cluster configuration requires at least one address")
	}
	return target, nil
}

//nolint:ireturn // client flavor is decided at runtime.
func (t redisTarget) build() redis.UniversalClient {
	switch t.mode {
	case "cluster":
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:     t.addrs,
			Username:  t.username,
			Password:  t.password,
			TLSConfig: t.tls,
		})
	case "sentinel":
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       t.sentinelMaster,
			SentinelAddrs:    t.addrs,
			Password:         t.password,
			SentinelPassword: t.sentinelPassword,
			DB:               0,
		})
	default:
		return redis.NewClient(&redis.Options{
			Addr:      t.addrs[0],
			Username:  t.username,
			Password:  t.password,
			DB:        t.db,
			TLSConfig: t.tls,
		})
	}
}

// describe renders the target for logs. Credentials never appear: addrs are
// host:port pairs and sentinel targets log the master name.
func (t redisTarget) describe() string {
	if t.mode == "sentinel" {
		return t.sentinelMaster
	}
	return strings.Join(t.addrs, ",")
}

func trimAddrs(raw []string) []string {
	result := make([]string, 0, len(raw))
	for _, addr := range raw {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}
