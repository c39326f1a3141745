// Package testutil connects integration tests to the Postgres audit store
// and the Redis broker. Both backends are optional: tests skip when the
// backing service is absent, unless TEST_REQUIRE_DB, TEST_REQUIRE_REDIS, or
// TEST_REQUIRE_INFRA force a hard failure (CI).
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver for test connections
	"github.com/redis/go-redis/v9"

	"github.com/target/sealbox/internal/migrate"
)

const (
	probeTimeout   = 2 * time.Second
	setupTimeout   = 10 * time.Second
	cleanupTimeout = 30 * time.Second
)

// testDBURL assembles the audit test database URL. The docker-compose test
// profile publishes Postgres on 55432; CI sets TEST_DB_PORT=5432.
func testDBURL() *url.URL {
	u := &url.URL{
		Scheme: "postgres",
		User: url.UserPassword(
			envOr("TEST_DB_USER", "sealbox"),
			envOr("TEST_DB_PASSWORD", "sealbox"),
		),
		Host: net.JoinHostPort(
			envOr("TEST_DB_HOST", "localhost"),
			envOr("TEST_DB_PORT", "55432"),
		),
		Path: "/" + envOr("TEST_DB_NAME", "sealbox"),
	}
	q := u.Query()
	q.Set("sslmode", envOr("TEST_DB_SSL_MODE", "disable"))
	u.RawQuery = q.Encode()
	return u
}

// SkipIfNoTestDB skips the test (or fails it, when required) unless the
// audit test database answers a ping.
func SkipIfNoTestDB(t testing.TB) {
	t.Helper()
	if err := probeDB(); err != nil {
		if requireDB() {
			t.Fatal("audit test database not available:", err)
		}
		t.Skip("audit test database not available:", err)
	}
}

func probeDB() error {
	db, err := sql.Open("pgx", testDBURL().String())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	return db.PingContext(ctx)
}

// WithAutoDB hands the test a migrated database handle. With
// TEST_DB_EPHEMERAL set, each test gets its own schema that is dropped on
// cleanup; otherwise tests share the default schema and the audit table is
// emptied before and after.
func WithAutoDB(t testing.TB, fn func(*sql.DB)) {
	t.Helper()
	if envBool("TEST_DB_EPHEMERAL") {
		fn(ephemeralSchemaDB(t))
		return
	}
	fn(sharedDB(t))
}

func sharedDB(t testing.TB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	db := openTestDB(t, testDBURL())
	applyMigrations(t, db)
	emptyAuditTable(t, db)
	t.Cleanup(func() {
		emptyAuditTable(t, db)
		if err := db.Close(); err != nil {
			t.Logf("close test db: %v", err)
		}
	})
	return db
}

// ephemeralSchemaDB creates a throwaway schema, points search_path at it,
// migrates, and drops the schema when the test finishes.
func ephemeralSchemaDB(t testing.TB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	admin := openTestDB(t, testDBURL())
	schema := "t_" + randomSuffix()

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema %s: %v", schema, err)
	}

	scoped := testDBURL()
	q := scoped.Query()
	q.Set("search_path", schema+",public")
	scoped.RawQuery = q.Encode()
	db := openTestDB(t, scoped)

	t.Cleanup(func() {
		dropCtx, dropCancel := context.WithTimeout(context.Background(), setupTimeout)
		defer dropCancel()
		if err := db.Close(); err != nil {
			t.Logf("close schema db: %v", err)
		}
		if _, err := admin.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		if err := admin.Close(); err != nil {
			t.Logf("close admin db: %v", err)
		}
	})

	t.Logf("using ephemeral schema %s", schema)
	applyMigrations(t, db)
	return db
}

func openTestDB(t testing.TB, u *url.URL) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", u.String())
	if err != nil {
		t.Fatal("open test database:", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Fatal("ping test database (is docker-compose up?):", err)
	}
	return db
}

func applyMigrations(t testing.TB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		t.Fatal("apply migrations:", err)
	}
}

func emptyAuditTable(t testing.TB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, "DELETE FROM audit_records"); err != nil {
		t.Fatalf("empty audit_records: %v", err)
	}
}

func randomSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b)
}

// SetupTestRedis returns a client bound to a reserved logical DB on the test
// broker, flushed before use. Callers own the returned client and close it.
// Address discovery prefers REDIS_ADDR, then well-known CI addresses, then
// the docker-compose test port.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()

	addr, err := findRedis()
	if err != nil {
		if requireRedis() {
			t.Fatal("redis not available for testing:", err)
		}
		t.Skip("redis not available for testing:", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   reserveRedisDB(t, addr),
	})

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		_ = client.Close()
		if requireRedis() {
			t.Fatalf("redis not available at %s: %v", addr, pingErr)
		}
		t.Skipf("redis not available at %s: %v", addr, pingErr)
	}

	client.FlushDB(ctx)
	return client
}

func findRedis() (string, error) {
	candidates := []string{"redis:6379", "localhost:6379", "localhost:56379"}
	if env := os.Getenv("REDIS_ADDR"); env != "" {
		candidates = []string{env}
	}

	var lastErr error
	for _, addr := range candidates {
		if err := pingRedis(addr); err != nil {
			lastErr = err
			continue
		}
		return addr, nil
	}
	return "", lastErr
}

func pingRedis(addr string) error {
	c := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	return c.Ping(ctx).Err()
}

// reserveRedisDB picks a logical DB for this test run so packages running in
// parallel do not flush each other. Reservations live as SetNX locks in DB 0,
// which a FlushDB on the reserved DB cannot clear.
func reserveRedisDB(t testing.TB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
		t.Logf("invalid TEST_REDIS_DB=%q, auto-selecting", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr})
	defer func() {
		if err := meta.Close(); err != nil {
			t.Logf("close redis meta client: %v", err)
		}
	}()

	token := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())
	for i := 1; i <= 15; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		key := "sealbox:test:dblock:" + strconv.Itoa(i)
		ok, err := meta.SetNX(ctx, key, token, 30*time.Minute).Result()
		cancel()
		if err != nil || !ok {
			continue
		}

		t.Cleanup(func() { releaseRedisDB(t, addr, key) })
		t.Logf("reserved redis db %d at %s", i, addr)
		return i
	}

	t.Logf("no free redis db at %s, sharing db 1", addr)
	return 1
}

func releaseRedisDB(t testing.TB, addr, key string) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	if err := c.Del(ctx, key).Err(); err != nil {
		t.Logf("release redis db lock %s: %v", key, err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func requireDB() bool    { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }
func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }
