package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sink describes the minimal interface required to emit StatsD-style metrics.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes how to connect to a StatsD-compatible sink.
type Config struct {
	Enabled    bool
	Address    string
	Prefix     string
	Logger     *slog.Logger
	GlobalTags map[string]string
}

type tagPair struct {
	key   string
	value string
}

// Client emits metrics over UDP using the StatsD line protocol with
// DogStatsD-style tags. The zero value and a nil pointer are both inert,
// so callers never need to guard their emit sites.
type Client struct {
	prefix     string
	globalTags []tagPair // sorted by key at construction

	logger *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	enabled bool
}

var _ Sink = (*Client)(nil)

// NewClient dials the configured StatsD endpoint unless disabled.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	address := strings.TrimSpace(cfg.Address)

	client := &Client{
		prefix:     strings.Trim(strings.TrimSpace(cfg.Prefix), "."),
		globalTags: sortTags(cfg.GlobalTags),
		logger:     logger,
	}

	if !cfg.Enabled || address == "" {
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}
	client.conn = conn
	client.enabled = true

	return client, nil
}

// Enabled reports whether the client actively emits metrics.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled && c.conn != nil
}

// Count increments a counter metric.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.emit(name, strconv.FormatInt(value, 10), "c", tags)
}

// Gauge records the current value for a gauge metric.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.emit(name, formatFloat(value), "g", tags)
}

// Timing records a timing metric using milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	ms := float64(value) / float64(time.Millisecond)
	c.emit(name, formatFloat(ms), "ms", tags)
}

// Close releases the underlying UDP connection if one was established.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = false
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) emit(name, value, unit string, tags map[string]string) {
	if c == nil {
		return
	}

	metric := sanitizeName(name)
	if metric == "" {
		return
	}

	var line strings.Builder
	line.Grow(len(c.prefix) + len(metric) + len(value) + len(unit) + 16)
	if c.prefix != "" {
		line.WriteString(c.prefix)
		line.WriteByte('.')
	}
	line.WriteString(metric)
	line.WriteByte(':')
	line.WriteString(value)
	line.WriteByte('|')
	line.WriteString(unit)
	c.writeTags(&line, tags)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled || c.conn == nil {
		return
	}

	if _, err := c.conn.Write([]byte(line.String())); err != nil {
		c.logger.Debug("statsd write failed", "error", err)
	}
}

// writeTags appends the "|#k:v,k:v" suffix, merging the call-site tags over
// the client's global tags. Keys stay sorted so identical emissions produce
// identical lines.
func (c *Client) writeTags(line *strings.Builder, local map[string]string) {
	merged := c.globalTags
	if len(local) > 0 {
		overlay := make(map[string]string, len(c.globalTags)+len(local))
		for _, p := range c.globalTags {
			overlay[p.key] = p.value
		}
		for k, v := range local {
			if key := strings.TrimSpace(k); key != "" {
				overlay[key] = strings.TrimSpace(v)
			}
		}
		merged = sortTags(overlay)
	}
	if len(merged) == 0 {
		return
	}

	line.WriteString("|#")
	for i, p := range merged {
		if i > 0 {
			line.WriteByte(',')
		}
		line.WriteString(p.key)
		line.WriteByte(':')
		line.WriteString(p.value)
	}
}

// sanitizeName maps characters the line protocol cannot carry to
// underscores and collapses any doubled dots that result.
func sanitizeName(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	n = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', ':', '|', '#', '\n':
			return '_'
		}
		return r
	}, n)
	for strings.Contains(n, "..") {
		n = strings.ReplaceAll(n, "..", ".")
	}
	return strings.Trim(n, ".")
}

func sortTags(tags map[string]string) []tagPair {
	if len(tags) == 0 {
		return nil
	}
	pairs := make([]tagPair, 0, len(tags))
	for k, v := range tags {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		pairs = append(pairs, tagPair{key: key, value: strings.TrimSpace(v)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
	return pairs
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
