package replay

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"swingspin/bowler/internal/logging"
)

// RetentionPolicy bounds how many session bundles stay on disk.
type RetentionPolicy struct {
	MaxSessions int
	MaxAge      time.Duration
}

// StorageStats summarises the disk footprint of retained sessions.
type StorageStats struct {
	Sessions  int       `json:"sessions"`
	Removed   int       `json:"removed"`
	Bytes     int64     `json:"bytes"`
	LastSweep time.Time `json:"last_sweep"`
}

// Cleaner prunes session bundles under a root directory.
type Cleaner struct {
	mu     sync.RWMutex
	dir    string
	policy RetentionPolicy
	log    *logging.Logger
	now    func() time.Time
	stats  StorageStats
}

// NewCleaner constructs a cleaner for root.
func NewCleaner(dir string, policy RetentionPolicy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{dir: dir, policy: policy, log: logger, now: time.Now}
}

// Run sweeps immediately and then every interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if c == nil || ctx == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// RunOnce performs a single sweep.
func (c *Cleaner) RunOnce() {
	if c == nil {
		return
	}
	c.sweep()
}

// Stats returns the statistics of the last sweep.
func (c *Cleaner) Stats() StorageStats {
	if c == nil {
		return StorageStats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

type session struct {
	name    string
	path    string
	size    int64
	modTime time.Time
}

func (c *Cleaner) sweep() {
	if strings.TrimSpace(c.dir) == "" {
		return
	}
	sessions, err := c.collect()
	if err != nil {
		c.log.Warn("replay retention scan failed", logging.Error(err), logging.String("directory", c.dir))
		return
	}
	now := c.now()
	stats := StorageStats{LastSweep: now}
	for _, s := range sessions {
		reason := c.removalReason(s, now, stats.Sessions)
		if reason != "" {
			err := os.RemoveAll(s.path)
			if err == nil {
				stats.Removed++
				c.log.Info("replay retention removed session", logging.String("session", s.name), logging.String("reason", reason))
				continue
			}
			c.log.Warn("replay retention removal failed", logging.Error(err), logging.String("session", s.name))
		}
		stats.Sessions++
		stats.Bytes += s.size
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

// collect lists bundle directories newest first. Loose files are ignored.
func (c *Cleaner) collect() ([]session, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	var sessions []session
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		if _, err := os.Stat(filepath.Join(path, manifestFile)); err != nil {
			continue
		}
		size, mod, err := directoryUsage(path)
		if err != nil {
			c.log.Warn("replay retention size failed", logging.Error(err), logging.String("path", path))
			continue
		}
		sessions = append(sessions, session{name: entry.Name(), path: path, size: size, modTime: mod})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].modTime.After(sessions[j].modTime) })
	return sessions, nil
}

func (c *Cleaner) removalReason(s session, now time.Time, kept int) string {
	var reasons []string
	if c.policy.MaxAge > 0 && now.Sub(s.modTime) > c.policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("age>%s", c.policy.MaxAge))
	}
	if c.policy.MaxSessions > 0 && kept >= c.policy.MaxSessions {
		reasons = append(reasons, fmt.Sprintf(">=%d sessions", c.policy.MaxSessions))
	}
	return strings.Join(reasons, ", ")
}

// directoryUsage sums file sizes and returns the newest modification time.
func directoryUsage(root string) (int64, time.Time, error) {
	var total int64
	var newest time.Time
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		if !d.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, newest, err
}
