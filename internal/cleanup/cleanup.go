// Package cleanup runs periodic housekeeping for long-lived kepo serve
// processes.
//
// cleanup.go - background janitor
//
// This file contains:
// - Cleaner, a ticker loop running each task once per interval
// - dated log file retention for the logging directory
// - pruning hooks for in-memory state such as rate limiter entries
// - disk usage checks on the logging directory
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/HyphaGroup/kepoki/internal/logger"
)

// Pruner drops in-memory state idle for longer than maxAge
type Pruner func(maxAge time.Duration)

// Cleaner performs periodic resource cleanup.
type Cleaner struct {
	fs           afero.Fs
	logDir       string
	interval     time.Duration
	logRetention time.Duration
	idleAge      time.Duration
	diskWarn     float64
	diskError    float64
	pruners      []Pruner
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// Config holds cleanup configuration.
type Config struct {
	// LogDir holds kepoki-YYYY-MM-DD.log files; empty skips log tasks
	LogDir           string
	Interval         time.Duration // How often to run cleanup
	LogRetention     time.Duration // How long to keep dated log files
	IdleAge          time.Duration // Passed to pruners
	DiskWarnPercent  float64       // Warn at this disk usage percentage
	DiskErrorPercent float64       // Error at this disk usage percentage
}

// DefaultConfig returns the serve defaults.
func DefaultConfig(logDir string) Config {
	return Config{
		LogDir:           logDir,
		Interval:         5 * time.Minute,
		LogRetention:     7 * 24 * time.Hour,
		IdleAge:          10 * time.Minute,
		DiskWarnPercent:  80.0,
		DiskErrorPercent: 90.0,
	}
}

// New creates a Cleaner over the OS filesystem.
func New(cfg Config, pruners ...Pruner) *Cleaner {
	return newCleaner(afero.NewOsFs(), cfg, pruners...)
}

func newCleaner(fs afero.Fs, cfg Config, pruners ...Pruner) *Cleaner {
	return &Cleaner{
		fs:           fs,
		logDir:       cfg.LogDir,
		interval:     cfg.Interval,
		logRetention: cfg.LogRetention,
		idleAge:      cfg.IdleAge,
		diskWarn:     cfg.DiskWarnPercent,
		diskError:    cfg.DiskErrorPercent,
		pruners:      pruners,
	}
}

// Start begins the periodic cleanup loop.
func (c *Cleaner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.runCleanup()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.runCleanup()
			}
		}
	}()

	logger.Info("Cleanup started (interval=%v, log retention=%v)", c.interval, c.logRetention)
}

// Stop halts the cleanup loop.
func (c *Cleaner) Stop() {
	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
		logger.Info("Cleanup stopped")
	}
}

// runCleanup performs all cleanup tasks.
func (c *Cleaner) runCleanup() {
	for _, prune := range c.pruners {
		prune(c.idleAge)
	}
	if c.logDir == "" {
		return
	}
	c.cleanupOldLogs()
	c.checkDiskUsage()
}

// cleanupOldLogs removes dated log files last written before the
// retention cutoff. Today's file is always kept.
func (c *Cleaner) cleanupOldLogs() {
	cutoff := time.Now().Add(-c.logRetention)
	today := "kepoki-" + time.Now().Format("2006-01-02") + ".log"
	var removed int

	entries, err := afero.ReadDir(c.fs, c.logDir)
	if err != nil {
		return
	}
	for _, info := range entries {
		name := info.Name()
		if info.IsDir() || name == today || !strings.HasPrefix(name, "kepoki-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := c.fs.Remove(filepath.Join(c.logDir, name)); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		logger.Info("Removed %d old log files", removed)
	}
}

// checkDiskUsage monitors disk usage and logs warnings.
func (c *Cleaner) checkDiskUsage() {
	_, _, usedPercent, err := c.DiskUsage()
	if err != nil {
		return
	}
	if usedPercent >= c.diskError {
		logger.Error("CRITICAL: Disk usage at %.1f%% (log dir)", usedPercent)
	} else if usedPercent >= c.diskWarn {
		logger.Warn("Disk usage at %.1f%% (log dir)", usedPercent)
	}
}

// DiskUsage returns current disk usage stats for the log directory.
func (c *Cleaner) DiskUsage() (usedBytes, totalBytes uint64, usedPercent float64, err error) {
	if _, err = os.Stat(c.logDir); err != nil {
		return
	}
	var stat syscall.Statfs_t
	if err = syscall.Statfs(c.logDir, &stat); err != nil {
		return
	}

	totalBytes = stat.Blocks * uint64(stat.Bsize)
	freeBytes := stat.Bfree * uint64(stat.Bsize)
	usedBytes = totalBytes - freeBytes
	usedPercent = float64(usedBytes) / float64(totalBytes) * 100
	return
}
