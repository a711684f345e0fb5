// Package backup snapshots the agent registry to gzipped tar archives and
// restores it from them.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/HyphaGroup/kepoki/internal/definition"
	"github.com/HyphaGroup/kepoki/internal/logger"
)

const (
	filePrefix      = "agents_"
	fileSuffix      = ".tar.gz"
	timestampLayout = "20060102_150405"

	// DefaultRetention is the number of snapshots kept
	DefaultRetention = 10
)

// ErrSnapshotNotFound is returned when restoring from a missing file
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Source lists and reads registered agents
type Source interface {
	List(ctx context.Context) ([]definition.Summary, error)
	Lookup(ctx context.Context, name string) (*definition.Agent, error)
}

// Sink stores agents
type Sink interface {
	Put(ctx context.Context, def *definition.Agent) error
}

var (
	_ Source = (*definition.Registry)(nil)
	_ Sink   = (*definition.Registry)(nil)
)

// Manager writes snapshots to a directory and prunes old ones
type Manager struct {
	fs        afero.Fs
	dir       string
	retention int
	now       func() time.Time
}

// Config holds backup configuration.
type Config struct {
	Dir       string
	Retention int // Number of snapshots to keep; <= 0 keeps DefaultRetention
}

// Snapshot describes one archive.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Filename  string    `json:"filename"`
	Agents    int       `json:"agents,omitempty"`
	SizeBytes int64     `json:"size_bytes"`
}

// New creates a backup Manager over the OS filesystem.
func New(cfg Config) (*Manager, error) {
	return newManager(afero.NewOsFs(), cfg, time.Now)
}

func newManager(fs afero.Fs, cfg Config, now func() time.Time) (*Manager, error) {
	if err := fs.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Manager{fs: fs, dir: cfg.Dir, retention: retention, now: now}, nil
}

// Backup archives every agent src lists, one <name>.json entry each.
func (m *Manager) Backup(ctx context.Context, src Source) (*Snapshot, error) {
	summaries, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	timestamp := m.now().UTC()
	filename := filePrefix + timestamp.Format(timestampLayout) + fileSuffix
	backupPath := filepath.Join(m.dir, filename)

	file, err := m.fs.Create(backupPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup file: %w", err)
	}
	if err := writeArchive(ctx, file, src, summaries, timestamp); err != nil {
		_ = file.Close()
		_ = m.fs.Remove(backupPath)
		return nil, fmt.Errorf("failed to create backup: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}

	stat, err := m.fs.Stat(backupPath)
	if err != nil {
		return nil, err
	}
	snapshot := &Snapshot{
		Timestamp: timestamp,
		Filename:  filename,
		Agents:    len(summaries),
		SizeBytes: stat.Size(),
	}
	logger.Info("Created backup: %s (%d agents, %d bytes)", filename, len(summaries), stat.Size())

	m.enforceRetention()
	return snapshot, nil
}

func writeArchive(ctx context.Context, w io.Writer, src Source, summaries []definition.Summary, modTime time.Time) error {
	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	for _, s := range summaries {
		def, err := src.Lookup(ctx, s.Name)
		if err != nil {
			return fmt.Errorf("agent %s: %w", s.Name, err)
		}
		data, err := json.MarshalIndent(def, "", "  ")
		if err != nil {
			return fmt.Errorf("agent %s: %w", s.Name, err)
		}
		header := &tar.Header{
			Name:    s.Name + ".json",
			Mode:    0o644,
			Size:    int64(len(data)),
			ModTime: modTime,
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if _, err := tw.Write(data); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

// Restore registers every agent in the named snapshot, replacing
// definitions with the same name. It returns the number restored.
func (m *Manager) Restore(ctx context.Context, dst Sink, filename string) (int, error) {
	if filepath.Base(filename) != filename {
		return 0, fmt.Errorf("%w: %s", ErrSnapshotNotFound, filename)
	}
	file, err := m.fs.Open(filepath.Join(m.dir, filename))
	if os.IsNotExist(err) {
		return 0, fmt.Errorf("%w: %s", ErrSnapshotNotFound, filename)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open backup: %w", err)
	}
	defer func() { _ = file.Close() }()

	n, err := RestoreFrom(ctx, dst, file)
	if err != nil {
		return n, err
	}
	logger.Info("Restored %d agents from backup: %s", n, filename)
	return n, nil
}

// RestoreFrom registers every agent in a snapshot archive read from r
func RestoreFrom(ctx context.Context, dst Sink, r io.Reader) (int, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to decompress backup: %w", err)
	}
	defer func() { _ = gr.Close() }()

	tr := tar.NewReader(gr)
	restored := 0
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return restored, nil
		}
		if err != nil {
			return restored, fmt.Errorf("failed to read backup: %w", err)
		}
		if header.Typeflag != tar.TypeReg || path.Ext(header.Name) != ".json" {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return restored, fmt.Errorf("failed to read %s: %w", header.Name, err)
		}
		def, err := definition.Parse(data)
		if err != nil {
			return restored, fmt.Errorf("%s: %w", header.Name, err)
		}
		if err := dst.Put(ctx, def); err != nil {
			return restored, fmt.Errorf("%s: %w", header.Name, err)
		}
		restored++
	}
}

// ListSnapshots returns the snapshots in the directory, newest first.
func (m *Manager) ListSnapshots() ([]Snapshot, error) {
	entries, err := afero.ReadDir(m.fs, m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var snapshots []Snapshot
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		timestamp, err := time.Parse(timestampLayout, stamp)
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Snapshot{
			Timestamp: timestamp,
			Filename:  name,
			SizeBytes: entry.Size(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

// enforceRetention removes old backups beyond retention limit.
func (m *Manager) enforceRetention() {
	snapshots, err := m.ListSnapshots()
	if err != nil || len(snapshots) <= m.retention {
		return
	}
	for _, s := range snapshots[m.retention:] {
		if err := m.fs.Remove(filepath.Join(m.dir, s.Filename)); err == nil {
			logger.Info("Removed old backup: %s", s.Filename)
		}
	}
}
