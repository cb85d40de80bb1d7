// Package record persists exploration sessions to a self-describing sqlite
// container and plays them back: Recorder is the write sink a live client
// feeds, Record is the read-only view of a written container, and
// ReplayClient exposes a Record through the same interface as a live client.
package record

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/acconeer/exptool-go/a121"
	"github.com/acconeer/exptool-go/internal/logging"
	"github.com/acconeer/exptool-go/internal/version"
)

// Recorder is a write-only sink that appends every metadata/result pair of
// a session to a container file. Its lifecycle is
// Start → Sample* → Stop; with KeepOpen a single recorder may record
// several sessions into the same container across repeated cycles.
//
// The recorder owns its growable result storage exclusively; nothing else
// writes to the container while it is attached.
type Recorder struct {
	db   *sql.DB
	log  *slog.Logger
	path string

	keepOpen bool
	closed   bool
	started  bool

	metadata *a121.Extended[a121.Metadata]
	entryIDs []int64
	rowIndex int64
}

var _ a121.Recorder = (*Recorder)(nil)

// RecorderOption configures a Recorder at construction.
type RecorderOption func(*Recorder)

// WithRecorderLogger injects a logger; the default discards everything.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.log = l }
}

// WithKeepOpen keeps the container open across Stop calls so further
// sessions can be recorded into the same file. The caller must Close the
// recorder when done.
func WithKeepOpen() RecorderOption {
	return func(r *Recorder) { r.keepOpen = true }
}

// NewRecorder creates (or reopens) a container file at path and writes the
// record-level header: library version, creation timestamp and a fresh
// unique id.
func NewRecorder(path string, opts ...RecorderOption) (*Recorder, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	r := &Recorder{db: db, log: logging.Nop(), path: path}
	for _, fn := range opts {
		fn(r)
	}

	_, err = db.Exec(
		`INSERT OR IGNORE INTO record (id, lib_version, created_at, uuid) VALUES (1, ?, ?, ?)`,
		version.Version,
		time.Now().UTC().Format(time.RFC3339),
		uuid.New().String(),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("write record header: %w", err)
	}
	return r, nil
}

// Start persists one self-contained session header: the session config plus
// every (group, sensor id, metadata) entry in the exact order passed. The
// entry order established here governs all subsequent Sample calls.
func (r *Recorder) Start(clientInfo a121.ClientInfo, metadata *a121.Extended[a121.Metadata], serverInfo a121.ServerInfo, config *a121.SessionConfig) error {
	if r.closed {
		return errors.New("recorder is closed")
	}
	if r.started {
		return errors.New("recorder already has a started session")
	}
	if metadata == nil || config == nil {
		return errors.New("metadata and session config are required")
	}
	if !a121.SameShape(metadata, config.Groups()) {
		return fmt.Errorf("metadata does not match session config: %w", a121.ErrShapeMismatch)
	}

	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("serialize session config: %w", err)
	}
	clientJSON, err := json.Marshal(clientInfo)
	if err != nil {
		return fmt.Errorf("serialize client info: %w", err)
	}
	serverJSON, err := json.Marshal(serverInfo)
	if err != nil {
		return fmt.Errorf("serialize server info: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE record SET client_info = ?, server_info = ? WHERE id = 1 AND client_info IS NULL`,
		string(clientJSON), string(serverJSON),
	); err != nil {
		return fmt.Errorf("write connection info: %w", err)
	}

	var sessionIndex int64
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(session_index) + 1, 0) FROM sessions`,
	).Scan(&sessionIndex); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO sessions (session_index, session_config) VALUES (?, ?)`,
		sessionIndex, string(configJSON),
	); err != nil {
		return fmt.Errorf("write session header: %w", err)
	}

	var entryIDs []int64
	entryIndex := make(map[int]int)
	err = metadata.Visit(func(group, sensorID int, md a121.Metadata) error {
		mdJSON, err := json.Marshal(md)
		if err != nil {
			return fmt.Errorf("serialize metadata for sensor %d: %w", sensorID, err)
		}
		ei := entryIndex[group]
		entryIndex[group] = ei + 1
		res, err := tx.Exec(
			`INSERT INTO session_entries (session_index, group_index, entry_index, sensor_id, metadata)
			 VALUES (?, ?, ?, ?, ?)`,
			sessionIndex, group, ei, sensorID, string(mdJSON),
		)
		if err != nil {
			return fmt.Errorf("write session entry for sensor %d: %w", sensorID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		entryIDs = append(entryIDs, id)
		return nil
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	r.metadata = metadata
	r.entryIDs = entryIDs
	r.rowIndex = 0
	r.started = true
	r.log.Debug("recording session", "path", r.path, "session_index", sessionIndex,
		"entries", len(entryIDs))
	return nil
}

// Sample appends exactly one row per tracked sensor entry, in the order
// established at Start. The results must have the session's shape; a
// mismatch is an error, never a silent merge.
func (r *Recorder) Sample(results *a121.Extended[a121.Result]) error {
	if !r.started {
		return errors.New("recorder has no started session")
	}
	if results == nil || !a121.SameShape(results, r.metadata) {
		return fmt.Errorf("results do not match recorded session: %w", a121.ErrShapeMismatch)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	k := 0
	err = results.Visit(func(group, sensorID int, res a121.Result) error {
		_, err := tx.Exec(
			`INSERT INTO results
			 (entry_id, row_index, data_saturated, frame_delayed, calibration_needed, temperature, tick, frame)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.entryIDs[k], r.rowIndex,
			boolToInt(res.DataSaturated), boolToInt(res.FrameDelayed), boolToInt(res.CalibrationNeeded),
			res.Temperature, res.Tick, res.RawFrame,
		)
		k++
		return err
	})
	if err != nil {
		return fmt.Errorf("append result row %d: %w", r.rowIndex, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	r.rowIndex++
	return nil
}

// Stop flushes the session. Unless the recorder was created with KeepOpen,
// it also closes the container file it owns.
func (r *Recorder) Stop() error {
	if r.closed {
		return nil
	}
	r.started = false
	r.metadata = nil
	r.entryIDs = nil
	if r.keepOpen {
		return nil
	}
	return r.Close()
}

// Close releases the container file. Safe to call more than once.
func (r *Recorder) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.started = false
	return r.db.Close()
}

// Path returns the container file path.
func (r *Recorder) Path() string { return r.path }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
