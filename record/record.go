package record

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/acconeer/exptool-go/a121"
)

// Record is a read-only view of a container file, possibly holding several
// sessions. Session headers are loaded eagerly; result rows are streamed
// lazily, one pass per session.
type Record struct {
	db   *sql.DB
	path string

	libVersion string
	createdAt  string
	uid        string
	clientInfo a121.ClientInfo
	serverInfo a121.ServerInfo

	sessions []*sessionInfo
}

type sessionInfo struct {
	index    int64
	config   *a121.SessionConfig
	metadata *a121.Extended[a121.Metadata]
	entryIDs []int64
	numRows  int
}

// OpenRecord opens a container file for reading.
func OpenRecord(path string) (*Record, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	r := &Record{db: db, path: path}
	if err := r.load(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Record) load() error {
	var clientJSON, serverJSON sql.NullString
	err := r.db.QueryRow(
		`SELECT lib_version, created_at, uuid, client_info, server_info FROM record WHERE id = 1`,
	).Scan(&r.libVersion, &r.createdAt, &r.uid, &clientJSON, &serverJSON)
	if err != nil {
		return fmt.Errorf("read record header: %w", err)
	}
	if clientJSON.Valid {
		if err := json.Unmarshal([]byte(clientJSON.String), &r.clientInfo); err != nil {
			return fmt.Errorf("parse client info: %w", err)
		}
	}
	if serverJSON.Valid {
		if err := json.Unmarshal([]byte(serverJSON.String), &r.serverInfo); err != nil {
			return fmt.Errorf("parse server info: %w", err)
		}
	}

	rows, err := r.db.Query(`SELECT session_index, session_config FROM sessions ORDER BY session_index`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var s sessionInfo
		var configJSON string
		if err := rows.Scan(&s.index, &configJSON); err != nil {
			return err
		}
		s.config = &a121.SessionConfig{}
		if err := json.Unmarshal([]byte(configJSON), s.config); err != nil {
			return fmt.Errorf("parse session %d config: %w", s.index, err)
		}
		r.sessions = append(r.sessions, &s)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, s := range r.sessions {
		if err := r.loadSession(s); err != nil {
			return err
		}
	}
	return nil
}

// loadSession restores the session's metadata extended structure in the
// exact group/entry order it was recorded in.
func (r *Record) loadSession(s *sessionInfo) error {
	rows, err := r.db.Query(
		`SELECT entry_id, group_index, sensor_id, metadata FROM session_entries
		 WHERE session_index = ? ORDER BY group_index, entry_index`,
		s.index,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	var groups []a121.Group[a121.Metadata]
	for rows.Next() {
		var entryID int64
		var groupIndex, sensorID int
		var mdJSON string
		if err := rows.Scan(&entryID, &groupIndex, &sensorID, &mdJSON); err != nil {
			return err
		}
		var md a121.Metadata
		if err := json.Unmarshal([]byte(mdJSON), &md); err != nil {
			return fmt.Errorf("parse metadata for sensor %d: %w", sensorID, err)
		}
		for len(groups) <= groupIndex {
			groups = append(groups, nil)
		}
		groups[groupIndex] = append(groups[groupIndex], a121.Entry[a121.Metadata]{
			SensorID: sensorID, Value: md,
		})
		s.entryIDs = append(s.entryIDs, entryID)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	x, err := a121.NewExtended(groups...)
	if err != nil {
		return fmt.Errorf("session %d has invalid entry structure: %w", s.index, err)
	}
	s.metadata = x

	if len(s.entryIDs) > 0 {
		err = r.db.QueryRow(
			`SELECT COUNT(*) FROM results WHERE entry_id = ?`, s.entryIDs[0],
		).Scan(&s.numRows)
		if err != nil {
			return err
		}
	}
	return nil
}

// Path returns the container file path.
func (r *Record) Path() string { return r.path }

// LibVersion returns the library version that wrote the container.
func (r *Record) LibVersion() string { return r.libVersion }

// CreatedAt returns the container creation timestamp (RFC 3339).
func (r *Record) CreatedAt() string { return r.createdAt }

// UUID returns the container's unique id.
func (r *Record) UUID() string { return r.uid }

// ClientInfo returns the recorded client connection info.
func (r *Record) ClientInfo() a121.ClientInfo { return r.clientInfo }

// ServerInfo returns the recorded server info.
func (r *Record) ServerInfo() a121.ServerInfo { return r.serverInfo }

// NumSessions returns the number of sessions in the container.
func (r *Record) NumSessions() int { return len(r.sessions) }

func (r *Record) session(i int) (*sessionInfo, error) {
	if i < 0 || i >= len(r.sessions) {
		return nil, fmt.Errorf("session index %d out of range [0, %d)", i, len(r.sessions))
	}
	return r.sessions[i], nil
}

// SessionConfig returns the config session i was recorded with.
func (r *Record) SessionConfig(i int) (*a121.SessionConfig, error) {
	s, err := r.session(i)
	if err != nil {
		return nil, err
	}
	return s.config, nil
}

// Metadata returns session i's extended metadata in recorded order.
func (r *Record) Metadata(i int) (*a121.Extended[a121.Metadata], error) {
	s, err := r.session(i)
	if err != nil {
		return nil, err
	}
	return s.metadata, nil
}

// NumResults returns the number of result rows per tracked sensor entry in
// session i.
func (r *Record) NumResults(i int) (int, error) {
	s, err := r.session(i)
	if err != nil {
		return 0, err
	}
	return s.numRows, nil
}

// Results opens a lazy, single-pass iterator over session i's extended
// results in recorded order.
func (r *Record) Results(i int) (*ResultIterator, error) {
	s, err := r.session(i)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(
		`SELECT res.entry_id, res.data_saturated, res.frame_delayed, res.calibration_needed,
		        res.temperature, res.tick, res.frame
		 FROM results res
		 JOIN session_entries e ON e.entry_id = res.entry_id
		 WHERE e.session_index = ?
		 ORDER BY res.row_index, e.group_index, e.entry_index`,
		s.index,
	)
	if err != nil {
		return nil, err
	}
	return &ResultIterator{rec: r, s: s, rows: rows}, nil
}

// Close releases the container file.
func (r *Record) Close() error { return r.db.Close() }

// ResultIterator streams one extended result set per recorded frame. It is
// single-pass; Next returns io.EOF when the session's rows are exhausted.
type ResultIterator struct {
	rec       *Record
	s         *sessionInfo
	rows      *sql.Rows
	exhausted bool
	closed    bool
}

type resultRow struct {
	entryID           int64
	dataSaturated     bool
	frameDelayed      bool
	calibrationNeeded bool
	temperature       int
	tick              int64
	frame             []byte
}

// Next returns the next extended result set, or io.EOF when the iterator is
// spent.
func (it *ResultIterator) Next() (*a121.Extended[a121.Result], error) {
	if it.exhausted || it.closed {
		return nil, io.EOF
	}

	rowsByEntry := make(map[int64]resultRow, len(it.s.entryIDs))
	for range it.s.entryIDs {
		if !it.rows.Next() {
			if err := it.rows.Err(); err != nil {
				return nil, err
			}
			it.exhausted = true
			if len(rowsByEntry) != 0 {
				return nil, fmt.Errorf("container holds a partial result row (%d of %d entries)",
					len(rowsByEntry), len(it.s.entryIDs))
			}
			return nil, io.EOF
		}
		var row resultRow
		var sat, delayed, calib int
		if err := it.rows.Scan(&row.entryID, &sat, &delayed, &calib,
			&row.temperature, &row.tick, &row.frame); err != nil {
			return nil, err
		}
		row.dataSaturated = sat != 0
		row.frameDelayed = delayed != 0
		row.calibrationNeeded = calib != 0
		rowsByEntry[row.entryID] = row
	}

	k := 0
	results, err := a121.MapExtended(it.s.metadata, func(group, sensorID int, md a121.Metadata) (a121.Result, error) {
		row, ok := rowsByEntry[it.s.entryIDs[k]]
		k++
		if !ok {
			return a121.Result{}, fmt.Errorf("result row is missing sensor %d", sensorID)
		}
		return a121.Result{
			DataSaturated:     row.dataSaturated,
			FrameDelayed:      row.frameDelayed,
			CalibrationNeeded: row.calibrationNeeded,
			Temperature:       row.temperature,
			Tick:              row.tick,
			RawFrame:          row.frame,
			Context: a121.ResultContext{
				Metadata:       md,
				TicksPerSecond: it.rec.serverInfo.TicksPerSecond,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Exhausted reports whether the iterator has been fully consumed.
func (it *ResultIterator) Exhausted() bool { return it.exhausted }

// Close releases the iterator's cursor early.
func (it *ResultIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.rows.Close()
}
