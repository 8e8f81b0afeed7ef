package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const activitySelect = `SELECT id, timestamp, app_name, bundle_id, window_title, url, extra_info,
	duration_seconds, date, project_id, project_source FROM activities`

// InsertActivity stores a new record and returns its id. The date column is
// derived from the record's timestamp. A project assignment is stored only
// when both projectID and source are given.
func (s *Store) InsertActivity(rec ActivityRecord, projectID *int64, source *ProjectSource) (int64, error) {
	if projectID == nil || source == nil {
		projectID, source = nil, nil
	}
	var src any
	if source != nil {
		src = string(*source)
	}

	res, err := s.db.Exec(
		`INSERT INTO activities (timestamp, app_name, bundle_id, window_title, url, extra_info,
			duration_seconds, date, project_id, project_source)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.Format(time.RFC3339), rec.AppName, rec.BundleID, rec.WindowTitle,
		rec.URL, rec.ExtraInfo, nonNegative(rec.DurationSeconds), dateOf(rec.Timestamp),
		projectID, src,
	)
	if err != nil {
		return 0, fmt.Errorf("insert activity: %w", err)
	}
	return res.LastInsertId()
}

// UpdateDuration sets the total tracked seconds of an open record.
func (s *Store) UpdateDuration(id, seconds int64) error {
	res, err := s.db.Exec(
		`UPDATE activities SET duration_seconds = ? WHERE id = ?`, nonNegative(seconds), id,
	)
	if err != nil {
		return fmt.Errorf("update duration %d: %w", id, err)
	}
	return requireAffected(res, "activity", id)
}

// UpdateWindowTitle replaces the title, url and extra info of an open record.
func (s *Store) UpdateWindowTitle(id int64, title string, url, extraInfo *string) error {
	res, err := s.db.Exec(
		`UPDATE activities SET window_title = ?, url = ?, extra_info = ? WHERE id = ?`,
		title, url, extraInfo, id,
	)
	if err != nil {
		return fmt.Errorf("update window title %d: %w", id, err)
	}
	return requireAffected(res, "activity", id)
}

// UpdateProjectAssignment classifies one record. A nil projectID clears both
// the project and its source.
func (s *Store) UpdateProjectAssignment(id int64, projectID *int64, source ProjectSource) error {
	var src any
	if projectID != nil {
		src = string(source)
	}
	res, err := s.db.Exec(
		`UPDATE activities SET project_id = ?, project_source = ? WHERE id = ?`,
		projectID, src, id,
	)
	if err != nil {
		return fmt.Errorf("update project assignment %d: %w", id, err)
	}
	return requireAffected(res, "activity", id)
}

// BulkUpdateProjectAssignment classifies many records atomically and returns
// how many rows changed.
func (s *Store) BulkUpdateProjectAssignment(ids []int64, projectID *int64, source ProjectSource) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var src any
	if projectID != nil {
		src = string(source)
	}

	var total int64
	err := s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE activities SET project_id = ?, project_source = ? WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("prepare bulk assignment: %w", err)
		}
		defer stmt.Close()

		for _, id := range ids {
			res, err := stmt.Exec(projectID, src, id)
			if err != nil {
				return fmt.Errorf("assign activity %d: %w", id, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) GetActivity(id int64) (*ActivityRecord, error) {
	rec, err := scanActivity(s.db.QueryRow(activitySelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get activity %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get activity %d: %w", id, err)
	}
	return rec, nil
}

func (s *Store) ListActivities(f EntryFilter) ([]ActivityRecord, error) {
	var where []string
	var args []any

	if f.ProjectID != nil {
		where = append(where, `project_id = ?`)
		args = append(args, *f.ProjectID)
	}
	if f.From != nil {
		where = append(where, `date >= ?`)
		args = append(args, *f.From)
	}
	if f.To != nil {
		where = append(where, `date <= ?`)
		args = append(args, *f.To)
	}

	query := activitySelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY timestamp, id`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}
	return s.queryActivities(query, args...)
}

func (s *Store) queryActivities(query string, args ...any) ([]ActivityRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var out []ActivityRecord
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanActivity(row rowScanner) (*ActivityRecord, error) {
	rec := &ActivityRecord{}
	var ts string
	var url, extra, source sql.NullString
	var projectID sql.NullInt64

	if err := row.Scan(&rec.ID, &ts, &rec.AppName, &rec.BundleID, &rec.WindowTitle, &url, &extra,
		&rec.DurationSeconds, &rec.Date, &projectID, &source); err != nil {
		return nil, err
	}
	rec.Timestamp, _ = time.Parse(time.RFC3339, ts)
	rec.URL, rec.ExtraInfo = stringPtr(url), stringPtr(extra)
	if projectID.Valid && source.Valid {
		rec.ProjectID = &projectID.Int64
		ps := ProjectSource(source.String)
		rec.ProjectSource = &ps
	}
	return rec, nil
}

func dateOf(t time.Time) string {
	return t.Format("2006-01-02")
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
