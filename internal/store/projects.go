package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *Store) CreateProject(brandID int64, name, color string) (*Project, error) {
	var p *Project
	err := s.withTx(func(tx *sql.Tx) error {
		var err error
		p, err = createProjectTx(tx, brandID, name, color, s.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.taxonomyChanged()
	return p, nil
}

func createProjectTx(tx *sql.Tx, brandID int64, name, color string, now time.Time) (*Project, error) {
	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM brands WHERE id = ?`, brandID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check brand: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("brand %d: %w", brandID, ErrNotFound)
	}

	createdAt := now.UTC().Format(time.RFC3339)
	res, err := tx.Exec(
		`INSERT INTO projects (brand_id, name, color, sort_order, created_at)
		 VALUES (?, ?, ?, (SELECT COALESCE(MAX(sort_order), -1) + 1 FROM projects WHERE brand_id = ?), ?)`,
		brandID, name, color, brandID, createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert project %q: %w", name, ErrConstraintViolation)
		}
		return nil, fmt.Errorf("insert project: %w", err)
	}
	id, _ := res.LastInsertId()
	return scanProject(tx.QueryRow(projectSelect+` WHERE id = ?`, id))
}

const projectSelect = `SELECT id, brand_id, name, color, sort_order, created_at FROM projects`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	p := &Project{}
	var createdAt string
	if err := row.Scan(&p.ID, &p.BrandID, &p.Name, &p.Color, &p.SortOrder, &createdAt); err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return p, nil
}

func (s *Store) GetProject(id int64) (*Project, error) {
	p, err := scanProject(s.db.QueryRow(projectSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get project %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	return p, nil
}

// ListProjects lists projects of one brand, or of all brands when brandID is nil.
func (s *Store) ListProjects(brandID *int64) ([]Project, error) {
	query := projectSelect
	var args []any
	if brandID != nil {
		query += ` WHERE brand_id = ?`
		args = append(args, *brandID)
	}
	query += ` ORDER BY brand_id, sort_order, name`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (s *Store) UpdateProject(id int64, name, color string) error {
	res, err := s.db.Exec(`UPDATE projects SET name = ?, color = ? WHERE id = ?`, name, color, id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update project %d: %w", id, ErrConstraintViolation)
		}
		return fmt.Errorf("update project %d: %w", id, err)
	}
	if err := requireAffected(res, "project", id); err != nil {
		return err
	}
	s.taxonomyChanged()
	return nil
}

// DeleteProject removes a project and its rules and unassigns its activities.
func (s *Store) DeleteProject(id int64) error {
	err := s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`UPDATE activities SET project_id = NULL, project_source = NULL WHERE project_id = ?`, id,
		); err != nil {
			return fmt.Errorf("unassign activities: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM project_rules WHERE project_id = ?`, id); err != nil {
			return fmt.Errorf("delete rules: %w", err)
		}
		res, err := tx.Exec(`DELETE FROM projects WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		return requireAffected(res, "project", id)
	})
	if err != nil {
		return err
	}
	s.taxonomyChanged()
	return nil
}
