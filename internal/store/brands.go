package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *Store) CreateBrand(name, color string) (*Brand, error) {
	now := s.clock.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		`INSERT INTO brands (name, color, sort_order, created_at)
		 VALUES (?, ?, (SELECT COALESCE(MAX(sort_order), -1) + 1 FROM brands), ?)`,
		name, color, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert brand %q: %w", name, ErrConstraintViolation)
		}
		return nil, fmt.Errorf("insert brand: %w", err)
	}
	id, _ := res.LastInsertId()
	s.taxonomyChanged()
	return s.GetBrand(id)
}

func (s *Store) GetBrand(id int64) (*Brand, error) {
	b := &Brand{}
	var createdAt string
	err := s.db.QueryRow(
		`SELECT id, name, color, sort_order, created_at FROM brands WHERE id = ?`, id,
	).Scan(&b.ID, &b.Name, &b.Color, &b.SortOrder, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get brand %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get brand %d: %w", id, err)
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return b, nil
}

// GetBrandByName returns the brand with the given name, or nil if none exists.
func (s *Store) GetBrandByName(name string) (*Brand, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM brands WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get brand %q: %w", name, err)
	}
	return s.GetBrand(id)
}

func (s *Store) ListBrands() ([]Brand, error) {
	rows, err := s.db.Query(
		`SELECT id, name, color, sort_order, created_at FROM brands ORDER BY sort_order, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list brands: %w", err)
	}
	defer rows.Close()

	var brands []Brand
	for rows.Next() {
		var b Brand
		var createdAt string
		if err := rows.Scan(&b.ID, &b.Name, &b.Color, &b.SortOrder, &createdAt); err != nil {
			return nil, err
		}
		b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

func (s *Store) UpdateBrand(id int64, name, color string) error {
	res, err := s.db.Exec(`UPDATE brands SET name = ?, color = ? WHERE id = ?`, name, color, id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update brand %d: %w", id, ErrConstraintViolation)
		}
		return fmt.Errorf("update brand %d: %w", id, err)
	}
	if err := requireAffected(res, "brand", id); err != nil {
		return err
	}
	s.taxonomyChanged()
	return nil
}

// DeleteBrand removes a brand, its projects and their rules, and unassigns
// every activity that referenced one of those projects.
func (s *Store) DeleteBrand(id int64) error {
	err := s.withTx(func(tx *sql.Tx) error {
		const projectsOfBrand = `SELECT id FROM projects WHERE brand_id = ?`
		if _, err := tx.Exec(
			`UPDATE activities SET project_id = NULL, project_source = NULL
			 WHERE project_id IN (`+projectsOfBrand+`)`, id,
		); err != nil {
			return fmt.Errorf("unassign activities: %w", err)
		}
		if _, err := tx.Exec(
			`DELETE FROM project_rules WHERE project_id IN (`+projectsOfBrand+`)`, id,
		); err != nil {
			return fmt.Errorf("delete rules: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM projects WHERE brand_id = ?`, id); err != nil {
			return fmt.Errorf("delete projects: %w", err)
		}
		res, err := tx.Exec(`DELETE FROM brands WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete brand: %w", err)
		}
		return requireAffected(res, "brand", id)
	})
	if err != nil {
		return err
	}
	s.taxonomyChanged()
	return nil
}

func requireAffected(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}
