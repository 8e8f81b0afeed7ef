package store

import (
	"database/sql"
	"fmt"
	"time"
)

// AcceptedProject is what CreateProjectWithRules persisted.
type AcceptedProject struct {
	Brand   Brand         `json:"brand"`
	Project Project       `json:"project"`
	Rules   []ProjectRule `json:"rules"`
}

// CreateProjectWithRules creates a project and its rules in one transaction.
// The brand is looked up by name and created when missing.
func (s *Store) CreateProjectWithRules(brandName, brandColor, projectName, projectColor string, rules []RuleInput) (*AcceptedProject, error) {
	now := s.clock.Now()
	out := &AcceptedProject{}

	err := s.withTx(func(tx *sql.Tx) error {
		var brandID int64
		err := tx.QueryRow(`SELECT id FROM brands WHERE name = ?`, brandName).Scan(&brandID)
		switch {
		case err == sql.ErrNoRows:
			res, err := tx.Exec(
				`INSERT INTO brands (name, color, sort_order, created_at)
				 VALUES (?, ?, (SELECT COALESCE(MAX(sort_order), -1) + 1 FROM brands), ?)`,
				brandName, brandColor, now.UTC().Format(time.RFC3339),
			)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("insert brand %q: %w", brandName, ErrConstraintViolation)
				}
				return fmt.Errorf("insert brand: %w", err)
			}
			brandID, _ = res.LastInsertId()
		case err != nil:
			return fmt.Errorf("find brand: %w", err)
		}

		var createdAt string
		if err := tx.QueryRow(
			`SELECT id, name, color, sort_order, created_at FROM brands WHERE id = ?`, brandID,
		).Scan(&out.Brand.ID, &out.Brand.Name, &out.Brand.Color, &out.Brand.SortOrder, &createdAt); err != nil {
			return fmt.Errorf("read brand: %w", err)
		}
		out.Brand.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

		p, err := createProjectTx(tx, brandID, projectName, projectColor, now)
		if err != nil {
			return err
		}
		out.Project = *p

		for _, in := range rules {
			r, err := createRuleTx(tx, p.ID, in, now)
			if err != nil {
				return err
			}
			out.Rules = append(out.Rules, *r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.taxonomyChanged()
	return out, nil
}

// DismissSuggestion hides a detected suggestion key from future listings.
func (s *Store) DismissSuggestion(key string) error {
	_, err := s.db.Exec(
		`INSERT INTO dismissed_suggestions (key, dismissed_at) VALUES (?, ?)
		 ON CONFLICT(key) DO NOTHING`,
		key, s.clock.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("dismiss suggestion %q: %w", key, err)
	}
	return nil
}

// DismissedSuggestions returns the set of dismissed suggestion keys.
func (s *Store) DismissedSuggestions() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT key FROM dismissed_suggestions`)
	if err != nil {
		return nil, fmt.Errorf("list dismissed suggestions: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys[k] = true
	}
	return keys, rows.Err()
}
