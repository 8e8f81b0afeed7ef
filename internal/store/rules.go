package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const ruleSelect = `SELECT id, project_id, rule_type, pattern, is_regex, priority, created_at FROM project_rules`

// ruleOrder is the precedence the matcher relies on.
const ruleOrder = ` ORDER BY priority DESC, id ASC`

func scanRule(row rowScanner) (*ProjectRule, error) {
	r := &ProjectRule{}
	var ruleType, createdAt string
	var isRegex int
	if err := row.Scan(&r.ID, &r.ProjectID, &ruleType, &r.Pattern, &isRegex, &r.Priority, &createdAt); err != nil {
		return nil, err
	}
	r.RuleType = RuleType(ruleType)
	r.IsRegex = isRegex == 1
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return r, nil
}

func (s *Store) CreateRule(projectID int64, in RuleInput) (*ProjectRule, error) {
	var r *ProjectRule
	err := s.withTx(func(tx *sql.Tx) error {
		var err error
		r, err = createRuleTx(tx, projectID, in, s.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.taxonomyChanged()
	return r, nil
}

func createRuleTx(tx *sql.Tx, projectID int64, in RuleInput, now time.Time) (*ProjectRule, error) {
	if !in.RuleType.Valid() {
		return nil, fmt.Errorf("rule type %q: %w", in.RuleType, ErrInvalidRuleType)
	}
	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM projects WHERE id = ?`, projectID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check project: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}

	res, err := tx.Exec(
		`INSERT INTO project_rules (project_id, rule_type, pattern, is_regex, priority, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		projectID, string(in.RuleType), in.Pattern, boolToInt(in.IsRegex), in.Priority,
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert rule: %w", err)
	}
	id, _ := res.LastInsertId()
	return scanRule(tx.QueryRow(ruleSelect+` WHERE id = ?`, id))
}

func (s *Store) GetRule(id int64) (*ProjectRule, error) {
	r, err := scanRule(s.db.QueryRow(ruleSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get rule %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %d: %w", id, err)
	}
	return r, nil
}

// ListRules returns the rules of one project in match order.
func (s *Store) ListRules(projectID int64) ([]ProjectRule, error) {
	return s.queryRules(ruleSelect+` WHERE project_id = ?`+ruleOrder, projectID)
}

// ListAllRules returns every rule in match order: priority descending, then
// insertion order.
func (s *Store) ListAllRules() ([]ProjectRule, error) {
	return s.queryRules(ruleSelect + ruleOrder)
}

func (s *Store) queryRules(query string, args ...any) ([]ProjectRule, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []ProjectRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

func (s *Store) UpdateRule(id int64, in RuleInput) error {
	if !in.RuleType.Valid() {
		return fmt.Errorf("rule type %q: %w", in.RuleType, ErrInvalidRuleType)
	}
	res, err := s.db.Exec(
		`UPDATE project_rules SET rule_type = ?, pattern = ?, is_regex = ?, priority = ? WHERE id = ?`,
		string(in.RuleType), in.Pattern, boolToInt(in.IsRegex), in.Priority, id,
	)
	if err != nil {
		return fmt.Errorf("update rule %d: %w", id, err)
	}
	if err := requireAffected(res, "rule", id); err != nil {
		return err
	}
	s.taxonomyChanged()
	return nil
}

func (s *Store) DeleteRule(id int64) error {
	res, err := s.db.Exec(`DELETE FROM project_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule %d: %w", id, err)
	}
	if err := requireAffected(res, "rule", id); err != nil {
		return err
	}
	s.taxonomyChanged()
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
