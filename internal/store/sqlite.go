package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS rules (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        rule_text TEXT NOT NULL,
        keywords_json TEXT NOT NULL,
        category TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
        source_question TEXT,
        source_correction TEXT,
        created_by INTEGER NOT NULL,
        approved_by INTEGER,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS aliases (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        alias TEXT NOT NULL,
        canonical_name TEXT NOT NULL,
        entity_type TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
        created_by INTEGER NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS qa_logs (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        username TEXT,
        question TEXT NOT NULL,
        generated_sql TEXT,
        answer TEXT NOT NULL,
        success BOOLEAN NOT NULL,
        error_message TEXT,
        sql_execution_time_ms INTEGER,
        input_tokens INTEGER NOT NULL DEFAULT 0,
        output_tokens INTEGER NOT NULL DEFAULT 0,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Rule methods

func (s *SQLiteStore) InsertRule(rule *Rule) error {
	keywordsBytes, err := json.Marshal(rule.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	if rule.Status == "" {
		rule.Status = StatusPending
	}
	rule.CreatedAt = time.Now()

	res, err := s.db.Exec(
		`INSERT INTO rules (rule_text, keywords_json, category, status, source_question, source_correction, created_by, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.RuleText, string(keywordsBytes), rule.Category, rule.Status,
		rule.SourceQuestion, rule.SourceCorrection, rule.CreatedBy, rule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	rule.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) GetRuleByID(id int64) (*Rule, error) {
	row := s.db.QueryRow(
		`SELECT id, rule_text, keywords_json, category, status, source_question, source_correction, created_by, approved_by, created_at
         FROM rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	return rule, err
}

func (s *SQLiteStore) GetRulesByStatus(status string) ([]Rule, error) {
	rows, err := s.db.Query(
		`SELECT id, rule_text, keywords_json, category, status, source_question, source_correction, created_by, approved_by, created_at
         FROM rules WHERE status = ? ORDER BY id ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(r rowScanner) (*Rule, error) {
	var rule Rule
	var keywordsJSON string
	var sourceQuestion, sourceCorrection sql.NullString
	var approvedBy sql.NullInt64
	err := r.Scan(&rule.ID, &rule.RuleText, &keywordsJSON, &rule.Category, &rule.Status,
		&sourceQuestion, &sourceCorrection, &rule.CreatedBy, &approvedBy, &rule.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(keywordsJSON), &rule.Keywords); err != nil {
		log.Printf("Warning: failed to unmarshal keywords for rule %d: %v", rule.ID, err)
		rule.Keywords = nil
	}
	rule.SourceQuestion = sourceQuestion.String
	rule.SourceCorrection = sourceCorrection.String
	if approvedBy.Valid {
		rule.ApprovedBy = &approvedBy.Int64
	}
	return &rule, nil
}

// UpdateRuleStatus moves a rule to the given status. Setting the same status
// twice is a no-op success, so re-approving is harmless.
func (s *SQLiteStore) UpdateRuleStatus(id int64, status string, approvedBy *int64) error {
	res, err := s.db.Exec("UPDATE rules SET status = ?, approved_by = ? WHERE id = ?", status, approvedBy, id)
	if err != nil {
		return fmt.Errorf("failed to update rule status: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("rule %d not found", id)
	}
	return nil
}

func (s *SQLiteStore) UpdateRuleText(id int64, text string) error {
	res, err := s.db.Exec("UPDATE rules SET rule_text = ? WHERE id = ?", text, id)
	if err != nil {
		return fmt.Errorf("failed to update rule text: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("rule %d not found", id)
	}
	return nil
}

// UpdateRuleTextAndApprove is the edit-then-approve path as one transaction,
// so a concurrent knowledge reload can never observe the edited text in a
// non-approved state or the old text approved.
func (s *SQLiteStore) UpdateRuleTextAndApprove(id int64, text string, approvedBy int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("UPDATE rules SET rule_text = ?, status = ?, approved_by = ? WHERE id = ?",
		text, StatusApproved, approvedBy, id)
	if err != nil {
		return fmt.Errorf("failed to edit and approve rule: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("rule %d not found", id)
	}
	return tx.Commit()
}

// Alias methods

func (s *SQLiteStore) InsertAlias(alias *Alias) error {
	if alias.Status == "" {
		alias.Status = StatusPending
	}
	alias.CreatedAt = time.Now()

	res, err := s.db.Exec(
		"INSERT INTO aliases (alias, canonical_name, entity_type, status, created_by, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		alias.Alias, alias.CanonicalName, alias.EntityType, alias.Status, alias.CreatedBy, alias.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alias: %w", err)
	}
	alias.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) GetAliasesByStatus(status string) ([]Alias, error) {
	rows, err := s.db.Query(
		"SELECT id, alias, canonical_name, entity_type, status, created_by, created_at FROM aliases WHERE status = ? ORDER BY id ASC",
		status)
	if err != nil {
		return nil, fmt.Errorf("failed to query aliases: %w", err)
	}
	defer rows.Close()

	var aliases []Alias
	for rows.Next() {
		var a Alias
		if err := rows.Scan(&a.ID, &a.Alias, &a.CanonicalName, &a.EntityType, &a.Status, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alias row: %w", err)
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

func (s *SQLiteStore) UpdateAliasStatus(id int64, status string) error {
	res, err := s.db.Exec("UPDATE aliases SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to update alias status: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("alias %d not found", id)
	}
	return nil
}

// QA log methods

// LogExchange records one pipeline run. Callers treat this as fire-and-forget:
// the answer has already been produced and must not fail on a logging error.
func (s *SQLiteStore) LogExchange(entry *QALog) error {
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()

	_, err := s.db.Exec(
		`INSERT INTO qa_logs (id, user_id, username, question, generated_sql, answer, success, error_message, sql_execution_time_ms, input_tokens, output_tokens, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Username, entry.Question, entry.GeneratedSQL, entry.Answer,
		entry.Success, entry.ErrorMessage, entry.SQLExecutionMs, entry.InputTokens, entry.OutputTokens, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert qa_log: %w", err)
	}
	return nil
}

// GetUsageStats aggregates qa_logs per user since the given time. A zero time
// means all time. Results are sorted by total token usage, heaviest first.
func (s *SQLiteStore) GetUsageStats(since time.Time) ([]UserUsage, error) {
	query := `
        SELECT user_id, username, question, input_tokens, output_tokens
        FROM qa_logs`
	args := []any{}
	if !since.IsZero() {
		query += " WHERE created_at >= ?"
		args = append(args, since)
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query qa_logs: %w", err)
	}
	defer rows.Close()

	byUser := make(map[int64]*UserUsage)
	var order []int64
	for rows.Next() {
		var userID int64
		var username sql.NullString
		var question string
		var inTokens, outTokens int
		if err := rows.Scan(&userID, &username, &question, &inTokens, &outTokens); err != nil {
			return nil, fmt.Errorf("failed to scan qa_log row: %w", err)
		}
		u, ok := byUser[userID]
		if !ok {
			name := username.String
			if name == "" {
				name = fmt.Sprintf("%d", userID)
			}
			u = &UserUsage{UserID: userID, Username: name}
			byUser[userID] = u
			order = append(order, userID)
		}
		u.Requests++
		u.InputTokens += inTokens
		u.OutputTokens += outTokens
		u.Questions = append(u.Questions, question)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating qa_log rows: %w", err)
	}

	stats := make([]UserUsage, 0, len(order))
	for _, id := range order {
		stats = append(stats, *byUser[id])
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].InputTokens+stats[i].OutputTokens > stats[j].InputTokens+stats[j].OutputTokens
	})
	return stats, nil
}
