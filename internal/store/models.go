package store

import "time"

// Review lifecycle shared by rules and aliases. Pending items are invisible to
// the knowledge cache; only approved ones are ever loaded into it.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Rule categories as produced by the extractor.
const (
	CategorySQLPattern    = "sql_pattern"
	CategoryDomainTerm    = "domain_term"
	CategoryBusinessLogic = "business_logic"
)

// Rule is a learned correction: when any keyword matches a question, RuleText
// is injected into the SQL-generation prompt.
type Rule struct {
	ID               int64     `json:"id"`
	RuleText         string    `json:"rule_text"`
	Keywords         []string  `json:"keywords"`
	Category         string    `json:"category"`
	Status           string    `json:"status"`
	SourceQuestion   string    `json:"source_question"`
	SourceCorrection string    `json:"source_correction"`
	CreatedBy        int64     `json:"created_by"`
	ApprovedBy       *int64    `json:"approved_by"`
	CreatedAt        time.Time `json:"created_at"`
}

// Alias maps a phrase users actually type to the canonical value stored in
// the warehouse (e.g. "школа 5 краснодар" -> "МБОУ СОШ №5 г. Краснодар").
type Alias struct {
	ID            int64     `json:"id"`
	Alias         string    `json:"alias"`
	CanonicalName string    `json:"canonical_name"`
	EntityType    string    `json:"entity_type"` // "school", "region", ...
	Status        string    `json:"status"`
	CreatedBy     int64     `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// QALog is the durable record of one pipeline run, successful or not.
type QALog struct {
	ID             string    `json:"id"` // UUID
	UserID         int64     `json:"user_id"`
	Username       string    `json:"username"`
	Question       string    `json:"question"`
	GeneratedSQL   *string   `json:"generated_sql"`
	Answer         string    `json:"answer"`
	Success        bool      `json:"success"`
	ErrorMessage   *string   `json:"error_message"`
	SQLExecutionMs *int64    `json:"sql_execution_time_ms"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserUsage is the per-user aggregate behind the admin stats view.
type UserUsage struct {
	UserID       int64    `json:"user_id"`
	Username     string   `json:"username"`
	Requests     int      `json:"requests"`
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
	Questions    []string `json:"questions"`
}
