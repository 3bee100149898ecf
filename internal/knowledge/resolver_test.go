package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AlexanderModestov/aiassistant/internal/store"
)

type stubQuerier struct {
	rows    []map[string]any
	err     error
	lastSQL string
}

func (q *stubQuerier) Query(_ context.Context, query string) ([]map[string]any, error) {
	q.lastSQL = query
	if q.err != nil {
		return nil, q.err
	}
	return q.rows, nil
}

func TestResolveNamesFound(t *testing.T) {
	s := NewStore()
	s.Load(nil, []store.Alias{
		{ID: 1, Alias: "школа 5", CanonicalName: "МБОУ СОШ №5", EntityType: "school"},
	})

	res := ResolveNames("результаты школа 5 за неделю", s)
	if !res.AliasFound {
		t.Fatal("expected alias to be found")
	}
	if res.Alias.ID != 1 {
		t.Errorf("alias ID = %d", res.Alias.ID)
	}
	if !strings.Contains(res.Hint, "МБОУ СОШ №5") {
		t.Errorf("hint = %q", res.Hint)
	}
}

func TestResolveNamesNotFound(t *testing.T) {
	s := NewStore()
	res := ResolveNames("любой вопрос", s)
	if res.AliasFound || res.Alias != nil || res.Hint != "" {
		t.Errorf("expected empty resolution, got %+v", res)
	}
}

func TestFuzzySearchSchools(t *testing.T) {
	q := &stubQuerier{rows: []map[string]any{
		{"school": "МБОУ СОШ №5 г. Краснодар"},
		{"school": "МАОУ Лицей №5 г. Краснодар"},
	}}

	got := FuzzySearchSchools(context.Background(), q, []string{"Школа", "5"}, 5)
	if len(got) != 2 {
		t.Fatalf("expected 2 names, got %d", len(got))
	}
	if !strings.Contains(q.lastSQL, "lower(school) LIKE '%школа%'") {
		t.Errorf("query missing lowercased term condition: %s", q.lastSQL)
	}
	if !strings.Contains(q.lastSQL, "LIMIT 5") {
		t.Errorf("query missing limit: %s", q.lastSQL)
	}
}

func TestFuzzySearchStripsQuotes(t *testing.T) {
	q := &stubQuerier{}
	FuzzySearchRegions(context.Background(), q, []string{"кр'ай"}, 3)
	if strings.Contains(q.lastSQL, "кр'ай") {
		t.Errorf("single quote not stripped from term: %s", q.lastSQL)
	}
	if !strings.Contains(q.lastSQL, "край") {
		t.Errorf("stripped term missing: %s", q.lastSQL)
	}
}

func TestFuzzySearchEmptyTermsAndErrors(t *testing.T) {
	q := &stubQuerier{}
	if got := FuzzySearchSchools(context.Background(), q, nil, 5); got != nil {
		t.Errorf("expected nil for empty terms, got %v", got)
	}
	if q.lastSQL != "" {
		t.Error("no query should run for empty terms")
	}

	q = &stubQuerier{err: errors.New("warehouse down")}
	if got := FuzzySearchSchools(context.Background(), q, []string{"школа"}, 5); got != nil {
		t.Errorf("expected nil on query error, got %v", got)
	}
}
