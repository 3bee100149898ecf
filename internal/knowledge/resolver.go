package knowledge

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/AlexanderModestov/aiassistant/internal/store"
	"github.com/AlexanderModestov/aiassistant/internal/warehouse"
)

// Resolution describes whether a question contained a known alias and the
// prompt hint to inject if it did.
type Resolution struct {
	AliasFound bool
	Alias      *store.Alias
	Hint       string
}

// ResolveNames checks the question against the approved aliases.
func ResolveNames(question string, s *Store) Resolution {
	alias := s.FindAlias(question)
	if alias != nil {
		return Resolution{
			AliasFound: true,
			Alias:      alias,
			Hint:       FormatAliasHint(alias),
		}
	}
	return Resolution{}
}

// FuzzySearchSchools finds distinct school names in the warehouse containing
// every search term, to help admins pick a canonical name for a new alias.
func FuzzySearchSchools(ctx context.Context, q warehouse.Querier, searchTerms []string, limit int) []string {
	return fuzzySearchColumn(ctx, q, "school", searchTerms, limit)
}

// FuzzySearchRegions is the region-column counterpart of FuzzySearchSchools.
func FuzzySearchRegions(ctx context.Context, q warehouse.Querier, searchTerms []string, limit int) []string {
	return fuzzySearchColumn(ctx, q, "region", searchTerms, limit)
}

func fuzzySearchColumn(ctx context.Context, q warehouse.Querier, column string, searchTerms []string, limit int) []string {
	if len(searchTerms) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 5
	}

	conditions := make([]string, 0, len(searchTerms))
	for _, term := range searchTerms {
		// Terms are interpolated into a LIKE pattern; quotes are stripped
		// rather than escaped, matching how names are stored.
		term = strings.ReplaceAll(strings.ToLower(term), "'", "")
		conditions = append(conditions, fmt.Sprintf("lower(%s) LIKE '%%%s%%'", column, term))
	}

	query := fmt.Sprintf(`
    SELECT DISTINCT %s
    FROM work_results_n
    WHERE %s AND %s != ''
    LIMIT %d
    `, column, strings.Join(conditions, " AND "), column, limit)

	results, err := q.Query(ctx, query)
	if err != nil {
		log.Printf("Fuzzy %s search failed: %v", column, err)
		return nil
	}

	names := make([]string, 0, len(results))
	for _, row := range results {
		if name, ok := row[column].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}
