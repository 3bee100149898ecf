package queries

import (
	"context"
	"strings"
	"testing"
	"time"
)

// stubQuerier answers each query by matching a substring against the SQL
// text, so one stub can serve a whole metrics assembly.
type stubQuerier struct {
	responses map[string][]map[string]any
	queries   []string
}

func (q *stubQuerier) Query(_ context.Context, query string) ([]map[string]any, error) {
	q.queries = append(q.queries, query)
	for marker, rows := range q.responses {
		if strings.Contains(query, marker) {
			return rows, nil
		}
	}
	return nil, nil
}

func TestGetAllActivityMetrics(t *testing.T) {
	target := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC) // a Sunday

	q := &stubQuerier{responses: map[string][]map[string]any{
		"count(DISTINCT region) as active_regions": {{
			"total_submissions": uint64(120),
			"active_students":   uint64(80),
			"active_schools":    uint64(15),
			"active_regions":    uint64(5),
		}},
		"GROUP BY day": {
			{"day": "2025-06-14", "submissions": uint64(90), "students": uint64(60)},
			{"day": "2025-06-15", "submissions": uint64(120), "students": uint64(80)},
		},
		"GROUP BY parallel": {
			{"parallel": "5", "submissions": uint64(40), "students": uint64(30)},
			{"parallel": "9", "submissions": uint64(80), "students": uint64(50)},
		},
		"GROUP BY work_type": {
			{"work_type": "ВПР", "submissions": uint64(100), "avg_score": 67.5},
		},
		"GROUP BY region": {
			{"region": "Московская область", "submissions": uint64(50), "schools": uint64(8), "students": uint64(35)},
		},
		"GROUP BY status": {
			{"status": "completed", "cnt": uint64(110)},
		},
		"active_students\n    FROM": {{
			"submissions":     uint64(500),
			"active_schools":  uint64(20),
			"active_students": uint64(300),
		}},
	}}

	m, err := GetAllActivityMetrics(context.Background(), q, target)
	if err != nil {
		t.Fatalf("GetAllActivityMetrics: %v", err)
	}

	if m.Date != "2025-06-15" {
		t.Errorf("Date = %q", m.Date)
	}
	if m.Today.TotalSubmissions != 120 || m.Today.ActiveRegions != 5 {
		t.Errorf("Today = %+v", m.Today)
	}
	if len(m.WeeklyTrend) != 2 || m.WeeklyTrend[1].Submissions != 120 {
		t.Errorf("WeeklyTrend = %+v", m.WeeklyTrend)
	}
	if len(m.ByParallel) != 2 || m.ByParallel[0].Parallel != "5" {
		t.Errorf("ByParallel = %+v", m.ByParallel)
	}
	if len(m.ByWorkType) != 1 || m.ByWorkType[0].AvgScore != 67.5 {
		t.Errorf("ByWorkType = %+v", m.ByWorkType)
	}
	if len(m.TopRegions) != 1 || m.TopRegions[0].Region != "Московская область" {
		t.Errorf("TopRegions = %+v", m.TopRegions)
	}

	// Week comparison brackets: this week starts on Monday the 9th, last
	// week covers the 2nd through the 8th.
	if m.ThisWeek.StartDate != "2025-06-09" || m.ThisWeek.EndDate != "2025-06-15" {
		t.Errorf("ThisWeek window = %s..%s", m.ThisWeek.StartDate, m.ThisWeek.EndDate)
	}
	if m.LastWeek.StartDate != "2025-06-02" || m.LastWeek.EndDate != "2025-06-08" {
		t.Errorf("LastWeek window = %s..%s", m.LastWeek.StartDate, m.LastWeek.EndDate)
	}
}

func TestGetLastSubmissionDateFallsBack(t *testing.T) {
	q := &stubQuerier{responses: map[string][]map[string]any{}}
	got := GetLastSubmissionDate(context.Background(), q)
	want := time.Now().AddDate(0, 0, -1)
	if got.Format("2006-01-02") != want.Format("2006-01-02") {
		t.Errorf("fallback date = %s, want yesterday", got.Format("2006-01-02"))
	}
}

func TestGetLastSubmissionDateFromWarehouse(t *testing.T) {
	q := &stubQuerier{responses: map[string][]map[string]any{
		"max(toDate(submission_date))": {{"last_date": time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)}},
	}}
	got := GetLastSubmissionDate(context.Background(), q)
	if got.Format("2006-01-02") != "2025-06-10" {
		t.Errorf("last date = %s, want 2025-06-10", got.Format("2006-01-02"))
	}
}

func TestWeekStart(t *testing.T) {
	cases := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), "2025-06-09"},  // Monday
		{time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC), "2025-06-09"}, // Wednesday
		{time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), "2025-06-09"}, // Sunday
	}
	for _, tc := range cases {
		if got := formatDate(weekStart(tc.in)); got != tc.want {
			t.Errorf("weekStart(%s) = %s, want %s", formatDate(tc.in), got, tc.want)
		}
	}
}

func TestCoercions(t *testing.T) {
	if asInt64(uint64(7)) != 7 || asInt64(int32(7)) != 7 || asInt64("x") != 0 {
		t.Error("asInt64 coercions")
	}
	if asFloat64(float32(1.5)) != 1.5 || asFloat64(int64(3)) != 3 {
		t.Error("asFloat64 coercions")
	}
	if asString([]byte("регион")) != "регион" {
		t.Error("asString []byte coercion")
	}
	if asString(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)) != "2025-06-15" {
		t.Error("asString time coercion")
	}
}
