package queries

import (
	"context"
	"fmt"
	"time"

	"github.com/AlexanderModestov/aiassistant/internal/warehouse"
)

type WeekViews struct {
	Views         int64
	ActiveSchools int64
	StartDate     string
	EndDate       string
}

type RegionViews struct {
	Region  string
	Views   int64
	Schools int64
}

type SubmissionStats struct {
	TotalSubmissions int64
	AvgScore         float64
	ActiveRegions    int64
}

// DailyMetrics is the input of the scheduled growth report.
type DailyMetrics struct {
	Date                 string
	ViewsToday           map[string]int64 // role -> views
	ViewsYesterday       map[string]int64
	SubmissionsToday     int64
	SubmissionsYesterday int64
	ThisWeek             WeekViews
	LastWeek             WeekViews
	TopRegions           []RegionViews
	SubmissionStats      SubmissionStats
}

// GetLastViewDate returns the most recent date with data in school_work,
// falling back to yesterday.
func GetLastViewDate(ctx context.Context, q warehouse.Querier) time.Time {
	rows, err := q.Query(ctx, "SELECT max(date) as last_date FROM school_work")
	if err == nil && len(rows) > 0 {
		if d, ok := asDate(rows[0]["last_date"]); ok {
			return d
		}
	}
	return time.Now().AddDate(0, 0, -1)
}

func getDailyViews(ctx context.Context, q warehouse.Querier, targetDate time.Time) (map[string]int64, error) {
	query := fmt.Sprintf(`
    SELECT
        role,
        sum(total_view) as views
    FROM school_work
    WHERE date = '%s'
    GROUP BY role
    `, formatDate(targetDate))

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	views := make(map[string]int64, len(rows))
	for _, row := range rows {
		views[asString(row["role"])] = asInt64(row["views"])
	}
	return views, nil
}

func getDailySubmissions(ctx context.Context, q warehouse.Querier, targetDate time.Time) (int64, error) {
	query := fmt.Sprintf(`
    SELECT count() as cnt
    FROM work_results_n
    WHERE toDate(submission_date) = '%s'
    `, formatDate(targetDate))

	rows, err := q.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return asInt64(rows[0]["cnt"]), nil
}

func getWeeklyViewComparison(ctx context.Context, q warehouse.Querier) (thisWeek, lastWeek WeekViews, err error) {
	yesterday := time.Now().AddDate(0, 0, -1)
	thisWeekStart := weekStart(yesterday)
	lastWeekStart := thisWeekStart.AddDate(0, 0, -7)
	lastWeekEnd := thisWeekStart.AddDate(0, 0, -1)

	weekQuery := `
    SELECT
        sum(total_view) as views,
        count(DISTINCT school) as active_schools
    FROM school_work
    WHERE date >= '%s' AND date <= '%s'
    `

	fetch := func(start, end time.Time) (WeekViews, error) {
		rows, err := q.Query(ctx, fmt.Sprintf(weekQuery, formatDate(start), formatDate(end)))
		if err != nil {
			return WeekViews{}, err
		}
		w := WeekViews{StartDate: formatDate(start), EndDate: formatDate(end)}
		if len(rows) > 0 {
			w.Views = asInt64(rows[0]["views"])
			w.ActiveSchools = asInt64(rows[0]["active_schools"])
		}
		return w, nil
	}

	if thisWeek, err = fetch(thisWeekStart, yesterday); err != nil {
		return
	}
	lastWeek, err = fetch(lastWeekStart, lastWeekEnd)
	return
}

func getTopRegionsByViews(ctx context.Context, q warehouse.Querier, targetDate time.Time, limit int) ([]RegionViews, error) {
	query := fmt.Sprintf(`
    SELECT
        region,
        sum(total_view) as views,
        count(DISTINCT school) as schools
    FROM school_work
    WHERE date = '%s'
    GROUP BY region
    ORDER BY views DESC
    LIMIT %d
    `, formatDate(targetDate), limit)

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	regions := make([]RegionViews, 0, len(rows))
	for _, row := range rows {
		regions = append(regions, RegionViews{
			Region:  asString(row["region"]),
			Views:   asInt64(row["views"]),
			Schools: asInt64(row["schools"]),
		})
	}
	return regions, nil
}

func getSubmissionStats(ctx context.Context, q warehouse.Querier, targetDate time.Time) (SubmissionStats, error) {
	query := fmt.Sprintf(`
    SELECT
        count() as total_submissions,
        avg(result_percent) as avg_score,
        count(DISTINCT region) as active_regions
    FROM work_results_n
    WHERE toDate(submission_date) = '%s'
    `, formatDate(targetDate))

	rows, err := q.Query(ctx, query)
	if err != nil {
		return SubmissionStats{}, err
	}
	if len(rows) == 0 {
		return SubmissionStats{}, nil
	}
	return SubmissionStats{
		TotalSubmissions: asInt64(rows[0]["total_submissions"]),
		AvgScore:         asFloat64(rows[0]["avg_score"]),
		ActiveRegions:    asInt64(rows[0]["active_regions"]),
	}, nil
}

// GetAllDailyMetrics collects everything the scheduled growth report needs.
// A zero targetDate uses the last date for which school_work has data.
func GetAllDailyMetrics(ctx context.Context, q warehouse.Querier, targetDate time.Time) (*DailyMetrics, error) {
	if targetDate.IsZero() {
		targetDate = GetLastViewDate(ctx, q)
	}
	previousDate := targetDate.AddDate(0, 0, -1)

	metrics := &DailyMetrics{Date: formatDate(targetDate)}

	var err error
	if metrics.ViewsToday, err = getDailyViews(ctx, q, targetDate); err != nil {
		return nil, fmt.Errorf("daily views: %w", err)
	}
	if metrics.ViewsYesterday, err = getDailyViews(ctx, q, previousDate); err != nil {
		return nil, fmt.Errorf("previous day views: %w", err)
	}
	if metrics.SubmissionsToday, err = getDailySubmissions(ctx, q, targetDate); err != nil {
		return nil, fmt.Errorf("daily submissions: %w", err)
	}
	if metrics.SubmissionsYesterday, err = getDailySubmissions(ctx, q, previousDate); err != nil {
		return nil, fmt.Errorf("previous day submissions: %w", err)
	}
	if metrics.ThisWeek, metrics.LastWeek, err = getWeeklyViewComparison(ctx, q); err != nil {
		return nil, fmt.Errorf("weekly comparison: %w", err)
	}
	if metrics.TopRegions, err = getTopRegionsByViews(ctx, q, targetDate, 5); err != nil {
		return nil, fmt.Errorf("top regions: %w", err)
	}
	if metrics.SubmissionStats, err = getSubmissionStats(ctx, q, targetDate); err != nil {
		return nil, fmt.Errorf("submission stats: %w", err)
	}
	return metrics, nil
}
