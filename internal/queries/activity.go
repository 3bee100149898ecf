package queries

import (
	"context"
	"fmt"
	"time"

	"github.com/AlexanderModestov/aiassistant/internal/warehouse"
)

type DayActivity struct {
	TotalSubmissions int64
	ActiveStudents   int64
	ActiveSchools    int64
	ActiveRegions    int64
}

type TrendPoint struct {
	Day         string
	Submissions int64
	Students    int64
}

type ParallelStat struct {
	Parallel    string
	Submissions int64
	Students    int64
}

type WorkTypeStat struct {
	WorkType    string
	Submissions int64
	AvgScore    float64
}

type RegionActivity struct {
	Region      string
	Submissions int64
	Schools     int64
	Students    int64
}

type StatusStat struct {
	Status string
	Count  int64
}

type WeekStat struct {
	Submissions    int64
	ActiveSchools  int64
	ActiveStudents int64
	StartDate      string
	EndDate        string
}

// ActivityMetrics is the full input of the on-demand activity report.
type ActivityMetrics struct {
	Date            string
	Today           DayActivity
	Yesterday       DayActivity
	WeeklyTrend     []TrendPoint
	ThisWeek        WeekStat
	LastWeek        WeekStat
	ByParallel      []ParallelStat
	ByWorkType      []WorkTypeStat
	TopRegions      []RegionActivity
	StatusBreakdown []StatusStat
}

// GetLastSubmissionDate returns the most recent submission date in
// work_results_n, falling back to yesterday when the table is empty.
func GetLastSubmissionDate(ctx context.Context, q warehouse.Querier) time.Time {
	rows, err := q.Query(ctx, `
    SELECT max(toDate(submission_date)) as last_date
    FROM work_results_n
    WHERE submission_date IS NOT NULL AND submission_date != ''
    `)
	if err == nil && len(rows) > 0 {
		if d, ok := asDate(rows[0]["last_date"]); ok {
			return d
		}
	}
	return time.Now().AddDate(0, 0, -1)
}

func getDailyActivity(ctx context.Context, q warehouse.Querier, targetDate time.Time) (DayActivity, error) {
	query := fmt.Sprintf(`
    SELECT
        count() as total_submissions,
        count(DISTINCT student_id) as active_students,
        count(DISTINCT school) as active_schools,
        count(DISTINCT region) as active_regions
    FROM work_results_n
    WHERE toDate(submission_date) = '%s'
    `, formatDate(targetDate))

	rows, err := q.Query(ctx, query)
	if err != nil {
		return DayActivity{}, err
	}
	if len(rows) == 0 {
		return DayActivity{}, nil
	}
	return DayActivity{
		TotalSubmissions: asInt64(rows[0]["total_submissions"]),
		ActiveStudents:   asInt64(rows[0]["active_students"]),
		ActiveSchools:    asInt64(rows[0]["active_schools"]),
		ActiveRegions:    asInt64(rows[0]["active_regions"]),
	}, nil
}

func getWeeklySubmissionTrend(ctx context.Context, q warehouse.Querier, targetDate time.Time) ([]TrendPoint, error) {
	start := targetDate.AddDate(0, 0, -6)
	query := fmt.Sprintf(`
    SELECT
        toDate(submission_date) as day,
        count() as submissions,
        count(DISTINCT student_id) as students
    FROM work_results_n
    WHERE toDate(submission_date) >= '%s'
      AND toDate(submission_date) <= '%s'
    GROUP BY day
    ORDER BY day
    `, formatDate(start), formatDate(targetDate))

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	trend := make([]TrendPoint, 0, len(rows))
	for _, row := range rows {
		trend = append(trend, TrendPoint{
			Day:         asString(row["day"]),
			Submissions: asInt64(row["submissions"]),
			Students:    asInt64(row["students"]),
		})
	}
	return trend, nil
}

func getSubmissionsByParallel(ctx context.Context, q warehouse.Querier, targetDate time.Time) ([]ParallelStat, error) {
	query := fmt.Sprintf(`
    SELECT
        parallel,
        count() as submissions,
        count(DISTINCT student_id) as students
    FROM work_results_n
    WHERE toDate(submission_date) = '%s'
      AND parallel != ''
    GROUP BY parallel
    ORDER BY parallel
    `, formatDate(targetDate))

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	stats := make([]ParallelStat, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, ParallelStat{
			Parallel:    asString(row["parallel"]),
			Submissions: asInt64(row["submissions"]),
			Students:    asInt64(row["students"]),
		})
	}
	return stats, nil
}

func getSubmissionsByWorkType(ctx context.Context, q warehouse.Querier, targetDate time.Time) ([]WorkTypeStat, error) {
	query := fmt.Sprintf(`
    SELECT
        work_type,
        count() as submissions,
        round(avg(result_percent), 1) as avg_score
    FROM work_results_n
    WHERE toDate(submission_date) = '%s'
      AND work_type != ''
    GROUP BY work_type
    ORDER BY submissions DESC
    `, formatDate(targetDate))

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	stats := make([]WorkTypeStat, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, WorkTypeStat{
			WorkType:    asString(row["work_type"]),
			Submissions: asInt64(row["submissions"]),
			AvgScore:    asFloat64(row["avg_score"]),
		})
	}
	return stats, nil
}

func getTopActiveRegions(ctx context.Context, q warehouse.Querier, targetDate time.Time, limit int) ([]RegionActivity, error) {
	query := fmt.Sprintf(`
    SELECT
        region,
        count() as submissions,
        count(DISTINCT school) as schools,
        count(DISTINCT student_id) as students
    FROM work_results_n
    WHERE toDate(submission_date) = '%s'
      AND region != ''
    GROUP BY region
    ORDER BY submissions DESC
    LIMIT %d
    `, formatDate(targetDate), limit)

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	regions := make([]RegionActivity, 0, len(rows))
	for _, row := range rows {
		regions = append(regions, RegionActivity{
			Region:      asString(row["region"]),
			Submissions: asInt64(row["submissions"]),
			Schools:     asInt64(row["schools"]),
			Students:    asInt64(row["students"]),
		})
	}
	return regions, nil
}

func getStatusBreakdown(ctx context.Context, q warehouse.Querier, targetDate time.Time) ([]StatusStat, error) {
	query := fmt.Sprintf(`
    SELECT
        status,
        count() as cnt
    FROM work_results_n
    WHERE toDate(submission_date) = '%s'
      AND status != ''
    GROUP BY status
    ORDER BY cnt DESC
    `, formatDate(targetDate))

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	stats := make([]StatusStat, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, StatusStat{
			Status: asString(row["status"]),
			Count:  asInt64(row["cnt"]),
		})
	}
	return stats, nil
}

func getWeeklyComparison(ctx context.Context, q warehouse.Querier, targetDate time.Time) (thisWeek, lastWeek WeekStat, err error) {
	thisWeekStart := weekStart(targetDate)
	lastWeekStart := thisWeekStart.AddDate(0, 0, -7)
	lastWeekEnd := thisWeekStart.AddDate(0, 0, -1)

	weekQuery := `
    SELECT
        count() as submissions,
        count(DISTINCT school) as active_schools,
        count(DISTINCT student_id) as active_students
    FROM work_results_n
    WHERE toDate(submission_date) >= '%s'
      AND toDate(submission_date) <= '%s'
    `

	fetch := func(start, end time.Time) (WeekStat, error) {
		rows, err := q.Query(ctx, fmt.Sprintf(weekQuery, formatDate(start), formatDate(end)))
		if err != nil {
			return WeekStat{}, err
		}
		stat := WeekStat{StartDate: formatDate(start), EndDate: formatDate(end)}
		if len(rows) > 0 {
			stat.Submissions = asInt64(rows[0]["submissions"])
			stat.ActiveSchools = asInt64(rows[0]["active_schools"])
			stat.ActiveStudents = asInt64(rows[0]["active_students"])
		}
		return stat, nil
	}

	if thisWeek, err = fetch(thisWeekStart, targetDate); err != nil {
		return
	}
	lastWeek, err = fetch(lastWeekStart, lastWeekEnd)
	return
}

// GetAllActivityMetrics collects everything the activity report needs.
// A zero targetDate defaults to yesterday, since today's data is incomplete.
func GetAllActivityMetrics(ctx context.Context, q warehouse.Querier, targetDate time.Time) (*ActivityMetrics, error) {
	if targetDate.IsZero() {
		targetDate = time.Now().AddDate(0, 0, -1)
	}
	previousDate := targetDate.AddDate(0, 0, -1)

	metrics := &ActivityMetrics{Date: formatDate(targetDate)}

	var err error
	if metrics.Today, err = getDailyActivity(ctx, q, targetDate); err != nil {
		return nil, fmt.Errorf("daily activity: %w", err)
	}
	if metrics.Yesterday, err = getDailyActivity(ctx, q, previousDate); err != nil {
		return nil, fmt.Errorf("previous day activity: %w", err)
	}
	if metrics.WeeklyTrend, err = getWeeklySubmissionTrend(ctx, q, targetDate); err != nil {
		return nil, fmt.Errorf("weekly trend: %w", err)
	}
	if metrics.ThisWeek, metrics.LastWeek, err = getWeeklyComparison(ctx, q, targetDate); err != nil {
		return nil, fmt.Errorf("weekly comparison: %w", err)
	}
	if metrics.ByParallel, err = getSubmissionsByParallel(ctx, q, targetDate); err != nil {
		return nil, fmt.Errorf("by parallel: %w", err)
	}
	if metrics.ByWorkType, err = getSubmissionsByWorkType(ctx, q, targetDate); err != nil {
		return nil, fmt.Errorf("by work type: %w", err)
	}
	if metrics.TopRegions, err = getTopActiveRegions(ctx, q, targetDate, 10); err != nil {
		return nil, fmt.Errorf("top regions: %w", err)
	}
	if metrics.StatusBreakdown, err = getStatusBreakdown(ctx, q, targetDate); err != nil {
		return nil, fmt.Errorf("status breakdown: %w", err)
	}
	return metrics, nil
}
