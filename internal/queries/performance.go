package queries

import (
	"context"
	"fmt"
	"time"

	"github.com/AlexanderModestov/aiassistant/internal/warehouse"
)

type RegionScore struct {
	Region      string
	AvgScore    float64
	Submissions int64
}

type ScoreBucket struct {
	Range string
	Count int64
}

type SubjectScore struct {
	Subject     string
	AvgScore    float64
	Submissions int64
}

type ParallelScore struct {
	Parallel    string
	AvgScore    float64
	Submissions int64
}

type OverallStats struct {
	TotalSubmissions int64
	AvgScore         float64
	MedianScore      float64
	MinScore         int64
	MaxScore         int64
	ActiveRegions    int64
	ActiveSchools    int64
	ActiveStudents   int64
}

// PerformanceMetrics is the input of the academic performance report.
type PerformanceMetrics struct {
	Date              string
	OverallToday      OverallStats
	OverallYesterday  OverallStats
	TopRegions        []RegionScore
	BottomRegions     []RegionScore
	ScoreDistribution []ScoreBucket
	BySubject         []SubjectScore
	ByParallel        []ParallelScore
}

func getRegionsByScore(ctx context.Context, q warehouse.Querier, targetDate time.Time, order string, limit int) ([]RegionScore, error) {
	query := fmt.Sprintf(`
    SELECT
        region,
        round(avg(result_percent), 1) as avg_score,
        count() as submissions
    FROM work_results_n
    WHERE toDate(submission_date) = '%s'
      AND region != ''
    GROUP BY region
    HAVING submissions >= 10
    ORDER BY avg_score %s
    LIMIT %d
    `, formatDate(targetDate), order, limit)

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	regions := make([]RegionScore, 0, len(rows))
	for _, row := range rows {
		regions = append(regions, RegionScore{
			Region:      asString(row["region"]),
			AvgScore:    asFloat64(row["avg_score"]),
			Submissions: asInt64(row["submissions"]),
		})
	}
	return regions, nil
}

func getScoreDistribution(ctx context.Context, q warehouse.Querier, targetDate time.Time) ([]ScoreBucket, error) {
	query := fmt.Sprintf(`
    SELECT
        multiIf(
            result_percent < 20, '0-19',
            result_percent < 40, '20-39',
            result_percent < 60, '40-59',
            result_percent < 80, '60-79',
            '80-100'
        ) as score_range,
        count() as cnt
    FROM work_results_n
    WHERE toDate(submission_date) = '%s'
    GROUP BY score_range
    ORDER BY score_range
    `, formatDate(targetDate))

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	buckets := make([]ScoreBucket, 0, len(rows))
	for _, row := range rows {
		buckets = append(buckets, ScoreBucket{
			Range: asString(row["score_range"]),
			Count: asInt64(row["cnt"]),
		})
	}
	return buckets, nil
}

func getPerformanceBySubject(ctx context.Context, q warehouse.Querier, targetDate time.Time, limit int) ([]SubjectScore, error) {
	query := fmt.Sprintf(`
    SELECT
        subject,
        round(avg(result_percent), 1) as avg_score,
        count() as submissions
    FROM work_results_n
    WHERE toDate(submission_date) = '%s'
      AND subject != ''
    GROUP BY subject
    ORDER BY submissions DESC
    LIMIT %d
    `, formatDate(targetDate), limit)

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	subjects := make([]SubjectScore, 0, len(rows))
	for _, row := range rows {
		subjects = append(subjects, SubjectScore{
			Subject:     asString(row["subject"]),
			AvgScore:    asFloat64(row["avg_score"]),
			Submissions: asInt64(row["submissions"]),
		})
	}
	return subjects, nil
}

func getPerformanceByParallel(ctx context.Context, q warehouse.Querier, targetDate time.Time) ([]ParallelScore, error) {
	query := fmt.Sprintf(`
    SELECT
        parallel,
        round(avg(result_percent), 1) as avg_score,
        count() as submissions
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
	parallels := make([]ParallelScore, 0, len(rows))
	for _, row := range rows {
		parallels = append(parallels, ParallelScore{
			Parallel:    asString(row["parallel"]),
			AvgScore:    asFloat64(row["avg_score"]),
			Submissions: asInt64(row["submissions"]),
		})
	}
	return parallels, nil
}

func getOverallStats(ctx context.Context, q warehouse.Querier, targetDate time.Time) (OverallStats, error) {
	query := fmt.Sprintf(`
    SELECT
        count() as total_submissions,
        round(avg(result_percent), 1) as avg_score,
        round(median(result_percent), 1) as median_score,
        min(result_percent) as min_score,
        max(result_percent) as max_score,
        count(DISTINCT region) as active_regions,
        count(DISTINCT school) as active_schools,
        count(DISTINCT student_id) as active_students
    FROM work_results_n
    WHERE toDate(submission_date) = '%s'
    `, formatDate(targetDate))

	rows, err := q.Query(ctx, query)
	if err != nil {
		return OverallStats{}, err
	}
	if len(rows) == 0 {
		return OverallStats{}, nil
	}
	return OverallStats{
		TotalSubmissions: asInt64(rows[0]["total_submissions"]),
		AvgScore:         asFloat64(rows[0]["avg_score"]),
		MedianScore:      asFloat64(rows[0]["median_score"]),
		MinScore:         asInt64(rows[0]["min_score"]),
		MaxScore:         asInt64(rows[0]["max_score"]),
		ActiveRegions:    asInt64(rows[0]["active_regions"]),
		ActiveSchools:    asInt64(rows[0]["active_schools"]),
		ActiveStudents:   asInt64(rows[0]["active_students"]),
	}, nil
}

// GetAllPerformanceMetrics collects the academic performance metrics.
// A zero targetDate defaults to yesterday.
func GetAllPerformanceMetrics(ctx context.Context, q warehouse.Querier, targetDate time.Time) (*PerformanceMetrics, error) {
	if targetDate.IsZero() {
		targetDate = time.Now().AddDate(0, 0, -1)
	}
	previousDate := targetDate.AddDate(0, 0, -1)

	metrics := &PerformanceMetrics{Date: formatDate(targetDate)}

	var err error
	if metrics.OverallToday, err = getOverallStats(ctx, q, targetDate); err != nil {
		return nil, fmt.Errorf("overall stats: %w", err)
	}
	if metrics.OverallYesterday, err = getOverallStats(ctx, q, previousDate); err != nil {
		return nil, fmt.Errorf("previous day overall stats: %w", err)
	}
	if metrics.TopRegions, err = getRegionsByScore(ctx, q, targetDate, "DESC", 10); err != nil {
		return nil, fmt.Errorf("top regions: %w", err)
	}
	if metrics.BottomRegions, err = getRegionsByScore(ctx, q, targetDate, "ASC", 5); err != nil {
		return nil, fmt.Errorf("bottom regions: %w", err)
	}
	if metrics.ScoreDistribution, err = getScoreDistribution(ctx, q, targetDate); err != nil {
		return nil, fmt.Errorf("score distribution: %w", err)
	}
	if metrics.BySubject, err = getPerformanceBySubject(ctx, q, targetDate, 10); err != nil {
		return nil, fmt.Errorf("by subject: %w", err)
	}
	if metrics.ByParallel, err = getPerformanceByParallel(ctx, q, targetDate); err != nil {
		return nil, fmt.Errorf("by parallel: %w", err)
	}
	return metrics, nil
}
