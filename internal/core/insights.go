package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AlexanderModestov/aiassistant/internal/llm"
	"github.com/AlexanderModestov/aiassistant/internal/queries"
	"github.com/AlexanderModestov/aiassistant/internal/warehouse"
)

const reportMaxTokens = 1024

const activityReportSystem = `Ты аналитик образовательной платформы в России. Тебе дают свод метрик активности за день.

Напиши краткий аналитический отчёт (4-6 пунктов):
1. Динамика активности по сравнению со вчера и прошлой неделей
2. Тренд за неделю — рост или падение
3. Какие классы наиболее активны
4. Популярные типы работ
5. Самые активные регионы
6. Аномалии или важные наблюдения

ВАЖНО: Всегда указывай точные даты.

Формат:
📊 **Активность за [дата]**
[краткое резюме в 1-2 предложения]

📈 **Динамика**
[сравнение со вчера и прошлой неделей]

📅 **Тренд недели**
[анализ по дням]

🎓 **По классам и типам**
[анализ]

🏆 **Топ регионы**
[список]

💡 **Наблюдение**
[одна ключевая мысль]

Пиши кратко и по делу. Используй emoji умеренно.`

const dailyReportSystem = `Ты аналитик образовательной платформы в России. Тебе дают метрики просмотров и сдач работ за день.

Напиши краткий отчёт о росте платформы (3-5 пунктов): динамика просмотров по ролям, сдачи работ, сравнение недель, топ регионы. Всегда указывай точные даты. Пиши кратко и по делу. Используй emoji умеренно.`

const performanceReportSystem = `Ты аналитик образовательной платформы в России. Тебе дают метрики успеваемости за день.

Напиши краткий отчёт об успеваемости (4-6 пунктов): общие показатели и их динамика ко вчера, сильные и слабые регионы, распределение баллов, предметы и классы. Всегда указывай точные даты. Пиши кратко и по делу. Используй emoji умеренно.`

// ReportService turns fixed dashboard metrics into narrated reports.
type ReportService struct {
	gen       llm.Generator
	warehouse warehouse.Querier
}

func NewReportService(gen llm.Generator, wh warehouse.Querier) *ReportService {
	return &ReportService{gen: gen, warehouse: wh}
}

// GenerateActivityReport builds the on-demand activity/engagement report.
func (s *ReportService) GenerateActivityReport(ctx context.Context) (string, error) {
	metrics, err := queries.GetAllActivityMetrics(ctx, s.warehouse, time.Time{})
	if err != nil {
		return "", fmt.Errorf("failed to collect activity metrics: %w", err)
	}

	result, err := s.gen.Generate(ctx, llm.Request{
		System:          activityReportSystem,
		Turns:           []llm.Turn{{Role: "user", Content: formatActivityMetrics(metrics)}},
		MaxOutputTokens: reportMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate activity report: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// GenerateDailyReport builds the scheduled growth report.
func (s *ReportService) GenerateDailyReport(ctx context.Context) (string, error) {
	metrics, err := queries.GetAllDailyMetrics(ctx, s.warehouse, time.Time{})
	if err != nil {
		return "", fmt.Errorf("failed to collect daily metrics: %w", err)
	}

	result, err := s.gen.Generate(ctx, llm.Request{
		System:          dailyReportSystem,
		Turns:           []llm.Turn{{Role: "user", Content: formatDailyMetrics(metrics)}},
		MaxOutputTokens: reportMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate daily report: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// GeneratePerformanceReport builds the on-demand academic performance report.
func (s *ReportService) GeneratePerformanceReport(ctx context.Context) (string, error) {
	metrics, err := queries.GetAllPerformanceMetrics(ctx, s.warehouse, time.Time{})
	if err != nil {
		return "", fmt.Errorf("failed to collect performance metrics: %w", err)
	}

	result, err := s.gen.Generate(ctx, llm.Request{
		System:          performanceReportSystem,
		Turns:           []llm.Turn{{Role: "user", Content: formatPerformanceMetrics(metrics)}},
		MaxOutputTokens: reportMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate performance report: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

func formatActivityMetrics(m *queries.ActivityMetrics) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Данные об активности и вовлечённости за %s:\n\n", m.Date)

	fmt.Fprintf(&b, "📊 АКТИВНОСТЬ СЕГОДНЯ:\n")
	fmt.Fprintf(&b, "- Сдано работ: %d\n", m.Today.TotalSubmissions)
	fmt.Fprintf(&b, "- Активных учеников: %d\n", m.Today.ActiveStudents)
	fmt.Fprintf(&b, "- Активных школ: %d\n", m.Today.ActiveSchools)
	fmt.Fprintf(&b, "- Активных регионов: %d\n\n", m.Today.ActiveRegions)

	fmt.Fprintf(&b, "📊 АКТИВНОСТЬ ВЧЕРА:\n")
	fmt.Fprintf(&b, "- Сдано работ: %d\n", m.Yesterday.TotalSubmissions)
	fmt.Fprintf(&b, "- Активных учеников: %d\n", m.Yesterday.ActiveStudents)
	fmt.Fprintf(&b, "- Активных школ: %d\n", m.Yesterday.ActiveSchools)
	fmt.Fprintf(&b, "- Активных регионов: %d\n\n", m.Yesterday.ActiveRegions)

	fmt.Fprintf(&b, "📈 ТРЕНД ЗА НЕДЕЛЮ (по дням):\n")
	if len(m.WeeklyTrend) == 0 {
		b.WriteString("  Нет данных\n")
	}
	for _, d := range m.WeeklyTrend {
		fmt.Fprintf(&b, "  %s: %d работ, %d учеников\n", d.Day, d.Submissions, d.Students)
	}

	fmt.Fprintf(&b, "\n📈 НЕДЕЛЯ vs ПРОШЛАЯ НЕДЕЛЯ:\n")
	fmt.Fprintf(&b, "- Эта неделя (%s — %s): %d работ, %d школ, %d учеников\n",
		m.ThisWeek.StartDate, m.ThisWeek.EndDate, m.ThisWeek.Submissions, m.ThisWeek.ActiveSchools, m.ThisWeek.ActiveStudents)
	fmt.Fprintf(&b, "- Прошлая неделя (%s — %s): %d работ, %d школ, %d учеников\n\n",
		m.LastWeek.StartDate, m.LastWeek.EndDate, m.LastWeek.Submissions, m.LastWeek.ActiveSchools, m.LastWeek.ActiveStudents)

	fmt.Fprintf(&b, "🎓 ПО КЛАССАМ (параллелям):\n")
	if len(m.ByParallel) == 0 {
		b.WriteString("  Нет данных\n")
	}
	for _, p := range m.ByParallel {
		fmt.Fprintf(&b, "  %s класс: %d работ, %d учеников\n", p.Parallel, p.Submissions, p.Students)
	}

	fmt.Fprintf(&b, "\n📝 ПО ТИПАМ РАБОТ:\n")
	if len(m.ByWorkType) == 0 {
		b.WriteString("  Нет данных\n")
	}
	for _, w := range m.ByWorkType {
		fmt.Fprintf(&b, "  %s: %d работ (ср. балл %.1f%%)\n", w.WorkType, w.Submissions, w.AvgScore)
	}

	fmt.Fprintf(&b, "\n🏆 ТОП РЕГИОНОВ ПО АКТИВНОСТИ:\n")
	if len(m.TopRegions) == 0 {
		b.WriteString("  Нет данных\n")
	}
	for i, r := range m.TopRegions {
		fmt.Fprintf(&b, "  %d. %s: %d работ, %d школ, %d учеников\n", i+1, r.Region, r.Submissions, r.Schools, r.Students)
	}

	fmt.Fprintf(&b, "\n📋 СТАТУСЫ РАБОТ:\n")
	if len(m.StatusBreakdown) == 0 {
		b.WriteString("  Нет данных\n")
	}
	for _, s := range m.StatusBreakdown {
		fmt.Fprintf(&b, "  %s: %d\n", s.Status, s.Count)
	}

	return b.String()
}

func formatPerformanceMetrics(m *queries.PerformanceMetrics) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Данные об успеваемости за %s:\n\n", m.Date)

	writeOverall := func(label string, o queries.OverallStats) {
		fmt.Fprintf(&b, "📊 %s:\n", label)
		fmt.Fprintf(&b, "- Сдано работ: %d\n", o.TotalSubmissions)
		fmt.Fprintf(&b, "- Средний балл: %.1f%%, медиана: %.1f%%\n", o.AvgScore, o.MedianScore)
		fmt.Fprintf(&b, "- Разброс: %d%% — %d%%\n", o.MinScore, o.MaxScore)
		fmt.Fprintf(&b, "- Регионов: %d, школ: %d, учеников: %d\n\n", o.ActiveRegions, o.ActiveSchools, o.ActiveStudents)
	}
	writeOverall("СЕГОДНЯ", m.OverallToday)
	writeOverall("ВЧЕРА", m.OverallYesterday)

	fmt.Fprintf(&b, "🏆 ЛУЧШИЕ РЕГИОНЫ ПО БАЛЛАМ:\n")
	if len(m.TopRegions) == 0 {
		b.WriteString("  Нет данных\n")
	}
	for i, r := range m.TopRegions {
		fmt.Fprintf(&b, "  %d. %s: %.1f%% (%d работ)\n", i+1, r.Region, r.AvgScore, r.Submissions)
	}

	fmt.Fprintf(&b, "\n⚠️ СЛАБЫЕ РЕГИОНЫ ПО БАЛЛАМ:\n")
	if len(m.BottomRegions) == 0 {
		b.WriteString("  Нет данных\n")
	}
	for i, r := range m.BottomRegions {
		fmt.Fprintf(&b, "  %d. %s: %.1f%% (%d работ)\n", i+1, r.Region, r.AvgScore, r.Submissions)
	}

	fmt.Fprintf(&b, "\n📊 РАСПРЕДЕЛЕНИЕ БАЛЛОВ:\n")
	if len(m.ScoreDistribution) == 0 {
		b.WriteString("  Нет данных\n")
	}
	for _, bucket := range m.ScoreDistribution {
		fmt.Fprintf(&b, "  %s: %d\n", bucket.Range, bucket.Count)
	}

	fmt.Fprintf(&b, "\n📚 ПО ПРЕДМЕТАМ:\n")
	if len(m.BySubject) == 0 {
		b.WriteString("  Нет данных\n")
	}
	for _, subj := range m.BySubject {
		fmt.Fprintf(&b, "  %s: %.1f%% (%d работ)\n", subj.Subject, subj.AvgScore, subj.Submissions)
	}

	fmt.Fprintf(&b, "\n🎓 ПО КЛАССАМ:\n")
	if len(m.ByParallel) == 0 {
		b.WriteString("  Нет данных\n")
	}
	for _, p := range m.ByParallel {
		fmt.Fprintf(&b, "  %s класс: %.1f%% (%d работ)\n", p.Parallel, p.AvgScore, p.Submissions)
	}

	return b.String()
}

func formatDailyMetrics(m *queries.DailyMetrics) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Метрики платформы за %s:\n\n", m.Date)

	fmt.Fprintf(&b, "👀 ПРОСМОТРЫ СЕГОДНЯ:\n")
	if len(m.ViewsToday) == 0 {
		b.WriteString("  Нет данных\n")
	}
	for role, views := range m.ViewsToday {
		fmt.Fprintf(&b, "  %s: %d\n", role, views)
	}

	fmt.Fprintf(&b, "\n👀 ПРОСМОТРЫ ВЧЕРА:\n")
	if len(m.ViewsYesterday) == 0 {
		b.WriteString("  Нет данных\n")
	}
	for role, views := range m.ViewsYesterday {
		fmt.Fprintf(&b, "  %s: %d\n", role, views)
	}

	fmt.Fprintf(&b, "\n📝 СДАНО РАБОТ: сегодня %d, вчера %d\n", m.SubmissionsToday, m.SubmissionsYesterday)

	fmt.Fprintf(&b, "\n📈 НЕДЕЛЯ vs ПРОШЛАЯ НЕДЕЛЯ:\n")
	fmt.Fprintf(&b, "- Эта неделя (%s — %s): %d просмотров, %d школ\n",
		m.ThisWeek.StartDate, m.ThisWeek.EndDate, m.ThisWeek.Views, m.ThisWeek.ActiveSchools)
	fmt.Fprintf(&b, "- Прошлая неделя (%s — %s): %d просмотров, %d школ\n",
		m.LastWeek.StartDate, m.LastWeek.EndDate, m.LastWeek.Views, m.LastWeek.ActiveSchools)

	fmt.Fprintf(&b, "\n🏆 ТОП РЕГИОНОВ:\n")
	if len(m.TopRegions) == 0 {
		b.WriteString("  Нет данных\n")
	}
	for i, r := range m.TopRegions {
		fmt.Fprintf(&b, "  %d. %s: %d просмотров, %d школ\n", i+1, r.Region, r.Views, r.Schools)
	}

	fmt.Fprintf(&b, "\n📊 СТАТИСТИКА СДАЧ: %d работ, средний балл %.1f%%, %d регионов\n",
		m.SubmissionStats.TotalSubmissions, m.SubmissionStats.AvgScore, m.SubmissionStats.ActiveRegions)

	return b.String()
}
