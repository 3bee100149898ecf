package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AlexanderModestov/aiassistant/internal/conversation"
	"github.com/AlexanderModestov/aiassistant/internal/knowledge"
	"github.com/AlexanderModestov/aiassistant/internal/llm"
	"github.com/AlexanderModestov/aiassistant/internal/store"
)

type genResponse struct {
	text string
	in   int
	out  int
	err  error
}

// scriptedGenerator replays a fixed script of responses and records every
// request. Safe for the background learning goroutine.
type scriptedGenerator struct {
	mu       sync.Mutex
	script   []genResponse
	requests []llm.Request
}

func (g *scriptedGenerator) Generate(_ context.Context, req llm.Request) (*llm.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if len(g.script) == 0 {
		return &llm.Result{}, nil
	}
	next := g.script[0]
	g.script = g.script[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &llm.Result{Text: next.text, InputTokens: next.in, OutputTokens: next.out}, nil
}

func (g *scriptedGenerator) request(i int) llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[i]
}

func (g *scriptedGenerator) requestCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type recordingQuerier struct {
	mu      sync.Mutex
	rows    []map[string]any
	err     error
	queries []string
}

func (q *recordingQuerier) Query(_ context.Context, query string) ([]map[string]any, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queries = append(q.queries, query)
	return q.rows, q.err
}

func (q *recordingQuerier) queryCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queries)
}

type memoryRecorder struct {
	mu    sync.Mutex
	logs  []store.QALog
	rules []store.Rule
}

func (r *memoryRecorder) LogExchange(entry *store.QALog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *entry)
	return nil
}

func (r *memoryRecorder) InsertRule(rule *store.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, *rule)
	return nil
}

func newTestService(t *testing.T, gen *scriptedGenerator, wh *recordingQuerier, rec *memoryRecorder) *QAService {
	t.Helper()
	svc := NewQAService(
		conversation.NewStore(conversation.DefaultTTL, conversation.DefaultMaxExchanges),
		knowledge.NewStore(),
		gen,
		wh,
		rec,
	)
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestAnswerQuestionSuccess(t *testing.T) {
	gen := &scriptedGenerator{script: []genResponse{
		{text: "SELECT COUNT(*) FROM work_results_n WHERE toDate(submission_date) = today()", in: 900, out: 25},
		{text: "Сегодня сдано 3 работы.\n", in: 300, out: 12},
	}}
	wh := &recordingQuerier{rows: []map[string]any{{"count": int64(3)}}}
	rec := &memoryRecorder{}
	svc := newTestService(t, gen, wh, rec)

	result := svc.AnswerQuestion(context.Background(), 42, "alice", "Сколько работ сдали сегодня?")

	if !result.Success {
		t.Fatalf("Success = false, ErrorMessage = %v", result.ErrorMessage)
	}
	if result.Answer != "Сегодня сдано 3 работы." {
		t.Errorf("Answer = %q, want trimmed model text", result.Answer)
	}
	if result.GeneratedSQL == nil || !strings.HasPrefix(*result.GeneratedSQL, "SELECT COUNT(*)") {
		t.Errorf("GeneratedSQL = %v", result.GeneratedSQL)
	}
	if result.InputTokens != 1200 || result.OutputTokens != 37 {
		t.Errorf("tokens = %d/%d, want 1200/37 (summed over both calls)", result.InputTokens, result.OutputTokens)
	}
	if result.SQLExecutionMs == nil {
		t.Error("SQLExecutionMs = nil, want set after execution")
	}

	// The exchange is committed and available as context for the next turn.
	history := svc.conversations.GetExchanges(42)
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].Answer != "Сегодня сдано 3 работы." {
		t.Errorf("committed answer = %q", history[0].Answer)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.logs) != 1 {
		t.Fatalf("logged exchanges = %d, want 1", len(rec.logs))
	}
	if !rec.logs[0].Success || rec.logs[0].UserID != 42 || rec.logs[0].Username != "alice" {
		t.Errorf("unexpected log entry: %+v", rec.logs[0])
	}
}

func TestAnswerQuestionFollowUpCarriesHistory(t *testing.T) {
	gen := &scriptedGenerator{script: []genResponse{
		{text: "SELECT COUNT(*) FROM work_results_n WHERE toDate(submission_date) = yesterday()"},
		{text: "Вчера сдали 5 работ."},
	}}
	wh := &recordingQuerier{rows: []map[string]any{{"count": int64(5)}}}
	svc := newTestService(t, gen, wh, &memoryRecorder{})

	svc.conversations.AddExchange(42,
		"Сколько работ сдали сегодня?",
		"SELECT COUNT(*) FROM work_results_n WHERE toDate(submission_date) = today()",
		"Сегодня сдано 3 работы.")

	result := svc.AnswerQuestion(context.Background(), 42, "alice", "А вчера?")
	if !result.Success {
		t.Fatalf("Success = false, ErrorMessage = %v", result.ErrorMessage)
	}

	// SQL generation sees the prior question/SQL pair before the follow-up.
	sqlReq := gen.request(0)
	if len(sqlReq.Turns) != 3 {
		t.Fatalf("SQL request turns = %d, want 3", len(sqlReq.Turns))
	}
	if sqlReq.Turns[0].Content != "Сколько работ сдали сегодня?" || sqlReq.Turns[0].Role != "user" {
		t.Errorf("turn 0 = %+v", sqlReq.Turns[0])
	}
	if !strings.Contains(sqlReq.Turns[1].Content, "today()") || sqlReq.Turns[1].Role != "model" {
		t.Errorf("turn 1 should replay the prior SQL, got %+v", sqlReq.Turns[1])
	}
	if sqlReq.Turns[2].Content != "А вчера?" {
		t.Errorf("turn 2 = %+v", sqlReq.Turns[2])
	}

	// Answer generation replays the prior answer instead of the SQL.
	ansReq := gen.request(1)
	if ansReq.Turns[1].Content != "Сегодня сдано 3 работы." {
		t.Errorf("answer turn 1 = %+v", ansReq.Turns[1])
	}
	if !strings.Contains(ansReq.Turns[2].Content, "А вчера?") {
		t.Errorf("final answer turn should carry the question, got %q", ansReq.Turns[2].Content)
	}

	history := svc.conversations.GetExchanges(42)
	if len(history) != 2 {
		t.Errorf("history length = %d, want 2", len(history))
	}
}

func TestAnswerQuestionRefusesUnion(t *testing.T) {
	gen := &scriptedGenerator{script: []genResponse{
		{text: "SELECT region FROM work_results_n UNION ALL SELECT region FROM work_results_06", in: 800, out: 30},
	}}
	wh := &recordingQuerier{}
	rec := &memoryRecorder{}
	svc := newTestService(t, gen, wh, rec)

	result := svc.AnswerQuestion(context.Background(), 7, "bob", "Объедини результаты двух таблиц")

	if result.Success {
		t.Fatal("Success = true for a UNION query")
	}
	if result.Answer != refusalMessage {
		t.Errorf("Answer = %q, want refusal message", result.Answer)
	}
	if result.ErrorMessage == nil || *result.ErrorMessage != "UNION queries not supported" {
		t.Errorf("ErrorMessage = %v, want %q", result.ErrorMessage, "UNION queries not supported")
	}
	if wh.queryCount() != 0 {
		t.Error("warehouse was queried despite the safety refusal")
	}
	if result.SQLExecutionMs != nil {
		t.Error("SQLExecutionMs set without execution")
	}
	if len(svc.conversations.GetExchanges(7)) != 0 {
		t.Error("refused exchange was committed to conversation history")
	}
}

func TestAnswerQuestionRefusesMutations(t *testing.T) {
	gen := &scriptedGenerator{script: []genResponse{
		{text: "DROP TABLE school_stats"},
	}}
	wh := &recordingQuerier{}
	svc := newTestService(t, gen, wh, &memoryRecorder{})

	result := svc.AnswerQuestion(context.Background(), 7, "bob", "Удали таблицу")

	if result.Success {
		t.Fatal("Success = true for a mutating query")
	}
	if result.Answer != refusalMessage {
		t.Errorf("Answer = %q, want refusal message", result.Answer)
	}
	if wh.queryCount() != 0 {
		t.Error("warehouse was queried despite the safety refusal")
	}
}

func TestAnswerQuestionExecutionFailure(t *testing.T) {
	gen := &scriptedGenerator{script: []genResponse{
		{text: "SELECT bad_column FROM work_results_n"},
	}}
	wh := &recordingQuerier{err: errors.New("Unknown identifier: bad_column")}
	rec := &memoryRecorder{}
	svc := newTestService(t, gen, wh, rec)

	result := svc.AnswerQuestion(context.Background(), 7, "bob", "Вопрос")

	if result.Success {
		t.Fatal("Success = true despite execution error")
	}
	if !strings.HasPrefix(result.Answer, executionErrorRu) {
		t.Errorf("Answer = %q, want execution error prefix", result.Answer)
	}
	if result.SQLExecutionMs == nil {
		t.Error("SQLExecutionMs = nil, want set for an attempted execution")
	}
	if len(svc.conversations.GetExchanges(7)) != 0 {
		t.Error("failed exchange was committed to conversation history")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.logs) != 1 || rec.logs[0].Success {
		t.Errorf("failed exchange should still be logged, got %+v", rec.logs)
	}
}

func TestAnswerQuestionGenerationFailure(t *testing.T) {
	gen := &scriptedGenerator{script: []genResponse{
		{err: errors.New("backend unavailable")},
	}}
	wh := &recordingQuerier{}
	svc := newTestService(t, gen, wh, &memoryRecorder{})

	result := svc.AnswerQuestion(context.Background(), 7, "bob", "Вопрос")

	if result.Success {
		t.Fatal("Success = true despite generation error")
	}
	if !strings.HasPrefix(result.Answer, generationErrorRu) {
		t.Errorf("Answer = %q, want generation error prefix", result.Answer)
	}
	if result.GeneratedSQL != nil {
		t.Errorf("GeneratedSQL = %v, want nil when generation failed", result.GeneratedSQL)
	}
	if wh.queryCount() != 0 {
		t.Error("warehouse was queried without generated SQL")
	}
}

func TestAnswerQuestionStripsCodeFence(t *testing.T) {
	gen := &scriptedGenerator{script: []genResponse{
		{text: "```sql\nSELECT COUNT(*) FROM school_stats\n```"},
		{text: "Всего 100 школ."},
	}}
	wh := &recordingQuerier{rows: []map[string]any{{"count": int64(100)}}}
	svc := newTestService(t, gen, wh, &memoryRecorder{})

	result := svc.AnswerQuestion(context.Background(), 1, "alice", "Сколько школ?")
	if !result.Success {
		t.Fatalf("Success = false, ErrorMessage = %v", result.ErrorMessage)
	}

	wh.mu.Lock()
	executed := wh.queries[0]
	wh.mu.Unlock()
	if executed != "SELECT COUNT(*) FROM school_stats" {
		t.Errorf("executed SQL = %q, want fence stripped", executed)
	}
	if *result.GeneratedSQL != "SELECT COUNT(*) FROM school_stats" {
		t.Errorf("GeneratedSQL = %q, want fence stripped", *result.GeneratedSQL)
	}
}

func TestAnswerQuestionInjectsKnowledgeHints(t *testing.T) {
	gen := &scriptedGenerator{script: []genResponse{
		{text: "SELECT COUNT(*) FROM work_results_n WHERE lower(region) LIKE '%краснодар%'"},
		{text: "В Краснодарском крае 10 работ."},
	}}
	wh := &recordingQuerier{rows: []map[string]any{{"count": int64(10)}}}
	svc := newTestService(t, gen, wh, &memoryRecorder{})

	svc.knowledge.Load(
		[]store.Rule{{
			ID:       1,
			RuleText: "Для Краснодара искать по региону 'Краснодарский край'",
			Keywords: []string{"краснодар"},
			Status:   store.StatusApproved,
		}},
		[]store.Alias{{
			ID:            1,
			Alias:         "краснодар",
			CanonicalName: "Краснодарский край",
			EntityType:    "region",
			Status:        store.StatusApproved,
		}},
	)

	result := svc.AnswerQuestion(context.Background(), 1, "alice", "Сколько работ в Краснодаре?")
	if !result.Success {
		t.Fatalf("Success = false, ErrorMessage = %v", result.ErrorMessage)
	}

	system := gen.request(0).System
	if !strings.Contains(system, "Для Краснодара искать по региону 'Краснодарский край'") {
		t.Error("SQL system instruction is missing the matched rule")
	}
	if !strings.Contains(system, "Краснодарский край") {
		t.Error("SQL system instruction is missing the alias hint")
	}
	if !strings.Contains(system, "2025-06-15") {
		t.Error("SQL system instruction is missing today's date")
	}
}

func TestAnswerQuestionQueuesExtractedRule(t *testing.T) {
	proposal := `{"is_correction": true, "rule_text": "При подсчёте школ использовать uniqExact(school_id)", "keywords": ["школ", "количество"], "category": "sql_pattern"}`
	gen := &scriptedGenerator{script: []genResponse{
		{text: "SELECT uniqExact(school_id) FROM work_results_n"},
		{text: "Уникальных школ: 50."},
		{text: proposal}, // background extraction call
	}}
	wh := &recordingQuerier{rows: []map[string]any{{"count": int64(50)}}}
	rec := &memoryRecorder{}
	svc := newTestService(t, gen, wh, rec)

	svc.conversations.AddExchange(42,
		"Сколько школ сдали работы?",
		"SELECT COUNT(*) FROM work_results_n",
		"Школ: 120.")

	result := svc.AnswerQuestion(context.Background(), 42, "alice", "Нет, считай уникальные школы")
	if !result.Success {
		t.Fatalf("Success = false, ErrorMessage = %v", result.ErrorMessage)
	}

	// Extraction runs in the background; wait for it to land.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.rules)
		rec.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.rules) != 1 {
		t.Fatalf("extracted rules = %d, want 1", len(rec.rules))
	}
	rule := rec.rules[0]
	if rule.Status != store.StatusPending {
		t.Errorf("rule status = %q, want pending", rule.Status)
	}
	if rule.SourceQuestion != "Сколько школ сдали работы?" {
		t.Errorf("SourceQuestion = %q", rule.SourceQuestion)
	}
	if rule.SourceCorrection != "Нет, считай уникальные школы" {
		t.Errorf("SourceCorrection = %q", rule.SourceCorrection)
	}
	if rule.CreatedBy != 42 {
		t.Errorf("CreatedBy = %d, want 42", rule.CreatedBy)
	}
}

func TestAnswerQuestionNoExtractionOnFirstTurn(t *testing.T) {
	gen := &scriptedGenerator{script: []genResponse{
		{text: "SELECT COUNT(*) FROM school_stats"},
		{text: "Всего 100 школ."},
	}}
	wh := &recordingQuerier{rows: []map[string]any{{"count": int64(100)}}}
	svc := newTestService(t, gen, wh, &memoryRecorder{})

	svc.AnswerQuestion(context.Background(), 1, "alice", "Сколько школ?")

	// No prior exchange means nothing to compare against: exactly the two
	// pipeline calls, no background extraction.
	time.Sleep(50 * time.Millisecond)
	if n := gen.requestCount(); n != 2 {
		t.Errorf("generator calls = %d, want 2", n)
	}
}

func TestRenderRows(t *testing.T) {
	if got := renderRows(nil); got != "Нет данных" {
		t.Errorf("renderRows(nil) = %q", got)
	}

	rows := make([]map[string]any, 30)
	for i := range rows {
		rows[i] = map[string]any{"n": i}
	}
	rendered := renderRows(rows)
	if strings.Count(rendered, `"n"`) != maxResultRows {
		t.Errorf("rendered %d rows, want capped at %d", strings.Count(rendered, `"n"`), maxResultRows)
	}
}
