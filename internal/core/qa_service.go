package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/AlexanderModestov/aiassistant/internal/conversation"
	"github.com/AlexanderModestov/aiassistant/internal/knowledge"
	"github.com/AlexanderModestov/aiassistant/internal/llm"
	"github.com/AlexanderModestov/aiassistant/internal/store"
	"github.com/AlexanderModestov/aiassistant/internal/warehouse"
)

const (
	sqlGenMaxTokens = 500
	answerMaxTokens = 1024
	maxResultRows   = 20 // cap on rows serialized into the answer prompt
	learnTimeout    = 30 * time.Second
)

// Recorder is the durable side channel of the pipeline: exchange logs and
// extracted pending rules. Failures here never affect the returned answer.
type Recorder interface {
	LogExchange(entry *store.QALog) error
	InsertRule(rule *store.Rule) error
}

// Result is what one pipeline run always produces, whether the question was
// answered, refused by the safety gate, or failed during execution.
type Result struct {
	Answer         string  `json:"answer"`
	Success        bool    `json:"success"`
	GeneratedSQL   *string `json:"generated_sql"`
	ErrorMessage   *string `json:"error_message"`
	SQLExecutionMs *int64  `json:"sql_execution_time_ms"`
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
}

// QAService runs the question-answering pipeline: conversation context in,
// SQL out of the generator, safety gate, warehouse execution, answer
// generation, then commit to conversation memory.
type QAService struct {
	conversations *conversation.Store
	knowledge     *knowledge.Store
	gen           llm.Generator
	warehouse     warehouse.Querier
	recorder      Recorder
	extractor     *knowledge.Extractor

	// Pipeline runs for the same user are serialized so exchanges commit to
	// history in ask order even under concurrent requests.
	userMu   sync.Mutex
	userLock map[int64]*sync.Mutex

	now func() time.Time
}

func NewQAService(
	conversations *conversation.Store,
	knowledgeStore *knowledge.Store,
	gen llm.Generator,
	wh warehouse.Querier,
	recorder Recorder,
) *QAService {
	return &QAService{
		conversations: conversations,
		knowledge:     knowledgeStore,
		gen:           gen,
		warehouse:     wh,
		recorder:      recorder,
		extractor:     knowledge.NewExtractor(gen),
		userLock:      make(map[int64]*sync.Mutex),
		now:           time.Now,
	}
}

// AnswerQuestion answers one free-form question for one user. It never
// returns an error: every outcome is encoded in the Result, and the caller
// relays Result.Answer to the user as-is.
func (s *QAService) AnswerQuestion(ctx context.Context, userID int64, username, question string) *Result {
	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	history := s.conversations.GetExchanges(userID)
	result := s.runPipeline(ctx, userID, history, question)

	s.logExchange(userID, username, question, result)

	if result.Success && len(history) > 0 {
		prev := history[len(history)-1]
		go s.learnFromExchange(userID, prev, question, derefOr(result.GeneratedSQL, ""))
	}
	return result
}

// ClearConversation drops the user's conversation context so the next
// question starts fresh.
func (s *QAService) ClearConversation(userID int64) {
	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()
	s.conversations.Clear(userID)
}

func (s *QAService) runPipeline(ctx context.Context, userID int64, history []conversation.Exchange, question string) *Result {
	result := &Result{}

	// SQL generation
	genResult, err := s.gen.Generate(ctx, llm.Request{
		System:          s.buildSQLSystem(question),
		Turns:           sqlTurns(history, question),
		MaxOutputTokens: sqlGenMaxTokens,
	})
	if err != nil {
		log.Printf("SQL generation failed | User: %d | Question: %s | Error: %v", userID, question, err)
		return failed(result, generationErrorRu+err.Error(), err.Error())
	}
	result.InputTokens += genResult.InputTokens
	result.OutputTokens += genResult.OutputTokens

	sqlQuery := llm.StripCodeFence(genResult.Text)
	result.GeneratedSQL = &sqlQuery

	// Safety gate: refuse before the warehouse sees anything.
	if err := CheckQuerySafety(sqlQuery); err != nil {
		log.Printf("Query refused by safety gate | User: %d | Question: %s | SQL: %s", userID, question, flatten(sqlQuery))
		return failed(result, refusalMessage, err.Error())
	}

	// Execution
	start := s.now()
	rows, err := s.warehouse.Query(ctx, sqlQuery)
	execMs := s.now().Sub(start).Milliseconds()
	result.SQLExecutionMs = &execMs
	if err != nil {
		log.Printf("Q&A query failed | Question: %s | SQL: %s | Error: %v", question, flatten(sqlQuery), err)
		return failed(result, executionErrorRu+err.Error(), err.Error())
	}
	log.Printf("Q&A query executed | Question: %s | SQL: %s | Rows returned: %d", question, flatten(sqlQuery), len(rows))

	// Answer generation
	answerResult, err := s.gen.Generate(ctx, llm.Request{
		System:          answerSystemInstruction,
		Turns:           answerTurns(history, question, renderRows(rows)),
		MaxOutputTokens: answerMaxTokens,
	})
	if err != nil {
		log.Printf("Answer generation failed | User: %d | Question: %s | Error: %v", userID, question, err)
		return failed(result, generationErrorRu+err.Error(), err.Error())
	}
	result.InputTokens += answerResult.InputTokens
	result.OutputTokens += answerResult.OutputTokens

	result.Answer = strings.TrimSpace(answerResult.Text)
	result.Success = true

	// Commit only on the answered path: refused and failed attempts must not
	// poison the context of future turns.
	s.conversations.AddExchange(userID, question, sqlQuery, result.Answer)
	return result
}

// buildSQLSystem assembles the fixed instruction block, enriched with any
// knowledge-store rules and alias hint matching this question.
func (s *QAService) buildSQLSystem(question string) string {
	var hints strings.Builder
	if rules := s.knowledge.FindRules(question); len(rules) > 0 {
		hints.WriteString("\n")
		hints.WriteString(knowledge.FormatRulesForPrompt(rules))
		hints.WriteString("\n")
	}
	if res := knowledge.ResolveNames(question, s.knowledge); res.AliasFound {
		hints.WriteString("\n")
		hints.WriteString(res.Hint)
		hints.WriteString("\n")
	}
	today := s.now().Format("2006-01-02")
	return fmt.Sprintf(sqlSystemTemplate, databaseSchema, sqlExamples, hints.String(), today)
}

// sqlTurns replays prior exchanges as question/SQL pairs so follow-ups like
// "а вчера?" can lean on the previous query.
func sqlTurns(history []conversation.Exchange, question string) []llm.Turn {
	turns := make([]llm.Turn, 0, 2*len(history)+1)
	for _, ex := range history {
		turns = append(turns,
			llm.Turn{Role: "user", Content: ex.Question},
			llm.Turn{Role: "model", Content: ex.SQL},
		)
	}
	return append(turns, llm.Turn{Role: "user", Content: question})
}

// answerTurns replays prior exchanges as question/answer pairs and closes
// with the new question plus the rendered query result.
func answerTurns(history []conversation.Exchange, question, renderedRows string) []llm.Turn {
	turns := make([]llm.Turn, 0, 2*len(history)+1)
	for _, ex := range history {
		turns = append(turns,
			llm.Turn{Role: "user", Content: ex.Question},
			llm.Turn{Role: "model", Content: ex.Answer},
		)
	}
	final := fmt.Sprintf("Вопрос: %s\n\nРезультат запроса:\n%s", question, renderedRows)
	return append(turns, llm.Turn{Role: "user", Content: final})
}

// renderRows serializes a bounded prefix of the result set for the answer
// prompt, keeping prompt size under control however wide the query ran.
func renderRows(rows []map[string]any) string {
	if len(rows) == 0 {
		return "Нет данных"
	}
	if len(rows) > maxResultRows {
		rows = rows[:maxResultRows]
	}
	rendered, err := json.Marshal(rows)
	if err != nil {
		return fmt.Sprintf("%v", rows)
	}
	return string(rendered)
}

// learnFromExchange feeds consecutive exchanges to the extractor and queues
// any proposal for admin review. Best-effort throughout.
func (s *QAService) learnFromExchange(userID int64, prev conversation.Exchange, question, generatedSQL string) {
	ctx, cancel := context.WithTimeout(context.Background(), learnTimeout)
	defer cancel()

	proposal := s.extractor.ExtractRule(ctx, prev.Question, prev.SQL, question, generatedSQL)
	if proposal == nil {
		return
	}

	rule := &store.Rule{
		RuleText:         proposal.RuleText,
		Keywords:         proposal.Keywords,
		Category:         proposal.Category,
		Status:           store.StatusPending,
		SourceQuestion:   prev.Question,
		SourceCorrection: question,
		CreatedBy:        userID,
	}
	if err := s.recorder.InsertRule(rule); err != nil {
		log.Printf("Failed to store extracted rule: %v", err)
		return
	}
	log.Printf("Extracted rule #%d pending review: %s", rule.ID, rule.RuleText)
}

func (s *QAService) logExchange(userID int64, username, question string, result *Result) {
	entry := &store.QALog{
		UserID:         userID,
		Username:       username,
		Question:       question,
		GeneratedSQL:   result.GeneratedSQL,
		Answer:         result.Answer,
		Success:        result.Success,
		ErrorMessage:   result.ErrorMessage,
		SQLExecutionMs: result.SQLExecutionMs,
		InputTokens:    result.InputTokens,
		OutputTokens:   result.OutputTokens,
	}
	if err := s.recorder.LogExchange(entry); err != nil {
		log.Printf("Failed to log Q&A exchange for user %d: %v", userID, err)
	}
}

func (s *QAService) lockFor(userID int64) *sync.Mutex {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	lock, ok := s.userLock[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLock[userID] = lock
	}
	return lock
}

func failed(result *Result, answer, errorMessage string) *Result {
	result.Answer = answer
	result.Success = false
	result.ErrorMessage = &errorMessage
	return result
}

func flatten(sqlQuery string) string {
	return strings.Join(strings.Fields(sqlQuery), " ")
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
