package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/AlexanderModestov/aiassistant/internal/llm"
)

const extractionPrompt = `Проанализируй диалог между пользователем и AI-аналитиком.
Определи, было ли второе сообщение пользователя уточнением или коррекцией первого запроса.

Первый вопрос: %s
Первый ответ (SQL): %s
Второй вопрос: %s
Второй ответ (SQL): %s

Если второе сообщение — уточнение или коррекция (пользователь исправляет ошибку бота, уточняет термин, указывает на неправильную фильтрацию и т.п.), сформулируй правило.

Верни JSON (без markdown):
{"is_correction": true, "rule_text": "Когда ..., нужно ...", "keywords": ["слово1", "слово2"], "category": "sql_pattern|domain_term|business_logic"}

Если второе сообщение — это новый, независимый вопрос, верни:
{"is_correction": false}`

const extractionMaxTokens = 300

// Proposal is a rule candidate extracted from a correction. It enters the
// review queue as pending; nothing is trusted until an admin approves it.
type Proposal struct {
	RuleText string
	Keywords []string
	Category string
}

// Extractor classifies pairs of consecutive exchanges and proposes rules.
type Extractor struct {
	gen llm.Generator
}

func NewExtractor(gen llm.Generator) *Extractor {
	return &Extractor{gen: gen}
}

// ExtractRule asks the backend whether the second exchange corrected the
// first. Returns nil when it did not — and also on any backend or parse
// failure: rule learning is best-effort and must never disturb the QA flow.
func (e *Extractor) ExtractRule(ctx context.Context, question1, sql1, question2, sql2 string) *Proposal {
	prompt := fmt.Sprintf(extractionPrompt, question1, sql1, question2, sql2)

	result, err := e.gen.Generate(ctx, llm.Request{
		Turns:           []llm.Turn{{Role: "user", Content: prompt}},
		MaxOutputTokens: extractionMaxTokens,
	})
	if err != nil {
		log.Printf("Rule extraction failed: %v", err)
		return nil
	}

	var parsed struct {
		IsCorrection bool     `json:"is_correction"`
		RuleText     string   `json:"rule_text"`
		Keywords     []string `json:"keywords"`
		Category     string   `json:"category"`
	}
	text := llm.StripCodeFence(result.Text)
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		log.Printf("Rule extraction returned unparseable JSON: %v", err)
		return nil
	}

	if !parsed.IsCorrection {
		return nil
	}
	if parsed.RuleText == "" || len(parsed.Keywords) == 0 {
		log.Printf("Rule extraction marked a correction but returned an incomplete rule, skipping")
		return nil
	}
	return &Proposal{
		RuleText: parsed.RuleText,
		Keywords: parsed.Keywords,
		Category: parsed.Category,
	}
}
