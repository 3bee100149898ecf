package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AlexanderModestov/aiassistant/internal/auth"
	"github.com/AlexanderModestov/aiassistant/internal/config"
	"github.com/AlexanderModestov/aiassistant/internal/core"
	"github.com/AlexanderModestov/aiassistant/internal/knowledge"
	"github.com/AlexanderModestov/aiassistant/internal/store"
	"github.com/AlexanderModestov/aiassistant/internal/warehouse"
)

// StatsStore is the slice of the durable store the stats endpoint needs.
type StatsStore interface {
	GetUsageStats(since time.Time) ([]store.UserUsage, error)
}

type APIHandler struct {
	qaService *core.QAService
	lifecycle *core.LifecycleManager
	reports   *core.ReportService
	stats     StatsStore
	warehouse warehouse.Querier
}

func NewAPIHandler(
	qa *core.QAService,
	lifecycle *core.LifecycleManager,
	reports *core.ReportService,
	stats StatsStore,
	wh warehouse.Querier,
) *APIHandler {
	return &APIHandler{
		qaService: qa,
		lifecycle: lifecycle,
		reports:   reports,
		stats:     stats,
		warehouse: wh,
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, username, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		if !config.AppConfig.IsUserAllowed(userID) {
			http.Error(w, "User is not on the allow-list", http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", userID)
		ctx = context.WithValue(ctx, "username", username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminOnlyMiddleware guards the review and stats endpoints. Runs after
// JWTAuthMiddleware, so the user identity is already in the context.
func (h *APIHandler) AdminOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value("userID").(int64)
		if !config.AppConfig.IsAdmin(userID) {
			http.Error(w, "Admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type AskRequest struct {
	Question string `json:"question"`
}

func (h *APIHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	username, _ := r.Context().Value("username").(string)

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "Question cannot be empty", http.StatusBadRequest)
		return
	}

	result := h.qaService.AnswerQuestion(r.Context(), userID, username, req.Question)
	json.NewEncoder(w).Encode(result)
}

func (h *APIHandler) ClearConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	h.qaService.ClearConversation(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ActivityReportHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.GenerateActivityReport(r.Context())
	if err != nil {
		log.Printf("Error generating activity report: %v", err)
		http.Error(w, "Failed to generate report", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"report": report})
}

func (h *APIHandler) DailyReportHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.GenerateDailyReport(r.Context())
	if err != nil {
		log.Printf("Error generating daily report: %v", err)
		http.Error(w, "Failed to generate report", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"report": report})
}

func (h *APIHandler) PerformanceReportHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.GeneratePerformanceReport(r.Context())
	if err != nil {
		log.Printf("Error generating performance report: %v", err)
		http.Error(w, "Failed to generate report", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"report": report})
}

func (h *APIHandler) PendingRulesHandler(w http.ResponseWriter, r *http.Request) {
	rules, err := h.lifecycle.PendingRules()
	if err != nil {
		log.Printf("Error listing pending rules: %v", err)
		http.Error(w, "Failed to list pending rules", http.StatusInternalServerError)
		return
	}
	if rules == nil {
		rules = []store.Rule{}
	}
	json.NewEncoder(w).Encode(rules)
}

func (h *APIHandler) ApproveRuleHandler(w http.ResponseWriter, r *http.Request) {
	adminID := r.Context().Value("userID").(int64)
	id, err := ruleID(r)
	if err != nil {
		http.Error(w, "Invalid rule ID", http.StatusBadRequest)
		return
	}

	if err := h.lifecycle.ApproveRule(id, adminID); err != nil {
		log.Printf("Error approving rule %d: %v", id, err)
		http.Error(w, "Failed to approve rule", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) RejectRuleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := ruleID(r)
	if err != nil {
		http.Error(w, "Invalid rule ID", http.StatusBadRequest)
		return
	}

	if err := h.lifecycle.RejectRule(id); err != nil {
		log.Printf("Error rejecting rule %d: %v", id, err)
		http.Error(w, "Failed to reject rule", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type EditRuleRequest struct {
	RuleText string `json:"rule_text"`
	Approve  bool   `json:"approve"`
}

// EditRuleHandler rewrites a pending rule's text. With "approve": true the
// edit and the approval land as one store transition.
func (h *APIHandler) EditRuleHandler(w http.ResponseWriter, r *http.Request) {
	adminID := r.Context().Value("userID").(int64)
	id, err := ruleID(r)
	if err != nil {
		http.Error(w, "Invalid rule ID", http.StatusBadRequest)
		return
	}

	var req EditRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.RuleText) == "" {
		http.Error(w, "Rule text cannot be empty", http.StatusBadRequest)
		return
	}

	if req.Approve {
		err = h.lifecycle.EditAndApproveRule(id, req.RuleText, adminID)
	} else {
		err = h.lifecycle.EditRuleText(id, req.RuleText)
	}
	if err != nil {
		log.Printf("Error editing rule %d: %v", id, err)
		http.Error(w, "Failed to edit rule", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type SubmitAliasRequest struct {
	Alias         string `json:"alias"`
	CanonicalName string `json:"canonical_name"`
	EntityType    string `json:"entity_type"`
}

func (h *APIHandler) SubmitAliasHandler(w http.ResponseWriter, r *http.Request) {
	adminID := r.Context().Value("userID").(int64)

	var req SubmitAliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Alias == "" || req.CanonicalName == "" {
		http.Error(w, "Alias and canonical name are required", http.StatusBadRequest)
		return
	}
	if req.EntityType == "" {
		req.EntityType = "school"
	}

	alias := &store.Alias{
		Alias:         strings.ToLower(req.Alias),
		CanonicalName: req.CanonicalName,
		EntityType:    req.EntityType,
		CreatedBy:     adminID,
	}
	if err := h.lifecycle.SubmitAlias(alias); err != nil {
		log.Printf("Error submitting alias %q: %v", req.Alias, err)
		http.Error(w, "Failed to submit alias", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(alias)
}

func (h *APIHandler) PendingAliasesHandler(w http.ResponseWriter, r *http.Request) {
	aliases, err := h.lifecycle.PendingAliases()
	if err != nil {
		log.Printf("Error listing pending aliases: %v", err)
		http.Error(w, "Failed to list pending aliases", http.StatusInternalServerError)
		return
	}
	if aliases == nil {
		aliases = []store.Alias{}
	}
	json.NewEncoder(w).Encode(aliases)
}

func (h *APIHandler) ApproveAliasHandler(w http.ResponseWriter, r *http.Request) {
	id, err := aliasID(r)
	if err != nil {
		http.Error(w, "Invalid alias ID", http.StatusBadRequest)
		return
	}

	if err := h.lifecycle.ApproveAlias(id); err != nil {
		log.Printf("Error approving alias %d: %v", id, err)
		http.Error(w, "Failed to approve alias", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) RejectAliasHandler(w http.ResponseWriter, r *http.Request) {
	id, err := aliasID(r)
	if err != nil {
		http.Error(w, "Invalid alias ID", http.StatusBadRequest)
		return
	}

	if err := h.lifecycle.RejectAlias(id); err != nil {
		log.Printf("Error rejecting alias %d: %v", id, err)
		http.Error(w, "Failed to reject alias", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SuggestNamesHandler does a fuzzy warehouse lookup so admins can pick the
// exact canonical name when creating an alias.
func (h *APIHandler) SuggestNamesHandler(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		http.Error(w, "Query parameter 'q' is required", http.StatusBadRequest)
		return
	}
	terms := strings.Fields(q)

	var names []string
	switch r.URL.Query().Get("type") {
	case "region":
		names = knowledge.FuzzySearchRegions(r.Context(), h.warehouse, terms, 5)
	default:
		names = knowledge.FuzzySearchSchools(r.Context(), h.warehouse, terms, 5)
	}
	if names == nil {
		names = []string{}
	}
	json.NewEncoder(w).Encode(map[string][]string{"names": names})
}

func (h *APIHandler) UsageStatsHandler(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		days, err := strconv.Atoi(daysStr)
		if err != nil || days < 0 {
			http.Error(w, "Invalid 'days' parameter", http.StatusBadRequest)
			return
		}
		since = time.Now().AddDate(0, 0, -days)
	}

	stats, err := h.stats.GetUsageStats(since)
	if err != nil {
		log.Printf("Error fetching usage stats: %v", err)
		http.Error(w, "Failed to fetch usage stats", http.StatusInternalServerError)
		return
	}
	if stats == nil {
		stats = []store.UserUsage{}
	}
	json.NewEncoder(w).Encode(stats)
}

func ruleID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "ruleID"), 10, 64)
}

func aliasID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "aliasID"), 10, 64)
}
