package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Post("/ask", apiHandler.AskHandler)
			r.Post("/conversation/clear", apiHandler.ClearConversationHandler)
			r.Get("/reports/activity", apiHandler.ActivityReportHandler)
			r.Get("/reports/daily", apiHandler.DailyReportHandler)
			r.Get("/reports/performance", apiHandler.PerformanceReportHandler)

			// Admin review and stats routes
			r.Group(func(r chi.Router) {
				r.Use(apiHandler.AdminOnlyMiddleware)

				r.Get("/admin/rules/pending", apiHandler.PendingRulesHandler)
				r.Post("/admin/rules/{ruleID}/approve", apiHandler.ApproveRuleHandler)
				r.Post("/admin/rules/{ruleID}/reject", apiHandler.RejectRuleHandler)
				r.Post("/admin/rules/{ruleID}/edit", apiHandler.EditRuleHandler)

				r.Post("/admin/aliases", apiHandler.SubmitAliasHandler)
				r.Get("/admin/aliases/pending", apiHandler.PendingAliasesHandler)
				r.Post("/admin/aliases/{aliasID}/approve", apiHandler.ApproveAliasHandler)
				r.Post("/admin/aliases/{aliasID}/reject", apiHandler.RejectAliasHandler)
				r.Get("/admin/aliases/suggest", apiHandler.SuggestNamesHandler)

				r.Get("/admin/stats", apiHandler.UsageStatsHandler)
			})
		})
	})

	return r
}
