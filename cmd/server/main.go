package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/AlexanderModestov/aiassistant/internal/api"
	"github.com/AlexanderModestov/aiassistant/internal/config"
	"github.com/AlexanderModestov/aiassistant/internal/conversation"
	"github.com/AlexanderModestov/aiassistant/internal/core"
	"github.com/AlexanderModestov/aiassistant/internal/knowledge"
	"github.com/AlexanderModestov/aiassistant/internal/llm"
	"github.com/AlexanderModestov/aiassistant/internal/store"
	"github.com/AlexanderModestov/aiassistant/internal/warehouse"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize database store (rules, aliases, exchange logs)
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Initialize analytics warehouse client
	warehouseClient, err := warehouse.NewClient(warehouse.Options{
		Addr:     config.AppConfig.ClickHouseAddr,
		Database: config.AppConfig.ClickHouseDatabase,
		Username: config.AppConfig.ClickHouseUser,
		Password: config.AppConfig.ClickHousePassword,
	})
	if err != nil {
		log.Fatalf("Failed to initialize warehouse client: %v", err)
	}
	defer warehouseClient.Close()

	// Initialize LLM client
	llmClient, err := llm.NewClient(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}
	defer llmClient.Close()

	// Conversation memory
	conversations := conversation.NewStore(
		time.Duration(config.AppConfig.ConversationTTLSeconds)*time.Second,
		config.AppConfig.ConversationMaxMessages,
	)

	// Knowledge base: load the approved rules and aliases up front so the
	// first question already benefits from them.
	knowledgeStore := knowledge.NewStore()
	lifecycle := core.NewLifecycleManager(dbStore, knowledgeStore)
	lifecycle.Reload()

	// Core services
	qaService := core.NewQAService(conversations, knowledgeStore, llmClient, warehouseClient, dbStore)
	reportService := core.NewReportService(llmClient, warehouseClient)

	// Daily growth report on a schedule. The report is logged; it is also
	// available on demand via the API.
	scheduler, err := startReportScheduler(reportService)
	if err != nil {
		log.Fatalf("Failed to start report scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(qaService, lifecycle, reportService, dbStore, warehouseClient)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // SQL generation plus warehouse execution can take a while
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}

// startReportScheduler schedules the daily growth report at the configured
// local time.
func startReportScheduler(reports *core.ReportService) (*cron.Cron, error) {
	loc, err := time.LoadLocation(config.AppConfig.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", config.AppConfig.Timezone, err)
	}

	spec, err := cronSpec(config.AppConfig.ReportTime)
	if err != nil {
		return nil, err
	}

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		report, err := reports.GenerateDailyReport(ctx)
		if err != nil {
			log.Printf("Daily report failed: %v", err)
			return
		}
		log.Printf("Daily report:\n%s", report)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule daily report: %w", err)
	}

	c.Start()
	log.Printf("Daily report scheduled at %s (%s)", config.AppConfig.ReportTime, config.AppConfig.Timezone)
	return c, nil
}

// cronSpec converts an "HH:MM" wall-clock time into a cron expression.
func cronSpec(reportTime string) (string, error) {
	parts := strings.Split(reportTime, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid report time %q, expected HH:MM", reportTime)
	}
	var hour, minute int
	if _, err := fmt.Sscanf(reportTime, "%d:%d", &hour, &minute); err != nil {
		return "", fmt.Errorf("invalid report time %q: %w", reportTime, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", fmt.Errorf("report time %q out of range", reportTime)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
