package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string

	// ClickHouse warehouse (read-only analytics data)
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string

	// SQLite path for rules, aliases and qa_logs
	DatabaseURL string

	HTTPPort  string
	JWTSecret string

	// Allow-list of user IDs permitted to ask questions. Empty set = everyone.
	AllowedUsers map[int64]bool
	// Admins may review rules/aliases and see usage stats.
	AdminUsers map[int64]bool

	// Conversation memory knobs
	ConversationTTLSeconds  int
	ConversationMaxMessages int

	// Daily report schedule
	ReportTime string // "HH:MM"
	Timezone   string
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey:            getEnv("GEMINI_API_KEY", ""),
		ClickHouseAddr:          getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDatabase:      getEnv("CLICKHOUSE_DATABASE", "default"),
		ClickHouseUser:          getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePassword:      getEnv("CLICKHOUSE_PASSWORD", ""),
		DatabaseURL:             getEnv("DATABASE_URL", "aiassistant.db"),
		HTTPPort:                getEnv("HTTP_PORT", "8080"),
		JWTSecret:               getEnv("JWT_SECRET", ""),
		AllowedUsers:            parseIDSet(getEnv("ALLOWED_USERS", "")),
		AdminUsers:              parseIDSet(getEnv("ADMIN_USERS", "")),
		ConversationTTLSeconds:  getEnvAsInt("CONVERSATION_TTL_SECONDS", 1800),
		ConversationMaxMessages: getEnvAsInt("CONVERSATION_MAX_EXCHANGES", 10),
		ReportTime:              getEnv("REPORT_TIME", "09:00"),
		Timezone:                getEnv("TIMEZONE", "Europe/Moscow"),
	}

	if AppConfig.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
}

// IsUserAllowed reports whether a user may talk to the assistant.
// An empty allow-list means the instance is open.
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	return c.AllowedUsers[userID]
}

// IsAdmin reports whether a user may review rules/aliases and read stats.
func (c *Config) IsAdmin(userID int64) bool {
	return c.AdminUsers[userID]
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// parseIDSet parses a comma-separated list of numeric Telegram-style user IDs.
func parseIDSet(raw string) map[int64]bool {
	ids := make(map[int64]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("Ignoring malformed user ID %q in config", part)
			continue
		}
		ids[id] = true
	}
	return ids
}
