package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"bias-audit/backend/internal/ai"
	"bias-audit/backend/internal/api"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("load .env")
	}

	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			logrus.Fatalf("parse LOG_LEVEL: %v", err)
		}
		logrus.SetLevel(parsed)
	}

	baseDir, err := os.Getwd()
	if err != nil {
		logrus.Fatalf("determine working directory: %v", err)
	}

	dataDir := filepath.Join(baseDir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logrus.Fatalf("create data directory: %v", err)
	}

	aiCfg := ai.Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   os.Getenv("OPENAI_MODEL"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
	}
	if temp := os.Getenv("OPENAI_TEMPERATURE"); temp != "" {
		if v, err := strconv.ParseFloat(temp, 64); err == nil {
			aiCfg.Temperature = v
		}
	}
	if maxTokens := os.Getenv("OPENAI_MAX_TOKENS"); maxTokens != "" {
		if v, err := strconv.Atoi(maxTokens); err == nil {
			aiCfg.MaxTokens = v
		}
	}

	cfg := api.Config{
		RulesPath:       filepath.Join(baseDir, "internal", "scoring", "bias_rules.json"),
		DBPath:          filepath.Join(dataDir, "decisions.db"),
		LogBackend:      strings.TrimSpace(os.Getenv("DECISION_LOG_BACKEND")),
		CSVPath:         filepath.Join(dataDir, "decisions.csv"),
		AnalyzerBackend: strings.TrimSpace(os.Getenv("ANALYZER_BACKEND")),
		AIConfig:        aiCfg,
		AllowedOrigins: []string{
			"http://localhost:1000",
			"http://127.0.0.1:1000",
		},
		SilentDB: true,
	}

	if override := strings.TrimSpace(os.Getenv("RULES_PATH")); override != "" {
		cfg.RulesPath = override
	}
	if override := strings.TrimSpace(os.Getenv("DECISION_DB_PATH")); override != "" {
		cfg.DBPath = override
	}
	if override := strings.TrimSpace(os.Getenv("DECISION_CSV_PATH")); override != "" {
		cfg.CSVPath = override
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_SENSITIVITY")); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			cfg.DefaultSensitivity = &val
		} else {
			logrus.WithError(err).Warn("ignore DEFAULT_SENSITIVITY")
		}
	}
	if origins := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); origins != "" {
		cfg.AllowedOrigins = nil
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" && origin != "*" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	server, err := api.NewServer(cfg)
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}
	defer server.Close()

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "2000"
	}

	logrus.Infof("starting bias-audit backend on :%s", port)
	if err := router.Run(":" + port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}
