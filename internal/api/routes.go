package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bias-audit/backend/internal/ai"
	"bias-audit/backend/internal/journal"
	"bias-audit/backend/internal/scoring"
	"bias-audit/backend/internal/store"
	"bias-audit/backend/internal/util"
	"bias-audit/backend/internal/wizard"
)

// Decision log and analyzer backends.
const (
	LogBackendSQLite = "sqlite"
	LogBackendCSV    = "csv"

	AnalyzerRules = "rules"
	AnalyzerAI    = "ai"
)

// Config defines server dependencies.
type Config struct {
	RulesPath          string
	DBPath             string
	LogBackend         string
	CSVPath            string
	AnalyzerBackend    string
	AIConfig           ai.Config
	// DefaultSensitivity applies when a request omits one; nil means 50.
	DefaultSensitivity *int
	AllowedOrigins     []string
	SilentDB           bool
}

// Server wires HTTP handlers with analysis and the decision log.
type Server struct {
	engine             *scoring.Engine
	analyzer           ai.Analyzer
	analyzerBackend    string
	recorder           store.Recorder
	logBackend         string
	catalog            *wizard.Catalog
	rulesPath          string
	defaultSensitivity int
	allowedOrigins     []string
	notifier           *DecisionNotifier
}

// NewServer constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	var engine *scoring.Engine
	if strings.TrimSpace(cfg.RulesPath) == "" {
		logrus.Info("no rule file configured; using built-in rules")
		engine = scoring.NewEngine(nil, nil, nil)
	} else {
		engine = scoring.NewEngineFromFile(cfg.RulesPath)
	}

	analyzer, backend, err := BuildAnalyzer(cfg.AnalyzerBackend, cfg.AIConfig, engine)
	if err != nil {
		return nil, err
	}

	recorder, logBackend, err := OpenRecorder(cfg.LogBackend, cfg.DBPath, cfg.CSVPath, cfg.SilentDB)
	if err != nil {
		return nil, err
	}

	sensitivity := scoring.DefaultSensitivity
	if cfg.DefaultSensitivity != nil {
		sensitivity = *cfg.DefaultSensitivity
	}

	return &Server{
		engine:             engine,
		analyzer:           analyzer,
		analyzerBackend:    backend,
		recorder:           recorder,
		logBackend:         logBackend,
		catalog:            wizard.Default(),
		rulesPath:          cfg.RulesPath,
		defaultSensitivity: scoring.ClampSensitivity(sensitivity),
		allowedOrigins:     cfg.AllowedOrigins,
		notifier:           NewDecisionNotifier(),
	}, nil
}

// BuildAnalyzer selects the analyzer for backend. The AI backend falls back to
// engine per call, and entirely when no API key is configured.
func BuildAnalyzer(backend string, aiCfg ai.Config, engine *scoring.Engine) (ai.Analyzer, string, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", AnalyzerRules:
		return engine, AnalyzerRules, nil
	case AnalyzerAI:
		client, err := ai.NewClient(aiCfg)
		if errors.Is(err, ai.ErrDisabled) {
			logrus.Warn("AI analyzer requested without OPENAI_API_KEY; using keyword rules")
			return engine, AnalyzerRules, nil
		}
		if err != nil {
			return nil, "", fmt.Errorf("ai client: %w", err)
		}
		logrus.WithField("models", client.Models()).Info("AI analyzer enabled with rule fallback")
		return ai.WithFallback(client, engine), AnalyzerAI, nil
	default:
		return nil, "", fmt.Errorf("unknown analyzer backend %q", backend)
	}
}

// OpenRecorder opens the decision log for the named backend.
func OpenRecorder(backend, dbPath, csvPath string, silent bool) (store.Recorder, string, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", LogBackendSQLite:
		if dbPath == "" {
			return nil, "", errors.New("db path required")
		}
		db, err := store.Open(dbPath, silent)
		if err != nil {
			return nil, "", err
		}
		return db, LogBackendSQLite, nil
	case LogBackendCSV:
		log, err := journal.OpenCSV(csvPath)
		if err != nil {
			return nil, "", err
		}
		return log, LogBackendCSV, nil
	default:
		return nil, "", fmt.Errorf("unknown decision log backend %q", backend)
	}
}

// Close releases the decision log.
func (s *Server) Close() error {
	if s == nil || s.recorder == nil {
		return nil
	}
	return s.recorder.Close()
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/api/healthz", s.handleHealth)
	r.GET("/api/config", s.handleConfig)

	api := r.Group("/api")
	{
		api.GET("/rules", s.handleRules)
		api.POST("/analyze", s.handleAnalyze)

		api.GET("/wizard/themes", s.handleThemes)
		api.GET("/wizard/situations", s.handleSituations)
		api.GET("/wizard/examples", s.handleExamples)
		api.POST("/wizard/preview", s.handlePreview)

		api.POST("/decisions", s.handleCreateDecision)
		api.GET("/decisions", s.handleListDecisions)
		api.GET("/decisions/stream", s.handleDecisionStream)
		api.GET("/export.csv", s.handleExportCSV)
		api.GET("/export.json", s.handleExportJSON)
	}

	return r, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"rules_path":          s.rulesPath,
		"rule_count":          s.engine.Rules().Len(),
		"analyzer_backend":    s.analyzerBackend,
		"analyzer_enabled":    s.analyzer.Enabled(),
		"log_backend":         s.logBackend,
		"default_sensitivity": s.defaultSensitivity,
		"stream_clients":      s.notifier.Clients(),
	})
}

func (s *Server) handleRules(c *gin.Context) {
	rules := s.engine.Rules().Rules()
	c.JSON(http.StatusOK, RulesResponse{Items: rules, Total: len(rules)})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	sensitivity := s.sensitivity(req.Sensitivity)

	timer := util.StartTimer()
	report, err := s.analyzer.Analyze(c.Request.Context(), req.Text, sensitivity)
	if err != nil {
		s.renderError(c, http.StatusBadGateway, err)
		return
	}
	elapsed := timer.ElapsedMs()

	logrus.WithFields(logrus.Fields{
		"backend":     report.Source,
		"findings":    len(report.Findings),
		"sensitivity": sensitivity,
		"elapsed_ms":  elapsed,
	}).Debug("analysis completed")

	c.JSON(http.StatusOK, AnalyzeResponse{
		Findings:    report.Findings,
		Debug:       report.Debug,
		Summary:     report.Summary,
		Sensitivity: sensitivity,
		ElapsedMs:   elapsed,
		Backend:     report.Source,
	})
}

func (s *Server) sensitivity(requested *int) int {
	if requested == nil {
		return s.defaultSensitivity
	}
	return scoring.ClampSensitivity(*requested)
}

func (s *Server) handleThemes(c *gin.Context) {
	c.JSON(http.StatusOK, ListResponse{Items: s.catalog.Themes()})
}

func (s *Server) handleSituations(c *gin.Context) {
	theme := strings.TrimSpace(c.Query("theme"))
	if theme == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("theme is required"))
		return
	}
	items, err := s.catalog.Situations(theme)
	if err != nil {
		s.renderError(c, wizardStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: items})
}

func (s *Server) handleExamples(c *gin.Context) {
	theme := strings.TrimSpace(c.Query("theme"))
	situation := strings.TrimSpace(c.Query("situation"))
	if theme == "" || situation == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("theme and situation are required"))
		return
	}
	items, err := s.catalog.Examples(theme, situation)
	if err != nil {
		s.renderError(c, wizardStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: items})
}

func (s *Server) handlePreview(c *gin.Context) {
	var sel wizard.Selection
	if err := c.ShouldBindJSON(&sel); err != nil {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.catalog.Validate(sel); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, PreviewResponse{Selection: sel, Preview: wizard.MakePreview(sel.Example)})
}

func wizardStatus(err error) int {
	if errors.Is(err, wizard.ErrUnknownTheme) || errors.Is(err, wizard.ErrUnknownSituation) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func parsePage(c *gin.Context) (offset, limit int) {
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	if pageSize <= 0 {
		pageSize = 25
	}
	if pageSize > 500 {
		pageSize = 500
	}
	return page * pageSize, pageSize
}
