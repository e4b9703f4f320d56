package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bias-audit/backend/internal/ai"
	"bias-audit/backend/internal/api"
	"bias-audit/backend/internal/scoring"
	"bias-audit/backend/internal/store"
	"bias-audit/backend/internal/util"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("load .env")
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:   "bias-audit",
		Short: "Scan decision notes for cognitive-bias signals",
		Long: `bias-audit scores free-text decision notes against a keyword catalogue
of cognitive biases and prints the findings with evidence and debiasing tips.

It can also dump the decision log recorded by the HTTP server.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logrus.SetOutput(cmd.ErrOrStderr())
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.WarnLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	root.AddCommand(newAnalyzeCmd(), newExportCmd())
	return root
}

type analyzeOptions struct {
	file        string
	rules       string
	sensitivity int
	analyzer    string
	asJSON      bool
}

func newAnalyzeCmd() *cobra.Command {
	opts := analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze [text]",
		Short: "Analyze decision text",
		Long: `Analyze decision text read from the arguments, --file, or stdin.

Examples:
  bias-audit analyze "せっかくここまで投資したのに"
  bias-audit analyze --file note.txt --sensitivity 80 --json
  echo "今だけお得" | bias-audit analyze`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Read text from file")
	cmd.Flags().StringVar(&opts.rules, "rules", os.Getenv("RULES_PATH"), "Rule file (JSON or YAML); built-in rules when empty")
	cmd.Flags().IntVarP(&opts.sensitivity, "sensitivity", "s", scoring.DefaultSensitivity, "Sensitivity 0-100")
	cmd.Flags().StringVar(&opts.analyzer, "analyzer", api.AnalyzerRules, "Analyzer backend: rules or ai")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string, opts analyzeOptions) error {
	text, err := readInput(cmd.InOrStdin(), args, opts.file)
	if err != nil {
		return err
	}

	engine := scoring.NewEngine(nil, nil, nil)
	if strings.TrimSpace(opts.rules) != "" {
		engine = scoring.NewEngine(scoring.LoadRules(opts.rules), nil, nil)
	}

	analyzer, _, err := api.BuildAnalyzer(opts.analyzer, ai.Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   os.Getenv("OPENAI_MODEL"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
	}, engine)
	if err != nil {
		return err
	}

	sensitivity := scoring.ClampSensitivity(opts.sensitivity)
	timer := util.StartTimer()
	report, err := analyzer.Analyze(cmd.Context(), text, sensitivity)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"backend":  report.Source,
		"findings": len(report.Findings),
		"elapsed":  timer.Elapsed(),
	}).Debug("analysis completed")

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(api.AnalyzeResponse{
			Findings:    report.Findings,
			Debug:       report.Debug,
			Summary:     report.Summary,
			Sensitivity: sensitivity,
			ElapsedMs:   timer.ElapsedMs(),
			Backend:     report.Source,
		})
	}
	printReport(out, report)
	return nil
}

func readInput(stdin io.Reader, args []string, file string) (string, error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case file != "":
		data, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
}

func printReport(w io.Writer, report scoring.Report) {
	if report.Summary != "" {
		fmt.Fprintf(w, "%s\n\n", report.Summary)
	}
	if len(report.Findings) == 0 {
		fmt.Fprintln(w, "No bias signals detected.")
		return
	}
	for _, f := range report.Findings {
		fmt.Fprintf(w, "%s [%s] score %.2f\n", f.Label, f.Confidence, f.Score)
		if f.Explanation != "" {
			fmt.Fprintf(w, "  %s\n", f.Explanation)
		}
		if evidence := f.EvidencePreview(store.EvidencePerFinding); len(evidence) > 0 {
			fmt.Fprintf(w, "  evidence: %s\n", strings.Join(evidence, ", "))
		}
		for _, tip := range f.Suggestions {
			fmt.Fprintf(w, "  - %s\n", tip)
		}
	}
	fmt.Fprintf(w, "\nthreshold %.2f\n", report.Debug.Threshold)
}

type exportOptions struct {
	backend string
	dbPath  string
	csvPath string
	format  string
	output  string
}

func newExportCmd() *cobra.Command {
	opts := exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump the decision log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.backend, "backend", envOr("DECISION_LOG_BACKEND", api.LogBackendSQLite), "Decision log backend: sqlite or csv")
	cmd.Flags().StringVar(&opts.dbPath, "db", envOr("DECISION_DB_PATH", filepath.FromSlash("data/decisions.db")), "Path to SQLite database")
	cmd.Flags().StringVar(&opts.csvPath, "csv", envOr("DECISION_CSV_PATH", filepath.FromSlash("data/decisions.csv")), "Path to CSV journal")
	cmd.Flags().StringVar(&opts.format, "format", "csv", "Output format: csv or json")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func runExport(ctx context.Context, stdout io.Writer, opts exportOptions) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	format := strings.ToLower(strings.TrimSpace(opts.format))
	if format != "csv" && format != "json" {
		return fmt.Errorf("unknown format %q", opts.format)
	}

	logPath := opts.dbPath
	if strings.EqualFold(strings.TrimSpace(opts.backend), api.LogBackendCSV) {
		logPath = opts.csvPath
	}
	if _, err := os.Stat(logPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no decision log at %s", logPath)
		}
		return fmt.Errorf("stat decision log: %w", err)
	}

	recorder, _, err := api.OpenRecorder(opts.backend, opts.dbPath, opts.csvPath, true)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := recorder.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("close decision log")
		}
	}()

	rows, total, err := recorder.List(ctx, store.DecisionQuery{})
	if err != nil {
		return fmt.Errorf("list decisions: %w", err)
	}
	dtos := make([]api.DecisionDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, api.FromModel(row))
	}

	out := stdout
	if opts.output != "" {
		f, err := os.Create(filepath.Clean(opts.output))
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() {
			err = errors.Join(err, f.Close())
		}()
		out = f
	}

	logrus.WithFields(logrus.Fields{"decisions": total, "format": format}).Info("exporting decision log")
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(dtos)
	}
	return api.WriteCSV(out, dtos)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
