package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/stemsi/learntrack-backend/internal/config"
	"github.com/stemsi/learntrack-backend/internal/logger"
	"github.com/stemsi/learntrack-backend/internal/model"
	"github.com/stemsi/learntrack-backend/internal/proctoring"
)

// storedResult accepts either a bare snapshot or a previously recorded
// result whose metrics are re-scored.
type storedResult struct {
	AssessmentID   string                   `json:"assessmentId"`
	IntegrityScore *float64                 `json:"integrityScore"`
	Severity       model.Severity           `json:"severity"`
	Flags          []string                 `json:"flags"`
	Metrics        *model.TelemetrySnapshot `json:"metrics"`
}

func main() {
	var rulesPath, assessmentID string
	flag.StringVar(&rulesPath, "rules", "", "Rule table JSON (default: PROCTORING_RULES_PATH or built-in)")
	flag.StringVar(&assessmentID, "assessment", "", "Assessment id to stamp on the result")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if flag.NArg() != 1 {
		fmt.Println("Usage: rescore [flags] <snapshot.json>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if rulesPath == "" {
		rulesPath = cfg.ProctoringRulesPath
	}

	rules, err := proctoring.LoadRules(rulesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load rules")
	}
	if cfg.SeverityHighBound > 0 {
		rules.HighBound = cfg.SeverityHighBound
	}
	if cfg.SeverityMediumBound > 0 {
		rules.MediumBound = cfg.SeverityMediumBound
	}
	engine, err := proctoring.NewEngine(rules)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid rules")
	}

	raw, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read snapshot file")
	}

	var prev storedResult
	if err := json.Unmarshal(raw, &prev); err != nil {
		log.Fatal().Err(err).Msg("Failed to parse snapshot file")
	}
	snap := prev.Metrics
	if snap == nil {
		snap = new(model.TelemetrySnapshot)
		if err := json.Unmarshal(raw, snap); err != nil {
			log.Fatal().Err(err).Msg("Failed to parse snapshot file")
		}
	}
	if assessmentID == "" {
		assessmentID = prev.AssessmentID
	}

	res := engine.Score(assessmentID, *snap)

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	if err := out.Encode(res); err != nil {
		log.Fatal().Err(err).Msg("Failed to write result")
	}

	if prev.IntegrityScore != nil {
		fmt.Fprintf(os.Stderr, "previous: score=%.2f severity=%s flags=%v\n", *prev.IntegrityScore, prev.Severity, prev.Flags)
		fmt.Fprintf(os.Stderr, "current:  score=%.2f severity=%s flags=%v\n", res.IntegrityScore, res.Severity, res.Flags)
	}
}
