package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/ardada2468/ImageBreak/internal/config"
	"github.com/ardada2468/ImageBreak/internal/core"
	"github.com/ardada2468/ImageBreak/internal/provider"
	"github.com/ardada2468/ImageBreak/internal/storage"
)

func main() {
	var (
		prompt       = flag.String("prompt", "", "single boundary prompt to run through the regeneration loop")
		promptsFile  = flag.String("prompts-file", "", "file with one boundary prompt per line (batch mode)")
		policiesFile = flag.String("policies-file", "", "content policy file; prompts are generated from it when no prompt is given")
		numPrompts   = flag.Int("num-prompts", 5, "number of boundary prompts to generate from the policy file")
		topics       = flag.String("topics", "", "comma-separated topics to bias generated prompts")
		maxAttempts  = flag.Int("max-attempts", 0, "override configured retry budget")
		threshold    = flag.Float64("threshold", -1, "override configured quality threshold")
		single       = flag.Bool("single", false, "disable cyclic regeneration (one attempt per prompt)")
		mock         = flag.Bool("mock", false, "use the mock provider instead of a live API")
		verbose      = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(logger, *prompt, *promptsFile, *policiesFile, *topics, *numPrompts, *maxAttempts, *threshold, *single, *mock); err != nil {
		fmt.Fprintf(os.Stderr, "imagebreak: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, prompt, promptsFile, policiesFile, topics string, numPrompts, maxAttempts int, threshold float64, single, mock bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	regen := cfg.Regeneration
	if maxAttempts > 0 {
		regen.MaxAttempts = maxAttempts
	}
	if threshold >= 0 {
		regen.QualityThreshold = threshold
	}
	if single {
		regen.CyclicEnabled = false
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Limits.SessionTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !mock && cfg.AI.APIKey == "" {
		return fmt.Errorf("no API key configured; set OPENAI_API_KEY or pass -mock")
	}

	textGen, imageGen, analyzer, moderator := buildProviders(cfg, mock, logger)

	evaluator := core.NewEvaluator(analyzer, moderator, logger)
	mutator := core.NewMutator(textGen, logger)
	controller := core.NewController(imageGen, evaluator, mutator, logger)

	prompts, err := collectPrompts(ctx, prompt, promptsFile, policiesFile, topics, numPrompts, textGen, logger)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return fmt.Errorf("no prompts to run; pass -prompt, -prompts-file or -policies-file")
	}

	store := storage.NewFileSystem(cfg.Paths.OutputDir)
	reporter := core.NewReporter(store, logger)

	fetcher, _ := imageGen.(core.ImageFetcher)

	if len(prompts) == 1 {
		session, err := controller.Run(ctx, prompts[0], regen)
		if err != nil {
			return err
		}
		dir := storage.SessionDir(session.ID, session.OriginalPrompt)
		reportPath, err := reporter.WriteSession(ctx, dir, session)
		if err != nil {
			return err
		}
		if _, err := reporter.SaveAcceptedImage(ctx, dir, session, fetcher); err != nil {
			logger.Warn("archiving accepted image failed", "error", err)
		}
		fmt.Printf("session %s finished: %s (%d attempts)\nreport: %s\n",
			session.ID, session.Status, len(session.Attempts), reportPath)
		return nil
	}

	runner := core.NewBatchRunner(controller, cfg.Limits.MaxConcurrentSessions, logger)
	batch, err := runner.Run(ctx, prompts, regen)
	if err != nil {
		return err
	}

	dir := storage.BatchDir(batch.StartTime)
	reportPath, err := reporter.WriteBatch(ctx, dir, batch)
	if err != nil {
		return err
	}

	for _, session := range batch.Sessions {
		if session == nil {
			continue
		}
		imageDir := path.Join(dir, "images", session.ID)
		if _, err := reporter.SaveAcceptedImage(ctx, imageDir, session, fetcher); err != nil {
			logger.Warn("archiving accepted image failed", "session_id", session.ID, "error", err)
		}
	}

	fmt.Printf("batch finished: %d sessions, %d succeeded, %d exhausted, %d aborted\nreport: %s\n",
		batch.Stats.Total, batch.Stats.Succeeded, batch.Stats.Exhausted, batch.Stats.Aborted, reportPath)
	return nil
}

func buildProviders(cfg *config.Config, mock bool, logger *slog.Logger) (core.TextGenerator, core.ImageGenerator, core.ImageAnalyzer, core.Moderator) {
	if mock {
		m := provider.NewMockClient()
		return m, m, m, nil
	}

	client := provider.NewClient(cfg.AI.APIKey,
		provider.WithBaseURL(cfg.AI.BaseURL),
		provider.WithModels(cfg.AI.TextModel, cfg.AI.ImageModel),
		provider.WithTimeout(time.Duration(cfg.AI.Timeout)*time.Second),
		provider.WithRetry(cfg.Limits.MaxRetries),
		provider.WithRateLimit(cfg.Limits.RateLimit.RequestsPerMinute, cfg.Limits.RateLimit.BurstSize),
		provider.WithLogger(logger),
	)

	var moderator core.Moderator
	if cfg.AI.Moderation {
		moderator = client
	}
	return client, client, client, moderator
}

func collectPrompts(ctx context.Context, prompt, promptsFile, policiesFile, topics string, numPrompts int, textGen core.TextGenerator, logger *slog.Logger) ([]string, error) {
	if prompt != "" {
		return []string{prompt}, nil
	}

	if promptsFile != "" {
		data, err := os.ReadFile(promptsFile)
		if err != nil {
			return nil, fmt.Errorf("reading prompts file: %w", err)
		}
		var prompts []string
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				prompts = append(prompts, line)
			}
		}
		return prompts, nil
	}

	if policiesFile != "" {
		data, err := os.ReadFile(policiesFile)
		if err != nil {
			return nil, fmt.Errorf("reading policies file: %w", err)
		}
		var topicList []string
		for _, t := range strings.Split(topics, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topicList = append(topicList, t)
			}
		}
		forge := core.NewForge(textGen, logger)
		return forge.BoundaryPrompts(ctx, string(data), topicList, numPrompts)
	}

	return nil, nil
}
