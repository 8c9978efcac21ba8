package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/szaher/contextd/internal/compaction"
	"github.com/szaher/contextd/internal/config"
	"github.com/szaher/contextd/internal/filelock"
	"github.com/szaher/contextd/internal/history"
	"github.com/szaher/contextd/internal/llm"
	"github.com/szaher/contextd/internal/namespace"
	"github.com/szaher/contextd/internal/store"
	"github.com/szaher/contextd/internal/summarizer"
	"github.com/szaher/contextd/internal/telemetry"
)

// app bundles the stores built from one loaded config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	resolver *namespace.Resolver
	logs     *store.LogStore
	archive  *store.ArchiveStore
	history  *history.Store
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		if err := cfg.Set(config.DataDir, dataDir); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := telemetry.NewLogger(cmd.ErrOrStderr(), telemetry.ParseLevel(logLevel), logFormat)
	return buildApp(cfg, logger), nil
}

func buildApp(cfg *config.Config, logger *slog.Logger) *app {
	opts := []store.Option{
		store.WithLockConfig(filelock.Config{Timeout: cfg.Lock(), RetryInterval: 5 * time.Millisecond}),
		store.WithDefaultSystemPrompt(cfg.DefaultSystemPrompt),
	}
	r := namespace.NewResolver(cfg.DataDir)
	return &app{
		cfg:      cfg,
		logger:   logger,
		resolver: r,
		logs:     store.NewLogStore(r, opts...),
		archive:  store.NewArchiveStore(r, opts...),
		history:  history.New(history.DefaultPath(cfg.DataDir)),
	}
}

// newSummarizer builds the configured summarizer backend.
func newSummarizer(cfg *config.Config) (summarizer.Summarizer, error) {
	switch cfg.Summarizer {
	case config.BackendAnthropic:
		return summarizer.NewLLM(llm.NewAnthropicClient(), cfg.SummarizerModel, cfg.SummarizerMaxTokens), nil
	case config.BackendCommand:
		return summarizer.NewCommand(cfg.SummarizerCommand), nil
	}
	return nil, fmt.Errorf("unknown summarizer %q", cfg.Summarizer)
}

// summarizerFactory is replaced in tests.
var summarizerFactory = newSummarizer

func (a *app) compactor(metrics *telemetry.Metrics) (*compaction.Compactor, error) {
	s, err := summarizerFactory(a.cfg)
	if err != nil {
		return nil, err
	}
	return compaction.NewCompactor(a.logs, a.archive, s,
		compaction.WithLogger(a.logger),
		compaction.WithConcurrency(a.cfg.CompactionConcurrency),
		compaction.WithMetrics(metrics),
	), nil
}

// recordReport stores a sweep in the history file. Failures are logged only.
func (a *app) recordReport(r *compaction.Report) {
	if err := a.history.RecordReport(r); err != nil {
		a.logger.Warn("recording compaction history", "error", err, "run_id", r.RunID)
	}
}

// keyFlags are the --tenant/--conversation pair shared by per-conversation
// commands.
type keyFlags struct {
	tenant       int64
	conversation int64
}

func (k *keyFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&k.tenant, "tenant", 0, "Tenant (guild) id")
	cmd.Flags().Int64Var(&k.conversation, "conversation", 0, "Conversation (channel) id")
}

func (k *keyFlags) require(cmd *cobra.Command) {
	k.register(cmd)
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("conversation")
}

func (k *keyFlags) key() namespace.Key {
	return namespace.Key{TenantID: k.tenant, ConversationID: k.conversation}
}
