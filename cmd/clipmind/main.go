package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clipmind/clipmind/ai"
	"github.com/clipmind/clipmind/chat"
	"github.com/clipmind/clipmind/ingest"
	"github.com/clipmind/clipmind/internal/profile"
	"github.com/clipmind/clipmind/internal/version"
	"github.com/clipmind/clipmind/search/expand"
	"github.com/clipmind/clipmind/search/fusion"
	"github.com/clipmind/clipmind/search/lexical"
	"github.com/clipmind/clipmind/search/vector"
	"github.com/clipmind/clipmind/server"
	"github.com/clipmind/clipmind/store"
)

const (
	lexicalSnapshotFile = "lexical.json"
	vectorSnapshotFile  = "vector.json"
)

var rootCmd = &cobra.Command{
	Use:   "clipmind",
	Short: "Ask questions about any video. ClipMind indexes transcripts and answers with cited time ranges.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		_ = godotenv.Load()
		return nil
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		p := &profile.Profile{
			Mode:          viper.GetString("mode"),
			Addr:          viper.GetString("addr"),
			Port:          viper.GetInt("port"),
			Data:          viper.GetString("data"),
			DSN:           viper.GetString("dsn"),
			VectorBackend: viper.GetString("vector-backend"),
			Version:       version.GetCurrentVersion(viper.GetString("mode")),
		}
		p.FromEnv()
		if err := p.Validate(); err != nil {
			return err
		}
		setupLogging(p)
		return run(p)
	},
}

func run(p *profile.Profile) error {
	ctx, stop := signal.NotifyContext(context.Background(), terminationSignals...)
	defer stop()

	aiCfg := ai.NewConfigFromProfile(p)
	if err := aiCfg.Validate(); err != nil {
		return err
	}
	embedder, err := ai.NewEmbeddingService(&aiCfg.Embedding)
	if err != nil {
		return err
	}
	llm, err := ai.NewGenerationService(&aiCfg.Generation)
	if err != nil {
		return err
	}

	lexicalIndex := lexical.NewIndex(lexical.DefaultConfig())
	restoreSnapshot(filepath.Join(p.Data, lexicalSnapshotFile), lexicalIndex.Restore)

	var (
		vectorIndex   vector.Index
		memoryBacked  *vector.MemoryIndex
		vectorCleanup func() error
	)
	switch p.VectorBackend {
	case "pgvector":
		pg, err := vector.NewPgIndex(ctx, p.PostgresDSN, vector.Config{MinSimilarity: p.MinSimilarity}, embedder)
		if err != nil {
			return err
		}
		vectorIndex = pg
		vectorCleanup = pg.Close
	default:
		memoryBacked = vector.NewMemoryIndex(vector.Config{MinSimilarity: p.MinSimilarity}, embedder)
		restoreSnapshot(filepath.Join(p.Data, vectorSnapshotFile), memoryBacked.Restore)
		vectorIndex = memoryBacked
	}

	expander := expand.NewExpander(expand.Config{
		Enabled:     p.ExpansionEnabled,
		MaxVariants: p.MaxQueryVariants,
	}, llm)
	retriever, err := fusion.NewRetriever(fusion.Config{
		Strategy:      fusion.Strategy(p.FusionStrategy),
		VectorWeight:  p.VectorWeight,
		LexicalWeight: p.LexicalWeight,
	}, lexicalIndex, vectorIndex, expander)
	if err != nil {
		return err
	}

	memory := chat.NewMemory(chat.MemoryConfig{
		MaxExchanges: p.MaxExchanges,
		MaxIdle:      time.Duration(p.MaxIdleMinutes) * time.Minute,
	})

	var archive *store.DB
	if p.DSN != "" {
		archive, err = store.NewDB(p.DSN)
		if err != nil {
			return err
		}
		defer archive.Close()
		if err := archive.Migrate(ctx); err != nil {
			return err
		}
	}

	var archiver chat.Archiver
	if archive != nil {
		archiver = archive
	}
	orchestrator, err := chat.NewOrchestrator(chat.DefaultOrchestratorConfig(), retriever, llm, memory, archiver)
	if err != nil {
		return err
	}

	deps := server.Deps{
		Answerer: orchestrator,
		Searcher: retriever,
		Memory:   memory,
		Lexical:  lexicalIndex,
		Vector:   vectorIndex,
		Ingest: ingest.Config{
			MergeChars:    p.MergeChars,
			MinConfidence: p.MinConfidence,
		},
	}
	if archive != nil {
		deps.Archive = archive
	}

	srv, err := server.New(p, deps)
	if err != nil {
		return err
	}

	go memory.StartSweeper(time.Minute, ctx.Done())
	printGreetings(p)

	err = srv.Start(ctx)

	persistSnapshot(filepath.Join(p.Data, lexicalSnapshotFile), lexicalIndex.Persist)
	if memoryBacked != nil {
		persistSnapshot(filepath.Join(p.Data, vectorSnapshotFile), memoryBacked.Persist)
	}
	if vectorCleanup != nil {
		if cerr := vectorCleanup(); cerr != nil {
			slog.Warn("Failed to close vector backend", "error", cerr)
		}
	}
	return err
}

func setupLogging(p *profile.Profile) {
	level := slog.LevelInfo
	if p.IsDev() {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func restoreSnapshot(path string, restore func(r io.Reader) error) {
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to open index snapshot", "path", path, "error", err)
		}
		return
	}
	defer f.Close()
	if err := restore(f); err != nil {
		slog.Warn("Failed to restore index snapshot", "path", path, "error", err)
		return
	}
	slog.Info("Index snapshot restored", "path", path)
}

func persistSnapshot(path string, persist func(w io.Writer) error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		slog.Warn("Failed to create index snapshot", "path", path, "error", err)
		return
	}
	if err := persist(f); err != nil {
		f.Close()
		os.Remove(tmp)
		slog.Warn("Failed to write index snapshot", "path", path, "error", err)
		return
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		slog.Warn("Failed to close index snapshot", "path", path, "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		slog.Warn("Failed to publish index snapshot", "path", path, "error", err)
	}
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("ClipMind %s started successfully!\n", p.Version)
	fmt.Printf("Data directory: %s\n", p.Data)
	fmt.Printf("Vector backend: %s\n", p.VectorBackend)
	fmt.Printf("Mode: %s\n", p.Mode)
	fmt.Printf("Listening on http://%s\n", p.ListenAddr())
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 28090)
	viper.SetDefault("vector-backend", "memory")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory for index snapshots")
	rootCmd.PersistentFlags().String("dsn", "", "sqlite DSN for the conversation archive")
	rootCmd.PersistentFlags().String("vector-backend", "memory", "vector index backend (memory, pgvector)")

	for _, flag := range []string{"mode", "addr", "port", "data", "dsn", "vector-backend"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("clipmind")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("clipmind exited with error", "error", err)
		os.Exit(1)
	}
}
