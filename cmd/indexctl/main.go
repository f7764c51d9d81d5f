// Command indexctl builds or verifies the book embedding cache without
// starting the HTTP server. `indexctl` embeds every corpus book and writes
// the vectors to the store; `indexctl -check` reports which books have a
// cached vector and flags dimension mismatches.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"bookrec/internal/config"
	"bookrec/internal/util"
	"bookrec/pkg/ai"
	"bookrec/pkg/corpus"
	"bookrec/pkg/index"
	"bookrec/pkg/store"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config file")
	check := flag.Bool("check", false, "verify cached embeddings instead of building")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.InitLogger(cfg.LogLevel)

	catalog, err := corpus.Load(cfg.CorpusPath)
	if err != nil {
		log.Fatalf("failed to load corpus: %v", err)
	}
	st, err := store.NewGormStore(cfg.DatabaseURL, store.WithEmbeddingDim(cfg.EmbeddingDim))
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	if *check {
		os.Exit(runCheck(catalog, st, cfg.EmbeddingDim))
	}
	runBuild(catalog, st, cfg)
}

func runBuild(catalog *corpus.Store, st store.Store, cfg config.FileConfig) {
	ctx := context.Background()

	cached, err := st.ListBookEmbeddings()
	if err != nil {
		log.Fatalf("failed to list cached embeddings: %v", err)
	}
	records := catalog.All()
	reused := 0
	for i := range records {
		if vec, ok := cached[records[i].ID]; ok {
			records[i].Embedding = vec
			reused++
		}
	}

	ollama := ai.NewOllamaClient(cfg.EmbeddingBaseURL)
	embedder := ai.NewOllamaEmbedder(ollama, cfg.EmbeddingModel, cfg.EmbeddingDim)

	idx := index.New(cfg.IndexWorkers)
	snap, err := idx.Rebuild(ctx, records, embedder)
	if err != nil {
		log.Fatalf("failed to build index: %v", err)
	}

	stored := 0
	for i := range records {
		if len(records[i].Embedding) > 0 {
			continue
		}
		vec, ok := snap.Vector(records[i].ID)
		if !ok {
			continue
		}
		records[i].Embedding = vec
		if err := st.SaveBookRef(records[i]); err != nil {
			log.Fatalf("failed to store embedding for %q: %v", records[i].Title, err)
		}
		stored++
	}
	fmt.Printf("indexed %d books (dim=%d): %d reused, %d embedded and stored\n",
		snap.Len(), snap.Dimension(), reused, stored)
}

func runCheck(catalog *corpus.Store, st store.Store, wantDim int) int {
	cached, err := st.ListBookEmbeddings()
	if err != nil {
		log.Fatalf("failed to list cached embeddings: %v", err)
	}

	missing, mismatched := 0, 0
	for _, record := range catalog.All() {
		vec, ok := cached[record.ID]
		if !ok {
			fmt.Printf("missing: %s\n", record.Title)
			missing++
			continue
		}
		if wantDim > 0 && len(vec) != wantDim {
			fmt.Printf("dimension mismatch: %s has %d, want %d\n", record.Title, len(vec), wantDim)
			mismatched++
		}
	}
	fmt.Printf("%d books checked: %d missing, %d mismatched\n", catalog.Len(), missing, mismatched)
	if missing > 0 || mismatched > 0 {
		return 1
	}
	return 0
}
