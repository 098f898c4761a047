// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/research-editor/internal/container"
	"github.com/pdiddy/research-editor/internal/corpus"
	"github.com/pdiddy/research-editor/pkg/types"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the local document corpus (ingest, search)",
	Long: `Corpus manages the SQLite full-text index used by local and hybrid
research. Documents are Markdown, text, or HTML files under <dir>/docs/.
PDFs are indexed too when --pdf (or corpus.convert_pdf) is set; they are
converted to Markdown by a markitdown container on docker or podman.`,
}

// --- ingest subcommand ---

var corpusIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index the documents under the corpus docs directory",
	Long: `Ingest splits each document into heading-delimited chunks and indexes
them with FTS5. Unchanged documents are skipped on subsequent runs.`,
	RunE: runCorpusIngest,
}

func runCorpusIngest(cmd *cobra.Command, args []string) error {
	store, cc, err := openCorpusFromFlags(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if pdf, _ := cmd.Flags().GetBool("pdf"); pdf || cc.ConvertPDF {
		rt, err := container.Detect(ctx, cc.ContainerRuntime)
		if err != nil {
			return fmt.Errorf("PDF conversion: %w", err)
		}
		conv, err := corpus.NewMarkitdown(ctx, rt, cc.MarkitdownImage)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Converting PDFs with %s\n", rt.Name())
		store.SetPDFConverter(conv)
	}

	summary, err := store.Ingest(ctx, os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d document(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- search subcommand ---

var corpusSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the corpus index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCorpusSearch,
}

func runCorpusSearch(cmd *cobra.Command, args []string) error {
	store, _, err := openCorpusFromFlags(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	chunks, err := store.Search(context.Background(), strings.Join(args, " "), limit)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(chunks)
	}

	if len(chunks) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-30s  %-24s  %s\n", "Rank", "Document", "Heading", "Content")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for i, c := range chunks {
		fmt.Fprintf(os.Stdout, "%-4d  %-30s  %-24s  %s\n",
			i+1, clip(c.Title, 30), clip(c.Heading, 24), clip(strings.Join(strings.Fields(c.Content), " "), 36))
	}
	fmt.Fprintf(os.Stdout, "\n%d results\n", len(chunks))
	return nil
}

// clip shortens s to n runes, marking the cut with "...".
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// --- shared helpers ---

func openCorpusFromFlags(cmd *cobra.Command) (*corpus.Store, types.CorpusConfig, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, types.CorpusConfig{}, err
	}
	cc := cfg.Corpus
	if dir, _ := cmd.Flags().GetString("corpus-dir"); dir != "" {
		cc.Dir = dir
	}
	store, err := corpus.Open(cc)
	return store, cc, err
}

func init() {
	corpusCmd.PersistentFlags().String("corpus-dir", "", "corpus base directory containing docs/ and index/ (default: config corpus.dir)")

	corpusIngestCmd.Flags().Bool("pdf", false, "convert and index PDFs through a markitdown container")

	corpusSearchCmd.Flags().Int("limit", 0, "maximum results (0 = config corpus.max_results)")
	corpusSearchCmd.Flags().Bool("json", false, "output results as JSON")

	corpusCmd.AddCommand(corpusIngestCmd)
	corpusCmd.AddCommand(corpusSearchCmd)

	rootCmd.AddCommand(corpusCmd)
}
