// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-editor/internal/corpus"
	"github.com/pdiddy/research-editor/internal/httputil"
	"github.com/pdiddy/research-editor/internal/llm"
	"github.com/pdiddy/research-editor/internal/progress"
	"github.com/pdiddy/research-editor/internal/retrieve"
	"github.com/pdiddy/research-editor/internal/secrets"
	"github.com/pdiddy/research-editor/internal/task"
	"github.com/pdiddy/research-editor/pkg/types"
)

// modelTimeout bounds one model HTTP call.
const modelTimeout = 5 * time.Minute

// pipeline holds the adapters shared by one run.
type pipeline struct {
	invoker   *llm.Metered
	retriever retrieve.Retriever
	reporter  progress.Reporter

	closers []func()
}

// close releases adapters in reverse order of creation.
func (p *pipeline) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

// newPipeline builds the model invoker, the retriever for spec.Source, and
// the progress reporters. Events go to the console on stderr and, when
// eventsPath is set, as JSON lines to that file.
func newPipeline(cfg types.EditorConfig, spec types.TaskSpec, eventsPath string) (*pipeline, error) {
	p := &pipeline{}
	ok := false
	defer func() {
		if !ok {
			p.close()
		}
	}()

	if spec.SmartModel == "" {
		return nil, fmt.Errorf("no model configured: set smart_model or fast_model in the task")
	}
	if cfg.AI.APIKey == "" {
		return nil, fmt.Errorf("no API key for provider %s: provide %s", cfg.AI.Provider, secretsHint(cfg.AI.Provider))
	}
	client := httputil.NewClient(types.HTTPConfig{Timeout: modelTimeout, UserAgent: cfg.Retrieval.UserAgent})
	backend, err := llm.NewBackend(cfg.AI, client, spec.SmartModel)
	if err != nil {
		return nil, err
	}
	p.invoker = &llm.Metered{Next: llm.NewTiered(backend, spec)}

	reporters := progress.Multi{progress.NewConsole(os.Stderr)}
	if eventsPath != "" {
		f, err := os.Create(eventsPath)
		if err != nil {
			return nil, fmt.Errorf("creating events file: %w", err)
		}
		p.closers = append(p.closers, func() { f.Close() })
		reporters = append(reporters, progress.NewJSONLines(f))
	}
	async := progress.NewAsync(reporters, 0)
	p.closers = append(p.closers, async.Close)
	p.reporter = async

	r, err := p.newRetriever(cfg, spec.Source, os.Stderr)
	if err != nil {
		return nil, err
	}
	p.retriever = r

	ok = true
	return p, nil
}

// newRetriever returns the corpus for local research, and otherwise the web
// retriever, joined with the scholar indexes when retrieval.scholar is set and
// with the corpus for hybrid research.
func (p *pipeline) newRetriever(cfg types.EditorConfig, source types.ReportSource, warn io.Writer) (retrieve.Retriever, error) {
	if source == types.SourceLocal {
		return p.openCorpus(cfg)
	}

	web, err := p.newWeb(cfg, warn)
	if err != nil {
		return nil, err
	}
	backends := []retrieve.Retriever{web}
	if cfg.Retrieval.Scholar {
		backends = append(backends, &retrieve.Scholar{
			Client:      httputil.NewClient(cfg.Retrieval.HTTPConfig),
			UserAgent:   cfg.Retrieval.UserAgent,
			SemanticKey: loadedSecrets.Lookup(secrets.SemanticScholarFile, secrets.SemanticScholarEnv),
			MaxResults:  cfg.Retrieval.MaxResults,
			W:           warn,
		})
	}
	if source == types.SourceHybrid {
		store, err := p.openCorpus(cfg)
		if err != nil {
			return nil, err
		}
		backends = append(backends, store)
	}
	if len(backends) == 1 {
		return web, nil
	}
	return &retrieve.Multi{Backends: backends, W: warn}, nil
}

func (p *pipeline) newWeb(cfg types.EditorConfig, warn io.Writer) (*retrieve.Web, error) {
	rc := cfg.Retrieval
	searcher, err := retrieve.NewDuckDuckGo(rc.MaxResults, rc.UserAgent)
	if err != nil {
		return nil, err
	}

	var fetcher retrieve.Fetcher
	switch rc.Fetch {
	case types.FetchBrowser:
		b := &retrieve.BrowserFetcher{Timeout: rc.Timeout}
		p.closers = append(p.closers, b.Close)
		fetcher = b
	case types.FetchHTTP, "":
		fetcher = &retrieve.HTTPFetcher{Client: httputil.NewClient(rc.HTTPConfig), UserAgent: rc.UserAgent}
	default:
		return nil, fmt.Errorf("unknown fetch backend %q: use http or browser", rc.Fetch)
	}

	return &retrieve.Web{
		Searcher:   searcher,
		Fetcher:    fetcher,
		MaxResults: rc.MaxResults,
		MaxChars:   rc.MaxDocumentChars,
		W:          warn,
	}, nil
}

func (p *pipeline) openCorpus(cfg types.EditorConfig) (*corpus.Store, error) {
	store, err := corpus.Open(cfg.Corpus)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, func() { store.Close() })
	return store, nil
}

func secretsHint(provider types.ProviderName) string {
	if provider == "" {
		provider = types.ProviderAnthropic
	}
	return "ai.api_key or " + secrets.Source(provider)
}

// --- task flags shared by run and plan ---

func addTaskFlags(cmd *cobra.Command) {
	cmd.Flags().String("task", "", "task descriptor (YAML or JSON)")
	cmd.Flags().String("query", "", "research question (overrides the task query)")
	cmd.Flags().String("tone", "", "writing tone (overrides the task tone)")
	cmd.Flags().Int("max-sections", 0, "maximum planned sections (0 = task value)")
	cmd.Flags().Int("max-revisions", 0, "maximum revisions per section (default: task value, or 3)")
	cmd.Flags().String("feedback", "", "human feedback that constrains planning")
	cmd.Flags().String("model", "", "model for both tiers when the task names none")
	cmd.Flags().String("events-file", "", "also write progress events as JSON lines to this file")
}

// taskFromFlags loads --task when given, otherwise starts from --query, and
// applies the remaining flags as overrides.
func taskFromFlags(cmd *cobra.Command) (types.TaskSpec, error) {
	path, _ := cmd.Flags().GetString("task")
	query, _ := cmd.Flags().GetString("query")
	model, _ := cmd.Flags().GetString("model")

	var spec types.TaskSpec
	if path != "" {
		var err error
		if spec, err = task.Load(path); err != nil {
			return spec, err
		}
	} else {
		if query == "" {
			return spec, fmt.Errorf("a task file (--task) or a query (--query) is required")
		}
		spec = types.TaskSpec{Query: query, MaxRevisions: types.DefaultMaxRevisions}
	}
	if spec.SmartModel == "" && spec.FastModel == "" {
		spec.SmartModel = model
	}

	var o task.Override
	o.Query = query
	o.Tone, _ = cmd.Flags().GetString("tone")
	o.MaxSections, _ = cmd.Flags().GetInt("max-sections")
	if cmd.Flags().Changed("max-revisions") {
		n, _ := cmd.Flags().GetInt("max-revisions")
		o.MaxRevisions = &n
	}
	o.HumanFeedback, _ = cmd.Flags().GetString("feedback")
	return o.Apply(spec)
}
