package types

import "time"

// HTTPConfig holds shared HTTP settings used by adapters that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "research-editor/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// ProviderName identifies a language-model API.
type ProviderName string

const (
	ProviderAnthropic ProviderName = "anthropic"
	ProviderOpenAI    ProviderName = "openai"
)

// AIConfig holds settings for the model invoker.
type AIConfig struct {
	// Provider selects the API: anthropic or openai.
	Provider ProviderName `json:"provider" yaml:"provider" mapstructure:"provider"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// MaxTokens caps completion length (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
}

// FetchBackend selects how web pages are downloaded.
type FetchBackend string

const (
	FetchHTTP    FetchBackend = "http"
	FetchBrowser FetchBackend = "browser"
)

// RetrievalConfig holds settings for the web content retriever.
type RetrievalConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// MaxResults is the number of search hits fetched per topic (default 5).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// Fetch selects the page downloader: http or browser (headless Chrome).
	Fetch FetchBackend `json:"fetch" yaml:"fetch" mapstructure:"fetch"`

	// MaxDocumentChars truncates each document's text (default 20000).
	MaxDocumentChars int `json:"max_document_chars" yaml:"max_document_chars" mapstructure:"max_document_chars"`

	// Scholar adds arXiv and Semantic Scholar abstracts to web research.
	Scholar bool `json:"scholar" yaml:"scholar" mapstructure:"scholar"`
}

// CorpusConfig holds settings for the local document corpus.
type CorpusConfig struct {
	// Dir is the corpus base directory (contains docs/ and index/).
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// MaxResults is the default number of chunks returned per query (default 8).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// ConvertPDF ingests .pdf files through a markitdown container.
	ConvertPDF bool `json:"convert_pdf" yaml:"convert_pdf" mapstructure:"convert_pdf"`

	// ContainerRuntime forces "docker" or "podman"; empty detects one.
	ContainerRuntime string `json:"container_runtime" yaml:"container_runtime" mapstructure:"container_runtime"`

	// MarkitdownImage is the converter image (default markitdown:latest).
	MarkitdownImage string `json:"markitdown_image" yaml:"markitdown_image" mapstructure:"markitdown_image"`
}

// OutputFormat selects a publish format.
type OutputFormat string

const (
	OutputMarkdown OutputFormat = "markdown"
	OutputHTML     OutputFormat = "html"
	OutputYAML     OutputFormat = "yaml"
)

// OutputConfig holds settings for report publishing.
type OutputConfig struct {
	// Dir is the directory reports are written to (e.g. "outputs/").
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// Formats lists the default publish formats when the task names none.
	Formats []OutputFormat `json:"formats" yaml:"formats" mapstructure:"formats"`
}

// RunConfig holds orchestrator limits.
type RunConfig struct {
	// Timeout bounds a whole run; zero means no limit.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxParallel bounds concurrently running topic workflows; zero means one
	// worker per planned section.
	MaxParallel int `json:"max_parallel" yaml:"max_parallel" mapstructure:"max_parallel"`
}

// EditorConfig groups all adapter configurations for a run.
type EditorConfig struct {
	AI        AIConfig        `json:"ai" yaml:"ai" mapstructure:"ai"`
	Retrieval RetrievalConfig `json:"retrieval" yaml:"retrieval" mapstructure:"retrieval"`
	Corpus    CorpusConfig    `json:"corpus" yaml:"corpus" mapstructure:"corpus"`
	Output    OutputConfig    `json:"output" yaml:"output" mapstructure:"output"`
	Run       RunConfig       `json:"run" yaml:"run" mapstructure:"run"`
}
