// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Document is one retrieved source: a web page, a local corpus chunk, or a
// search hit. Retrievers return unordered sets of documents.
type Document struct {
	// URL identifies the source. Local corpus chunks use a file:// URL.
	URL string `json:"url" yaml:"url"`

	// Title is the page or section title when known.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Text is the cleaned body text.
	Text string `json:"text" yaml:"text"`

	// ImageURL is an optional lead image.
	ImageURL string `json:"image_url,omitempty" yaml:"image_url,omitempty"`

	// Source names the retriever that found the document (e.g. "duckduckgo", "corpus").
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}
