package models

import "fmt"

// Variant selects the presentation style of a card.
type Variant string

const (
	VariantStandard Variant = "standard"
	VariantBento    Variant = "bento"
)

// ParseVariant maps a flag value to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case "", VariantStandard:
		return VariantStandard, nil
	case VariantBento:
		return VariantBento, nil
	}
	return "", fmt.Errorf("unknown render variant %q (want standard or bento)", s)
}

// CaptureRequest is one URL plus presentation options. Not modified after dispatch.
// InputURL is the URL as given, before cleanup.
type CaptureRequest struct {
	URL          string
	InputURL     string
	RenderThread bool
	Variant      Variant
}

// CaptureResult is the outcome of one pipeline execution.
type CaptureResult struct {
	Success          bool     `json:"success" yaml:"success"`
	SourceURL        string   `json:"source_url" yaml:"source_url"`
	Platform         Platform `json:"platform,omitempty" yaml:"platform,omitempty"`
	CardFileName     string   `json:"card_file_name,omitempty" yaml:"card_file_name,omitempty"`
	MediaFileNames   []string `json:"media_file_names,omitempty" yaml:"media_file_names,omitempty"`
	MetadataFileName string   `json:"metadata_file_name,omitempty" yaml:"metadata_file_name,omitempty"`
	AuthorLabel      string   `json:"author_label,omitempty" yaml:"author_label,omitempty"`
	ErrorType        string   `json:"error_type,omitempty" yaml:"error_type,omitempty"`
	ErrorMessage     string   `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// Totals summarizes a batch.
type Totals struct {
	URLs       int `json:"urls"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BatchOutput is what a run reports to its caller.
type BatchOutput struct {
	RunID           string          `json:"run_id,omitempty"`
	ElapsedSeconds  float64         `json:"elapsed_seconds"`
	OutputDirectory string          `json:"output_directory"`
	Totals          Totals          `json:"totals"`
	Results         []CaptureResult `json:"results"`
}
