// Package capture wires classification, extraction, rendering,
// rasterization and artifact writing into one per-URL pipeline and runs a
// batch of them in waves.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dtnitsch/post-capture/models"
	"github.com/dtnitsch/post-capture/pkg/artifact_manager"
	"github.com/dtnitsch/post-capture/pkg/browser"
	"github.com/dtnitsch/post-capture/pkg/detector"
	"github.com/dtnitsch/post-capture/pkg/extractors"
	"github.com/dtnitsch/post-capture/pkg/render"
)

// Error types reported in CaptureResult.ErrorType.
const (
	ErrorTypeClassificationMiss = "classification_miss"
	ErrorTypeExtraction         = "extraction_error"
	ErrorTypeRenderTimeout      = "render_timeout"
	ErrorTypeRender             = "render_error"
	ErrorTypeIO                 = "io_error"
	ErrorTypeEngineStart        = "engine_start_error"
)

// Extractor produces a Post for a classified URL.
type Extractor interface {
	Extract(ctx context.Context, rawURL string, platform models.Platform) (*models.Post, error)
}

// Rasterizer turns a rendered document into PNG bytes.
type Rasterizer interface {
	Capture(ctx context.Context, doc render.Document) ([]byte, error)
}

// ArtifactWriter persists a capture.
type ArtifactWriter interface {
	Write(ctx context.Context, post *models.Post, card []byte, extras artifact_manager.Extras) (artifact_manager.Artifacts, error)
}

// Recorder stores per-URL outcomes in the history ledger.
type Recorder interface {
	RecordCapture(runID string, position int, inputURL string, result models.CaptureResult) error
}

// Pipeline captures one URL end to end. Recorder is optional.
type Pipeline struct {
	Extractor  Extractor
	Rasterizer Rasterizer
	Writer     ArtifactWriter
	Recorder   Recorder
	RunID      string
	Logger     *slog.Logger
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p.Logger
}

// Execute runs the pipeline for req. Every failure becomes an unsuccessful
// result; only a browser that cannot start is also returned as fatal.
func (p *Pipeline) Execute(ctx context.Context, index int, req models.CaptureRequest) (models.CaptureResult, error) {
	start := time.Now()
	result, fatal := p.execute(ctx, req)

	logger := p.logger()
	if result.Success {
		logger.Info("Capture finished", "index", index, "url", req.URL, "platform", result.Platform, "duration_ms", time.Since(start).Milliseconds())
	} else {
		logger.Warn("Capture failed", "index", index, "url", req.URL, "platform", result.Platform, "error_type", result.ErrorType, "error", result.ErrorMessage)
	}

	if p.Recorder != nil {
		input := req.InputURL
		if input == "" {
			input = req.URL
		}
		if err := p.Recorder.RecordCapture(p.RunID, index, input, result); err != nil {
			logger.Warn("Failed to record capture in history", "url", req.URL, "error", err)
		}
	}
	return result, fatal
}

func (p *Pipeline) execute(ctx context.Context, req models.CaptureRequest) (models.CaptureResult, error) {
	result := models.CaptureResult{SourceURL: req.URL}
	fail := func(errorType string, err error) (models.CaptureResult, error) {
		result.ErrorType = errorType
		result.ErrorMessage = err.Error()
		if errors.Is(err, browser.ErrEngineStart) {
			result.ErrorType = ErrorTypeEngineStart
			return result, err
		}
		return result, nil
	}

	platform := detector.ResolvePlatform(req.URL, req.RenderThread)
	result.Platform = platform
	if !platform.Supported() {
		return fail(ErrorTypeClassificationMiss, fmt.Errorf("no capture strategy for %q", req.URL))
	}

	post, err := p.Extractor.Extract(ctx, req.URL, platform)
	if err != nil {
		return fail(extractionErrorType(err), err)
	}
	result.AuthorLabel = post.Author.Label()

	doc, err := render.Render(post, req.Variant)
	if err != nil {
		return fail(ErrorTypeRender, err)
	}

	card, err := p.Rasterizer.Capture(ctx, doc)
	if err != nil {
		if errors.Is(err, browser.ErrRenderTimeout) {
			return fail(ErrorTypeRenderTimeout, err)
		}
		return fail(ErrorTypeRender, err)
	}

	extras := artifact_manager.Extras{RunID: p.RunID, Variant: doc.Variant}
	if lang, ok := detector.DetectLanguage(post.Text()); ok {
		extras.Language = &lang
	}
	artifacts, err := p.Writer.Write(ctx, post, card, extras)
	if err != nil {
		return fail(ErrorTypeIO, err)
	}

	result.Success = true
	result.CardFileName = artifacts.CardFile
	result.MediaFileNames = artifacts.MediaFiles
	result.MetadataFileName = artifacts.MetadataFile
	return result, nil
}

// extractionErrorType tags an extraction failure with its kind, e.g.
// extraction_error:content_not_found.
func extractionErrorType(err error) string {
	var extErr *extractors.ExtractionError
	if errors.As(err, &extErr) {
		return ErrorTypeExtraction + ":" + extErr.KindName()
	}
	return ErrorTypeExtraction
}
