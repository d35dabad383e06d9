// Package diagnostic asks a generative-text service for a natural-language
// health summary of the latest telemetry sample.
//
// One user action is one request: there is no retry and no streaming, and the
// returned text is handed back verbatim.
package diagnostic

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/helyotools/dbsentinel/internal/models"
)

// ErrNotConfigured is wrapped in a DiagnosticError when no generator is set.
var ErrNotConfigured = errors.New("diagnostic service is not configured")

// DiagnosticError wraps any failure of the generative-text call.
type DiagnosticError struct {
	Err error
}

func (e *DiagnosticError) Error() string { return "diagnostic request failed: " + e.Err.Error() }

func (e *DiagnosticError) Unwrap() error { return e.Err }

// Options fixes the prompt parameters.
type Options struct {
	Project  string
	Language string
	Model    string
}

// Diagnostician builds prompts and submits them to a Generator.
type Diagnostician struct {
	gen  Generator
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

// New returns a Diagnostician. gen may be nil, in which case every request
// fails with ErrNotConfigured.
func New(gen Generator, opts Options, log *zap.Logger) *Diagnostician {
	if opts.Language == "" {
		opts.Language = "English"
	}
	return &Diagnostician{gen: gen, opts: opts, log: log, now: time.Now}
}

// Prompt returns the prompt Diagnose would send for sample.
func (d *Diagnostician) Prompt(sample models.MetricSample) string {
	return BuildPrompt(d.opts.Project, d.opts.Language, sample)
}

// Diagnose sends one prompt for sample and returns the raw response text.
// Every failure is a *DiagnosticError.
func (d *Diagnostician) Diagnose(ctx context.Context, sample models.MetricSample) (*models.DiagnosticReport, error) {
	if d.gen == nil {
		return nil, &DiagnosticError{Err: ErrNotConfigured}
	}

	prompt := d.Prompt(sample)
	start := d.now()
	text, err := d.gen.Generate(ctx, prompt)
	if err != nil {
		d.log.Warn("diagnostic request failed", zap.String("model", d.opts.Model), zap.Error(err))
		return nil, &DiagnosticError{Err: err}
	}
	d.log.Info("diagnostic generated",
		zap.String("model", d.opts.Model),
		zap.Duration("took", d.now().Sub(start)),
		zap.Int("chars", len(text)))

	return &models.DiagnosticReport{
		Prompt:      prompt,
		Text:        text,
		Model:       d.opts.Model,
		GeneratedAt: d.now(),
	}, nil
}
