// Package reconcile writes reviewer corrections back into the per-page
// artifacts of an execution.
//
// Each correction is applied to the artifact of the page its field was declared
// on. When that page is unknown, or has no artifact, every artifact is tried in
// enumeration order and the correction lands in the first one that holds the
// field. That fallback cannot tell apart two pages declaring the same field
// name, so each use of it is logged.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgallion1/docreview/internal/fieldpath"
	"github.com/dgallion1/docreview/internal/fieldtree"
	"github.com/dgallion1/docreview/internal/pageindex"
	"github.com/dgallion1/docreview/internal/review"
	"github.com/dgallion1/docreview/internal/storage"
)

// Status is what happened to one correction.
type Status string

const (
	StatusUpdated    Status = "updated"
	StatusUnresolved Status = "unresolved"
	StatusMalformed  Status = "malformed"
)

// Outcome reports one correction.
type Outcome struct {
	Field    string `json:"field"`
	Status   Status `json:"status"`
	Artifact string `json:"artifact,omitempty"`
	// Page is the declared page, zero when the field was not in the inventory.
	Page     int    `json:"page,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result summarizes a run. Unresolved lists every correction that was not
// applied, including those whose artifact could not be parsed.
type Result struct {
	ExecutionID      string    `json:"execution_id"`
	FieldsConsidered int       `json:"fields_considered"`
	Modified         []string  `json:"modified"`
	Unresolved       []string  `json:"unresolved"`
	Outcomes         []Outcome `json:"outcomes"`
}

func (r *Result) record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.Status != StatusUpdated {
		r.Unresolved = append(r.Unresolved, o.Field)
		return
	}
	for _, key := range r.Modified {
		if key == o.Artifact {
			return
		}
	}
	r.Modified = append(r.Modified, o.Artifact)
}

// Engine applies review batches against one store.
type Engine struct {
	store storage.Store
	log   *slog.Logger
}

func NewEngine(s storage.Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: s, log: log}
}

// Apply runs every correction of batch in order, loading, changing and saving
// one artifact at a time. A storage failure stops the run: the partial result
// is returned with the error, and corrections already saved stay saved.
func (e *Engine) Apply(ctx context.Context, batch review.Batch, pages pageindex.PageIndex, arts *pageindex.ArtifactIndex) (*Result, error) {
	res := &Result{
		ExecutionID: batch.ExecutionID,
		Modified:    []string{},
		Unresolved:  []string{},
	}
	if err := batch.Validate(); err != nil {
		return res, err
	}
	log := e.log.With("execution_id", batch.ExecutionID)

	for _, c := range batch.Corrections {
		res.FieldsConsidered++
		o, err := e.applyOne(ctx, log, c, pages, arts)
		if err != nil {
			log.Error("storage failure, stopping run", "field", c.Field, "error", err)
			return res, fmt.Errorf("reconcile %s: %w", c.Field, err)
		}
		if o.Status != StatusUpdated {
			log.Warn("correction not applied", "field", c.Field, "status", o.Status)
		}
		res.record(o)
	}

	log.Info("reconciliation finished",
		"fields_considered", res.FieldsConsidered,
		"artifacts_modified", len(res.Modified),
		"unresolved", len(res.Unresolved))
	return res, nil
}

func (e *Engine) applyOne(ctx context.Context, log *slog.Logger, c review.Correction, pages pageindex.PageIndex, arts *pageindex.ArtifactIndex) (Outcome, error) {
	if c.Field == "" {
		return Outcome{Status: StatusMalformed, Error: fieldtree.ErrMalformed.Error() + ": empty field name"}, nil
	}
	page, known := pages.Lookup(c.Field)
	if known {
		if key, ok := arts.Lookup(page); ok {
			o, err := e.applyAt(ctx, key, c)
			o.Page = page
			return o, err
		}
		log.Warn("no artifact for declared page, trying all artifacts", "field", c.Field, "page", page)
	} else {
		log.Warn("page unknown for field, trying all artifacts", "field", c.Field)
	}

	o, err := e.broadcast(ctx, log, c, arts.Keys())
	if known {
		o.Page = page
	}
	return o, err
}

// applyAt applies c to the artifact at key.
func (e *Engine) applyAt(ctx context.Context, key string, c review.Correction) (Outcome, error) {
	o := Outcome{Field: c.Field, Artifact: key}
	art, err := e.load(ctx, key)
	if err != nil {
		if errors.Is(err, fieldtree.ErrMalformed) {
			o.Status = StatusMalformed
			o.Error = err.Error()
			return o, nil
		}
		return o, err
	}
	updated, err := ApplyCorrection(art, c.Field, c.Value)
	if err != nil {
		o.Status = StatusMalformed
		o.Error = err.Error()
		return o, nil
	}
	if !updated {
		o.Status = StatusUnresolved
		return o, nil
	}
	if err := e.save(ctx, key, art); err != nil {
		return o, err
	}
	o.Status = StatusUpdated
	return o, nil
}

// broadcast tries every artifact in enumeration order and stops at the first
// one that holds the field.
func (e *Engine) broadcast(ctx context.Context, log *slog.Logger, c review.Correction, keys []string) (Outcome, error) {
	for _, key := range keys {
		art, err := e.load(ctx, key)
		if err != nil {
			if errors.Is(err, fieldtree.ErrMalformed) {
				log.Warn("skipping malformed artifact", "artifact", key, "error", err)
				continue
			}
			return Outcome{Field: c.Field}, err
		}
		updated, err := ApplyCorrection(art, c.Field, c.Value)
		if err != nil {
			log.Warn("could not apply correction", "artifact", key, "field", c.Field, "error", err)
			continue
		}
		if !updated {
			continue
		}
		if err := e.save(ctx, key, art); err != nil {
			return Outcome{Field: c.Field, Artifact: key}, err
		}
		log.Warn("applied correction by fallback", "field", c.Field, "artifact", key)
		return Outcome{Field: c.Field, Status: StatusUpdated, Artifact: key, Fallback: true}, nil
	}
	return Outcome{Field: c.Field, Status: StatusUnresolved, Fallback: true}, nil
}

func (e *Engine) load(ctx context.Context, key string) (*fieldtree.Artifact, error) {
	data, err := e.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	return fieldtree.ParseArtifact(data)
}

func (e *Engine) save(ctx context.Context, key string, art *fieldtree.Artifact) error {
	data, err := art.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return e.store.Save(ctx, key, data)
}

// ApplyCorrection sets value as the reviewed value of the field named by path
// in art's field tree, and overwrites the same key in the inference result when
// it has one. It reports whether the field tree changed.
func ApplyCorrection(art *fieldtree.Artifact, path string, value any) (bool, error) {
	updated := false
	if f, ok := fieldpath.Resolve(art.Tree, path); ok {
		if err := f.SetReviewed(value); err != nil {
			return false, fmt.Errorf("set %s: %w", path, err)
		}
		updated = true
	}
	if _, err := art.MirrorInference(path, value); err != nil {
		return updated, fmt.Errorf("mirror %s: %w", path, err)
	}
	return updated, nil
}
