package sweep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/camera-recon/internal/model"
)

// History persists sweep progress. store.Store satisfies it.
type History interface {
	CreateSweep(ctx context.Context, sw *model.Sweep) error
	UpdateSweepStatus(ctx context.Context, id string, status model.SweepStatus) error
	CompleteSweep(ctx context.Context, id string, status model.SweepStatus, summary *model.SweepSummary) error
}

// Request is one already-parsed sweep command. ID is optional; a new id is
// generated when it is empty.
type Request struct {
	ID         string
	PostalCode string
	Mode       model.ScanMode
}

// Report is the result of a sweep that resolved its postal code.
type Report struct {
	SweepID    string
	PostalCode string
	Mode       model.ScanMode
	Center     model.Coordinates
	Queries    []model.QuerySpec
	Records    []model.DeviceRecord
	Failures   []model.SearchFailure
	Payloads   []model.DisplayPayload
	Map        *model.MapArtifact
	Outcome    model.SweepOutcome
	StartedAt  time.Time
	FinishedAt time.Time
}

// NotFoundMessage is shown to the operator when a postal code cannot be resolved.
const NotFoundMessage = "Could not find that ZIP code."

// Summary returns the operator-facing status line.
func (r *Report) Summary() string {
	switch r.Outcome {
	case model.OutcomeEmpty:
		return "No cameras found in that area."
	case model.OutcomeFailed:
		return fmt.Sprintf("No cameras found: %d of %d queries failed.", len(r.Failures), len(r.Queries))
	case model.OutcomePartial:
		return fmt.Sprintf("Found %d cameras near %s (%d of %d queries failed).",
			len(r.Records), r.PostalCode, len(r.Failures), len(r.Queries))
	case model.OutcomeNotFound:
		return NotFoundMessage
	default:
		return fmt.Sprintf("Found %d cameras near %s.", len(r.Records), r.PostalCode)
	}
}

// FailureLines returns one operator message per failed query.
func (r *Report) FailureLines() []string {
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, "Error running query: "+f.Query.Query+"\n"+f.Err)
	}
	return out
}

// SweepSummary converts the report into its persisted form.
func (r *Report) SweepSummary() *model.SweepSummary {
	center := r.Center
	s := &model.SweepSummary{
		Outcome:    r.Outcome,
		Center:     &center,
		Queries:    len(r.Queries),
		Devices:    r.Records,
		Failures:   r.Failures,
		DurationMs: r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
	}
	if r.Map != nil {
		s.MapName = r.Map.Name
	}
	return s
}

// Sweeper drives one sweep end to end. It is safe for concurrent use when
// its collaborators are.
type Sweeper struct {
	resolver Resolver
	gateway  Gateway
	pacer    Pacer
	builder  *ReportBuilder
	history  History
	newID    func() string
	now      func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithPacer sets the pacing between queries.
func WithPacer(p Pacer) Option {
	return func(s *Sweeper) { s.pacer = p }
}

// WithHistory records sweep progress in h. Failures writing history are
// logged and never fail the sweep.
func WithHistory(h History) Option {
	return func(s *Sweeper) { s.history = h }
}

// WithReportBuilder overrides the report builder.
func WithReportBuilder(b *ReportBuilder) Option {
	return func(s *Sweeper) { s.builder = b }
}

// WithIDFunc overrides sweep id generation.
func WithIDFunc(f func() string) Option {
	return func(s *Sweeper) { s.newID = f }
}

// NewSweeper creates a Sweeper.
func NewSweeper(r Resolver, g Gateway, opts ...Option) *Sweeper {
	s := &Sweeper{
		resolver: r,
		gateway:  g,
		pacer:    FixedPacer(DefaultPacingInterval),
		builder:  NewReportBuilder(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run executes one sweep. An unresolvable postal code returns an error
// matching ErrNotFound and no report; search failures never fail the sweep.
func (s *Sweeper) Run(ctx context.Context, req Request) (*Report, error) {
	if req.Mode != model.ScanModeQuick && req.Mode != model.ScanModeFull {
		return nil, eris.Errorf("sweep: unknown scan mode %q", req.Mode)
	}
	postal := strings.TrimSpace(req.PostalCode)

	id := req.ID
	if id == "" {
		id = s.newID()
	}
	rep := &Report{
		SweepID:    id,
		PostalCode: postal,
		Mode:       req.Mode,
		StartedAt:  s.now(),
	}
	log := zap.L().With(
		zap.String("sweep_id", rep.SweepID),
		zap.String("postal_code", postal),
		zap.String("mode", string(req.Mode)),
	)

	s.recordStart(ctx, log, rep)

	center, err := s.resolver.Resolve(ctx, postal)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			err = eris.Wrap(ErrNotFound, err.Error())
		}
		log.Info("sweep: postal code not resolved", zap.Error(err))
		rep.Outcome = model.OutcomeNotFound
		rep.FinishedAt = s.now()
		s.recordComplete(ctx, log, rep.SweepID, model.SweepStatusNotFound, &model.SweepSummary{
			Outcome:    model.OutcomeNotFound,
			DurationMs: rep.FinishedAt.Sub(rep.StartedAt).Milliseconds(),
		})
		return nil, err
	}
	rep.Center = center

	s.recordStatus(ctx, log, rep.SweepID, model.SweepStatusSearching)

	rep.Queries = Plan(center, req.Mode)
	set, failures := NewAggregator(s.gateway, s.pacer).Aggregate(ctx, rep.Queries)
	rep.Records = set.Records()
	rep.Failures = failures
	rep.Outcome = model.ClassifyOutcome(set.Len(), len(failures))

	if set.Len() > 0 {
		rep.Payloads = s.builder.BuildPayloads(set)
		art, mapErr := s.builder.BuildMap(set, center, MapName(rep.SweepID))
		if mapErr != nil {
			log.Error("sweep: map generation failed", zap.Error(mapErr))
		} else {
			rep.Map = art
		}
	}

	rep.FinishedAt = s.now()
	s.recordComplete(ctx, log, rep.SweepID, model.SweepStatusComplete, rep.SweepSummary())

	log.Info("sweep: complete",
		zap.String("outcome", string(rep.Outcome)),
		zap.Int("queries", len(rep.Queries)),
		zap.Int("devices", len(rep.Records)),
		zap.Int("failures", len(rep.Failures)),
	)
	return rep, nil
}

func (s *Sweeper) recordStart(ctx context.Context, log *zap.Logger, rep *Report) {
	if s.history == nil {
		return
	}
	sw := &model.Sweep{
		ID:         rep.SweepID,
		PostalCode: rep.PostalCode,
		Mode:       rep.Mode,
		Status:     model.SweepStatusResolving,
		CreatedAt:  rep.StartedAt,
		UpdatedAt:  rep.StartedAt,
	}
	if err := s.history.CreateSweep(ctx, sw); err != nil {
		log.Warn("sweep: failed to record sweep", zap.Error(err))
	}
}

func (s *Sweeper) recordStatus(ctx context.Context, log *zap.Logger, id string, status model.SweepStatus) {
	if s.history == nil {
		return
	}
	if err := s.history.UpdateSweepStatus(ctx, id, status); err != nil {
		log.Warn("sweep: failed to update sweep status", zap.String("status", string(status)), zap.Error(err))
	}
}

func (s *Sweeper) recordComplete(ctx context.Context, log *zap.Logger, id string, status model.SweepStatus, summary *model.SweepSummary) {
	if s.history == nil {
		return
	}
	if err := s.history.CompleteSweep(ctx, id, status, summary); err != nil {
		log.Warn("sweep: failed to record sweep result", zap.Error(err))
	}
}
