package core

import (
	"context"
	"errors"
	"fmt"
	"mousedb/pkg/domain"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// ErrSessionNotOpen is returned by operations invoked before a snapshot was loaded.
var ErrSessionNotOpen = errors.New("session has no open snapshot")

// ArchiveRecord is the audit artifact written for each save with changes.
type ArchiveRecord struct {
	SessionID string           `json:"session_id"`
	CreatedAt time.Time        `json:"created_at"`
	Changes   domain.ChangeSet `json:"changes"`
	Dropped   []string         `json:"dropped,omitempty"`
}

// ChangeArchive persists audit artifacts and returns their storage key.
type ChangeArchive interface {
	Archive(ctx context.Context, record ArchiveRecord) (string, error)
}

// SaveReport describes a completed save.
type SaveReport struct {
	Changes     domain.ChangeSet
	Rules       domain.Result
	Rows        []Row
	Retention   RetentionReport
	ArtifactKey string
}

// Session is a single-user editing session over one colony: a read-only
// baseline, a working copy mutated through the lifecycle board, and the
// collaborators used to persist and audit saves.
type Session struct {
	id         string
	logger     Logger
	metrics    MetricsRecorder
	tracer     Tracer
	clock      Clock
	rng        domain.Rand
	store      domain.SnapshotStore
	archive    ChangeArchive
	rules      *domain.RulesEngine
	classifier Classifier
	issuerCfg  IssuerConfig
	retention  RetentionPolicy
	view       domain.Category

	issuer   *Issuer
	baseline domain.Snapshot
	working  domain.Snapshot
	board    *Board
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the recorder observing every operation.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Session) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer wrapping every operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Session) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock sets the clock used for "today" and operation timings.
func WithClock(clock Clock) Option {
	return func(s *Session) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRand sets the randomness source of identity issuance.
func WithRand(rng domain.Rand) Option {
	return func(s *Session) { s.rng = rng }
}

// WithStore sets the snapshot store used by OpenStore and Save.
func WithStore(store domain.SnapshotStore) Option {
	return func(s *Session) { s.store = store }
}

// WithArchive sets the audit archive receiving change sets on save.
func WithArchive(archive ChangeArchive) Option {
	return func(s *Session) { s.archive = archive }
}

// WithRulesEngine replaces the rules evaluated before each save.
func WithRulesEngine(engine *domain.RulesEngine) Option {
	return func(s *Session) {
		if engine != nil {
			s.rules = engine
		}
	}
}

// WithClassifier sets the strain prefixes used to categorize locations.
func WithClassifier(classifier Classifier) Option {
	return func(s *Session) { s.classifier = classifier }
}

// WithIssuerConfig sets the identity lookup tables.
func WithIssuerConfig(cfg IssuerConfig) Option {
	return func(s *Session) { s.issuerCfg = cfg }
}

// WithRetention sets the retention policy applied on save.
func WithRetention(policy RetentionPolicy) Option {
	return func(s *Session) { s.retention = policy }
}

// WithView sets the category displayed on the board.
func WithView(view domain.Category) Option {
	return func(s *Session) { s.view = view }
}

// NewSession constructs a session; a snapshot must be opened before use.
func NewSession(opts ...Option) *Session {
	s := &Session{
		id:         uuid.NewString(),
		logger:     noopLogger{},
		metrics:    noopMetricsRecorder{},
		tracer:     noopTracer{},
		clock:      ClockFunc(time.Now),
		rules:      NewDefaultRulesEngine(),
		classifier: DefaultClassifier(),
		issuerCfg:  DefaultIssuerConfig(),
		retention:  DefaultRetentionPolicy(),
		view:       ViewAll,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.issuer = NewIssuer(s.issuerCfg, s.rng)
	return s
}

// ID returns the session identifier stamped on audit artifacts.
func (s *Session) ID() string { return s.id }

// Board returns the lifecycle board, or nil before a snapshot is opened.
func (s *Session) Board() *Board { return s.board }

// Working returns a copy of the working snapshot.
func (s *Session) Working() domain.Snapshot { return s.working.Clone() }

// Baseline returns a copy of the last persisted snapshot.
func (s *Session) Baseline() domain.Snapshot { return s.baseline.Clone() }

func (s *Session) today() civil.Date {
	return civil.DateOf(s.clock.Now())
}

func (s *Session) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, s.clock.Now().Sub(start))
	if err != nil {
		s.logger.Error("session operation failed", "op", op, "session", s.id, "error", err)
		return err
	}
	s.logger.Debug("session operation", "op", op, "session", s.id)
	return nil
}

// open installs snapshot as both baseline and working copy. The board is
// built on a local copy first so a failure leaves the session as it was.
func (s *Session) open(snapshot domain.Snapshot) error {
	working := snapshot.Clone()
	board, err := NewBoard(&working, s.classifier, s.view)
	if err != nil {
		return err
	}
	s.working = working
	board.snapshot = &s.working
	s.board = board
	s.baseline = s.working.Clone()
	return nil
}

// Open imports raw rows, issuing identifiers where needed.
func (s *Session) Open(ctx context.Context, rows []Row) (ImportResult, error) {
	var res ImportResult
	err := s.run(ctx, "open", func(context.Context) error {
		var err error
		res, err = Import(rows, s.today(), s.classifier, s.issuer)
		if err != nil {
			return err
		}
		for _, id := range res.Reissued {
			s.logger.Warn("duplicate id reissued", "id", id)
		}
		if len(res.Issued) > 0 {
			s.logger.Info("issued ids", "count", len(res.Issued))
		}
		return s.open(res.Snapshot)
	})
	return res, err
}

// OpenStore loads the last persisted snapshot from the configured store.
func (s *Session) OpenStore(ctx context.Context) error {
	return s.run(ctx, "open_store", func(ctx context.Context) error {
		if s.store == nil {
			return errors.New("no snapshot store configured")
		}
		snapshot, err := s.store.LoadSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		today := s.today()
		for _, key := range snapshot.Keys() {
			if _, err := snapshot.Update(key, func(r *domain.MouseRecord) error {
				r.Category = s.classifier.Classify(r.CurrentLocation)
				deriveSpans(r, today)
				return nil
			}); err != nil {
				return err
			}
		}
		issued, err := s.issuer.IssueMissing(&snapshot)
		if err != nil {
			return err
		}
		if len(issued) > 0 {
			s.logger.Info("issued ids", "count", len(issued))
		}
		return s.open(snapshot)
	})
}

func (s *Session) transition(ctx context.Context, op string, fn func(*Board) (domain.MouseRecord, error)) (domain.MouseRecord, error) {
	var rec domain.MouseRecord
	err := s.run(ctx, op, func(context.Context) error {
		if s.board == nil {
			return ErrSessionNotOpen
		}
		var err error
		rec, err = fn(s.board)
		return err
	})
	return rec, err
}

// ToExistingCage moves the record into an existing regular cage.
func (s *Session) ToExistingCage(ctx context.Context, id, target string) (domain.MouseRecord, error) {
	return s.transition(ctx, "to_existing_cage", func(b *Board) (domain.MouseRecord, error) {
		return b.ToExistingCage(id, target)
	})
}

// ToWaitingRoom moves the record into the waiting room.
func (s *Session) ToWaitingRoom(ctx context.Context, id string) (domain.MouseRecord, error) {
	return s.transition(ctx, "to_waiting_room", func(b *Board) (domain.MouseRecord, error) {
		return b.ToWaitingRoom(id)
	})
}

// ToNewCage places a waiting record into a new cage.
func (s *Session) ToNewCage(ctx context.Context, id, label string) (domain.MouseRecord, error) {
	return s.transition(ctx, "to_new_cage", func(b *Board) (domain.MouseRecord, error) {
		return b.ToNewCage(id, label)
	})
}

// ToDeathRow condemns the record.
func (s *Session) ToDeathRow(ctx context.Context, id string) (domain.MouseRecord, error) {
	return s.transition(ctx, "to_death_row", func(b *Board) (domain.MouseRecord, error) {
		return b.ToDeathRow(id)
	})
}

// FromDeathRow restores a condemned record to its persisted cage.
func (s *Session) FromDeathRow(ctx context.Context, id string) (domain.MouseRecord, error) {
	return s.transition(ctx, "from_death_row", func(b *Board) (domain.MouseRecord, error) {
		return b.FromDeathRow(id)
	})
}

// NewEntry creates a new animal in the waiting room.
func (s *Session) NewEntry(ctx context.Context, draft EntryDraft) (domain.MouseRecord, error) {
	return s.transition(ctx, "new_entry", func(b *Board) (domain.MouseRecord, error) {
		existing := s.working.IDs()
		for id := range s.baseline.IDs() {
			existing[id] = struct{}{}
		}
		rec, err := NewEntry(draft, s.issuer, existing, s.today())
		if err != nil {
			return domain.MouseRecord{}, err
		}
		return b.AddNew(rec)
	})
}

// EditRecord replaces the editable fields of a record.
func (s *Session) EditRecord(ctx context.Context, id string, edit Edit) (domain.MouseRecord, error) {
	return s.transition(ctx, "edit_record", func(*Board) (domain.MouseRecord, error) {
		return EditRecord(&s.working, id, edit, s.today())
	})
}

// ApplyChangelog replays an archived change set onto the working copy.
func (s *Session) ApplyChangelog(ctx context.Context, changes domain.ChangeSet) (ChangelogReport, error) {
	var report ChangelogReport
	err := s.run(ctx, "apply_changelog", func(context.Context) error {
		if s.board == nil {
			return ErrSessionNotOpen
		}
		var err error
		report, err = ApplyChangelog(&s.working, changes, s.classifier, s.today())
		if err != nil {
			return err
		}
		for _, exc := range report.Exceptions {
			s.logger.Warn("changelog entry skipped", "detail", exc)
		}
		return s.board.Rebuild()
	})
	return report, err
}

// HasUnsavedChanges reports whether the working copy differs from the baseline.
func (s *Session) HasUnsavedChanges() bool {
	return HasChanges(&s.baseline, &s.working, nil)
}

// Changes returns the change set between baseline and working copy.
func (s *Session) Changes() domain.ChangeSet {
	return Diff(&s.baseline, &s.working, nil)
}

// GenotypeCounts tallies the working copy for one category.
func (s *Session) GenotypeCounts(category domain.Category) []GenotypeCount {
	return GenotypeCounts(&s.working, category, DefaultSeniorAgeDays)
}

// Save exports the working copy, evaluates the rules, persists the retained
// snapshot, archives the change set and finally commits the snapshot as the
// new baseline. Any failure leaves the session untouched; when archiving
// fails after the snapshot was persisted, the store is restored to the
// baseline so no change reaches storage without its changelog.
func (s *Session) Save(ctx context.Context) (SaveReport, error) {
	var report SaveReport
	err := s.run(ctx, "save", func(ctx context.Context) error {
		if s.board == nil {
			return ErrSessionNotOpen
		}
		rows, retention, err := Export(&s.working, s.today(), s.retention)
		if err != nil {
			return err
		}
		changes := Diff(&s.baseline, &s.working, nil)

		check := s.working.Clone()
		res, err := s.rules.Evaluate(ctx, &check)
		if err != nil {
			return err
		}
		if res.HasBlocking() {
			return domain.RuleViolationError{Result: res}
		}
		for _, v := range res.Violations {
			s.logger.Warn("rule violation", "rule", v.Rule, "severity", string(v.Severity), "record", v.RecordID, "message", v.Message)
		}
		for _, id := range retention.Ambiguous {
			s.logger.Warn("retention outcome depends on parent matching", "id", id, "mode", string(s.retention.ParentMatch))
		}

		if s.store != nil {
			if err := s.store.SaveSnapshot(ctx, retention.Kept); err != nil {
				return fmt.Errorf("persist snapshot: %w", err)
			}
		}
		var key string
		if s.archive != nil && !changes.Empty() {
			key, err = s.archive.Archive(ctx, ArchiveRecord{
				SessionID: s.id,
				CreatedAt: s.clock.Now().UTC(),
				Changes:   changes,
				Dropped:   retention.Dropped,
			})
			if err != nil {
				err = fmt.Errorf("archive changes: %w", err)
				if s.store != nil {
					if rerr := s.store.SaveSnapshot(context.WithoutCancel(ctx), s.baseline); rerr != nil {
						return errors.Join(err, fmt.Errorf("restore snapshot: %w", rerr))
					}
				}
				return err
			}
		}
		if err := s.open(retention.Kept); err != nil {
			return err
		}
		for _, id := range retention.Dropped {
			s.logger.Info("archived record purged", "id", id)
		}
		report = SaveReport{
			Changes:     changes,
			Rules:       res,
			Rows:        rows,
			Retention:   retention,
			ArtifactKey: key,
		}
		return nil
	})
	return report, err
}
