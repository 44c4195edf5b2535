package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mousedb/internal/core"
	"mousedb/pkg/domain"
	"os"
	"strings"
)

func newFlagSet(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet("mdb "+name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

func viewFlag(fs *flag.FlagSet) *string {
	return fs.String("view", "", "limit new cages to one category: BACKUP, STRAIN_A or STRAIN_B")
}

// useView scopes the session board to a regular category.
func (a *app) useView(view string) error {
	if view == "" {
		return nil
	}
	if !domain.Category(view).IsRegular() {
		_, _ = fmt.Fprintf(a.stderr, "unknown view %q\n", view)
		return errUsage
	}
	a.view = domain.Category(view)
	return nil
}

func runImport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "import")
	in := fs.String("in", "", "JSON file holding an array of row objects")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *in == "" {
		_, _ = fmt.Fprintln(a.stderr, "import: -in is required")
		return errUsage
	}
	rows, err := readRows(*in)
	if err != nil {
		return err
	}
	store, err := a.store(ctx)
	if err != nil {
		return err
	}
	s := core.NewSession(a.options(store, nil)...)
	res, err := s.Open(ctx, rows)
	if err != nil {
		return err
	}
	if err := store.SaveSnapshot(ctx, s.Working()); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return writeJSON(a.stdout, map[string]any{
		"records":  res.Snapshot.Len(),
		"issued":   nonNil(res.Issued),
		"reissued": nonNil(res.Reissued),
	})
}

func runDiff(_ context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "diff")
	basePath := fs.String("baseline", "", "JSON rows of the persisted snapshot")
	workPath := fs.String("working", "", "JSON rows of the edited snapshot")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *basePath == "" || *workPath == "" {
		_, _ = fmt.Fprintln(a.stderr, "diff: -baseline and -working are required")
		return errUsage
	}
	today := core.Today(now)
	issuer := core.NewIssuer(a.cfg.IssuerConfig(), nil)
	load := func(path string) (domain.Snapshot, error) {
		rows, err := readRows(path)
		if err != nil {
			return domain.Snapshot{}, err
		}
		res, err := core.Import(rows, today, a.cfg.Classifier(), issuer)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("%s: %w", path, err)
		}
		return res.Snapshot, nil
	}
	baseline, err := load(*basePath)
	if err != nil {
		return err
	}
	working, err := load(*workPath)
	if err != nil {
		return err
	}
	return writeJSON(a.stdout, core.Diff(&baseline, &working, nil))
}

// transition applies one ID=TARGET argument. TARGET is a cage label, one of
// waiting, death or release, or new:<label> for a fresh cage.
func transition(ctx context.Context, s *core.Session, arg string) error {
	id, target, ok := strings.Cut(arg, "=")
	if !ok || id == "" || target == "" {
		return fmt.Errorf("%w: expected ID=TARGET, got %q", errUsage, arg)
	}
	var err error
	switch {
	case target == "waiting":
		_, err = s.ToWaitingRoom(ctx, id)
	case target == "death":
		_, err = s.ToDeathRow(ctx, id)
	case target == "release":
		_, err = s.FromDeathRow(ctx, id)
	case strings.HasPrefix(target, "new:"):
		_, err = s.ToNewCage(ctx, id, strings.TrimPrefix(target, "new:"))
	default:
		_, err = s.ToExistingCage(ctx, id, target)
	}
	return err
}

func runMove(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "move")
	dryRun := fs.Bool("dry-run", false, "print the change set without saving")
	view := viewFlag(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := a.useView(*view); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		_, _ = fmt.Fprintln(a.stderr, "move: at least one ID=TARGET argument is required")
		return errUsage
	}
	s, _, err := a.session(ctx)
	if err != nil {
		return err
	}
	for _, arg := range fs.Args() {
		if err := transition(ctx, s, arg); err != nil {
			return err
		}
	}
	if *dryRun {
		return writeJSON(a.stdout, s.Changes())
	}
	return save(ctx, a, s)
}

func runAdd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "add")
	sex := fs.String("sex", "", "male or female")
	toe := fs.String("toe", "", "toe marking, e.g. 3 or toe3")
	genotype := fs.String("genotype", "", "genotype label")
	birth := fs.String("birth", "", "birth date")
	father := fs.String("father", "", "father ID")
	mother := fs.String("mother", "", "mother ID")
	cage := fs.String("cage", "", "existing cage to place the animal in")
	newCage := fs.String("new-cage", "", "new cage label to place the animal in")
	view := viewFlag(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := a.useView(*view); err != nil {
		return err
	}
	if (*cage == "") == (*newCage == "") {
		_, _ = fmt.Fprintln(a.stderr, "add: exactly one of -cage and -new-cage is required")
		return errUsage
	}
	parsedSex, _ := domain.ParseSex(*sex)
	draft := core.EntryDraft{
		Sex:       parsedSex,
		Toe:       *toe,
		Genotype:  *genotype,
		BirthDate: core.ToDate(*birth),
	}
	if *father != "" {
		draft.ParentFather = father
	}
	if *mother != "" {
		draft.ParentMother = mother
	}

	s, _, err := a.session(ctx)
	if err != nil {
		return err
	}
	rec, err := s.NewEntry(ctx, draft)
	if err != nil {
		return err
	}
	if *newCage != "" {
		_, err = s.ToNewCage(ctx, rec.ID, *newCage)
	} else {
		_, err = s.ToExistingCage(ctx, rec.ID, *cage)
	}
	if err != nil {
		return err
	}
	a.logger.Info("animal added", "id", rec.ID)
	return save(ctx, a, s)
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "export")
	out := fs.String("out", "-", "output file, - for stdout")
	if err := parse(fs, args); err != nil {
		return err
	}
	s, _, err := a.session(ctx)
	if err != nil {
		return err
	}
	working := s.Working()
	rows, report, err := core.Export(&working, core.Today(now), a.cfg.Retention)
	if err != nil {
		return err
	}
	for _, id := range report.Dropped {
		a.logger.Info("record dropped from export", "id", id)
	}
	if *out == "-" {
		return writeJSON(a.stdout, rows)
	}
	return writeFile(*out, rows)
}

func runChangelog(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "changelog")
	key := fs.String("key", "", "artifact key to apply")
	list := fs.Bool("list", false, "list archived changelog keys")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *list {
		archive, err := a.archive(ctx)
		if err != nil {
			return err
		}
		keys, err := archive.List(ctx)
		if err != nil {
			return err
		}
		return writeJSON(a.stdout, nonNil(keys))
	}
	if *key == "" {
		_, _ = fmt.Fprintln(a.stderr, "changelog: -key or -list is required")
		return errUsage
	}
	s, archive, err := a.session(ctx)
	if err != nil {
		return err
	}
	_, changes, err := archive.Load(ctx, *key)
	if err != nil {
		return err
	}
	report, err := s.ApplyChangelog(ctx, changes)
	if err != nil {
		return err
	}
	if err := writeJSON(a.stdout, report); err != nil {
		return err
	}
	if report.Applied() == 0 {
		return nil
	}
	return save(ctx, a, s)
}

func runCounts(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "counts")
	category := fs.String("category", string(domain.CategoryStrainA), "category to tally")
	if err := parse(fs, args); err != nil {
		return err
	}
	s, _, err := a.session(ctx)
	if err != nil {
		return err
	}
	return writeJSON(a.stdout, nonNil(s.GenotypeCounts(domain.Category(*category))))
}

type saveSummary struct {
	Added       int                `json:"added"`
	Changed     int                `json:"changed"`
	Review      []string           `json:"manual_review,omitempty"`
	Dropped     []string           `json:"dropped,omitempty"`
	Ambiguous   []string           `json:"ambiguous,omitempty"`
	Violations  []domain.Violation `json:"violations,omitempty"`
	ArtifactKey string             `json:"artifact_key,omitempty"`
	Unchanged   bool               `json:"unchanged,omitempty"`
}

// save writes the session back unless the command left the working copy
// identical to the baseline, in which case neither the store nor the
// changelog archive is touched.
func save(ctx context.Context, a *app, s *core.Session) error {
	if !s.HasUnsavedChanges() {
		a.logger.Info("nothing to save")
		return writeJSON(a.stdout, saveSummary{Unchanged: true})
	}
	report, err := s.Save(ctx)
	if err != nil {
		return err
	}
	summary := saveSummary{
		Added:       len(report.Changes.Added),
		Changed:     len(report.Changes.Changed),
		Dropped:     report.Retention.Dropped,
		Ambiguous:   report.Retention.Ambiguous,
		Violations:  report.Rules.Violations,
		ArtifactKey: report.ArtifactKey,
	}
	for _, rec := range report.Changes.ManualReview {
		summary.Review = append(summary.Review, rec.ID)
	}
	return writeJSON(a.stdout, summary)
}

func readRows(path string) ([]core.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	dec := json.NewDecoder(f)
	dec.UseNumber()
	var rows []core.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return rows, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func writeFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeJSON(f, v); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
