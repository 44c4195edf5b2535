package core

import (
	"fmt"
	"mousedb/pkg/domain"
	"sort"
	"strings"
)

// ViewAll displays every regular category on the board.
const ViewAll domain.Category = ""

// Cage is one regular cage bucket as displayed on the board.
type Cage struct {
	Label   string
	Records []domain.MouseRecord
}

// Board is the lifecycle state machine over a working snapshot. It keeps
// three live indices holding snapshot keys only: regular cages keyed by
// label, the waiting room and death row keyed by record ID. Memorial records
// are not indexed, and regular records outside the displayed category are
// hidden.
type Board struct {
	snapshot   *domain.Snapshot
	classifier Classifier
	view       domain.Category

	regular map[string][]domain.Key
	waiting map[string]domain.Key
	death   map[string]domain.Key
	byID    map[string]domain.Key
}

// NewBoard indexes snapshot for the given view. The snapshot is mutated in
// place by transitions.
func NewBoard(snapshot *domain.Snapshot, classifier Classifier, view domain.Category) (*Board, error) {
	if view != ViewAll && !view.IsRegular() {
		return nil, fmt.Errorf("board view %q is not a regular category", view)
	}
	b := &Board{snapshot: snapshot, classifier: classifier, view: view}
	if err := b.Rebuild(); err != nil {
		return nil, err
	}
	return b, nil
}

// View returns the displayed category filter.
func (b *Board) View() domain.Category { return b.view }

// Snapshot returns the working snapshot the board mutates.
func (b *Board) Snapshot() *domain.Snapshot { return b.snapshot }

// Rebuild recomputes every category and all three indices from the snapshot.
func (b *Board) Rebuild() error {
	b.regular = make(map[string][]domain.Key)
	b.waiting = make(map[string]domain.Key)
	b.death = make(map[string]domain.Key)
	b.byID = make(map[string]domain.Key, b.snapshot.Len())
	for _, key := range b.snapshot.Keys() {
		rec, err := b.snapshot.Update(key, func(r *domain.MouseRecord) error {
			r.Category = b.classifier.Classify(r.CurrentLocation)
			return nil
		})
		if err != nil {
			return err
		}
		if rec.ID != "" {
			if other, dup := b.byID[rec.ID]; dup {
				return domain.InvariantViolationError{Detail: fmt.Sprintf("id %s held by keys %d and %d", rec.ID, other, key)}
			}
			b.byID[rec.ID] = key
		}
		b.insert(rec)
	}
	return nil
}

// SetView switches the displayed category and reindexes.
func (b *Board) SetView(view domain.Category) error {
	if view != ViewAll && !view.IsRegular() {
		return fmt.Errorf("board view %q is not a regular category", view)
	}
	b.view = view
	return b.Rebuild()
}

func (b *Board) visible(cat domain.Category) bool {
	return b.view == ViewAll || cat == b.view
}

// insert places rec into its single destination bucket.
func (b *Board) insert(rec domain.MouseRecord) {
	switch rec.Category {
	case domain.CategoryWaitingRoom:
		b.waiting[rec.ID] = rec.Key
	case domain.CategoryDeathRow:
		b.death[rec.ID] = rec.Key
	case domain.CategoryMemorial:
	default:
		if b.visible(rec.Category) {
			b.regular[rec.CurrentLocation] = append(b.regular[rec.CurrentLocation], rec.Key)
		}
	}
}

// remove takes rec out of the bucket it occupies, erasing emptied cages.
func (b *Board) remove(rec domain.MouseRecord) {
	switch rec.Category {
	case domain.CategoryWaitingRoom:
		delete(b.waiting, rec.ID)
	case domain.CategoryDeathRow:
		delete(b.death, rec.ID)
	case domain.CategoryMemorial:
	default:
		keys := b.regular[rec.CurrentLocation]
		for i, k := range keys {
			if k == rec.Key {
				keys = append(keys[:i:i], keys[i+1:]...)
				break
			}
		}
		if len(keys) == 0 {
			delete(b.regular, rec.CurrentLocation)
		} else {
			b.regular[rec.CurrentLocation] = keys
		}
	}
}

func (b *Board) lookup(id string) (domain.MouseRecord, error) {
	key, ok := b.byID[id]
	if !ok {
		return domain.MouseRecord{}, domain.ErrNotFound{ID: id}
	}
	rec, ok := b.snapshot.Get(key)
	if !ok {
		return domain.MouseRecord{}, domain.ErrNotFound{ID: id, Key: key}
	}
	return rec, nil
}

// move relocates rec: bucket removal, location write with category
// recomputation, bucket insertion, then a consistency check of the key.
func (b *Board) move(rec domain.MouseRecord, location string) (domain.MouseRecord, error) {
	b.remove(rec)
	updated, err := b.snapshot.Update(rec.Key, func(r *domain.MouseRecord) error {
		r.CurrentLocation = location
		r.Category = b.classifier.Classify(location)
		return nil
	})
	if err != nil {
		return domain.MouseRecord{}, err
	}
	b.insert(updated)
	if err := b.verifyKey(updated); err != nil {
		return domain.MouseRecord{}, err
	}
	return updated, nil
}

// ToExistingCage moves a record into a regular cage already holding animals.
func (b *Board) ToExistingCage(id, target string) (domain.MouseRecord, error) {
	const op = "to existing cage"
	rec, err := b.lookup(id)
	if err != nil {
		return domain.MouseRecord{}, err
	}
	if rec.Category == domain.CategoryMemorial {
		return domain.MouseRecord{}, domain.TransitionError{Op: op, ID: id, From: rec.CurrentLocation, Reason: "archived records cannot be moved"}
	}
	if target == rec.CurrentLocation {
		return domain.MouseRecord{}, domain.TransitionError{Op: op, ID: id, From: rec.CurrentLocation, Reason: "record is already in the target cage"}
	}
	if IsReservedLocation(target) || !b.cageExists(target) {
		return domain.MouseRecord{}, domain.TransitionError{Op: op, ID: id, From: rec.CurrentLocation, Reason: fmt.Sprintf("%q is not an existing cage", target)}
	}
	return b.move(rec, target)
}

// ToWaitingRoom moves a caged or condemned record into the waiting room.
func (b *Board) ToWaitingRoom(id string) (domain.MouseRecord, error) {
	rec, err := b.lookup(id)
	if err != nil {
		return domain.MouseRecord{}, err
	}
	if !rec.Category.IsRegular() && rec.Category != domain.CategoryDeathRow {
		return domain.MouseRecord{}, domain.TransitionError{Op: "to waiting room", ID: id, From: rec.CurrentLocation, Reason: "only caged or death row records can wait for placement"}
	}
	return b.move(rec, domain.LocationWaitingRoom)
}

// ToNewCage places a waiting record into a cage that does not exist yet.
// The label is validated before anything changes.
func (b *Board) ToNewCage(id, label string) (domain.MouseRecord, error) {
	rec, err := b.lookup(id)
	if err != nil {
		return domain.MouseRecord{}, err
	}
	if rec.Category != domain.CategoryWaitingRoom {
		return domain.MouseRecord{}, domain.TransitionError{Op: "to new cage", ID: id, From: rec.CurrentLocation, Reason: "only waiting records can open a new cage"}
	}
	final, err := b.ValidateNewCageLabel(label)
	if err != nil {
		return domain.MouseRecord{}, err
	}
	return b.move(rec, final)
}

// ToDeathRow condemns a caged or waiting record.
func (b *Board) ToDeathRow(id string) (domain.MouseRecord, error) {
	rec, err := b.lookup(id)
	if err != nil {
		return domain.MouseRecord{}, err
	}
	if !rec.Category.IsRegular() && rec.Category != domain.CategoryWaitingRoom {
		return domain.MouseRecord{}, domain.TransitionError{Op: "to death row", ID: id, From: rec.CurrentLocation, Reason: "only caged or waiting records can be condemned"}
	}
	return b.move(rec, domain.LocationDeathRow)
}

// FromDeathRow restores a condemned record to its last persisted cage. The
// record reenters the cage index only when the restored category is displayed.
func (b *Board) FromDeathRow(id string) (domain.MouseRecord, error) {
	const op = "from death row"
	rec, err := b.lookup(id)
	if err != nil {
		return domain.MouseRecord{}, err
	}
	if rec.Category != domain.CategoryDeathRow {
		return domain.MouseRecord{}, domain.TransitionError{Op: op, ID: id, From: rec.CurrentLocation, Reason: "record is not on death row"}
	}
	if rec.OriginalCage == "" || b.classifier.Classify(rec.OriginalCage) == domain.CategoryDeathRow {
		return domain.MouseRecord{}, domain.TransitionError{Op: op, ID: id, From: rec.CurrentLocation, Reason: "no persisted cage to restore"}
	}
	return b.move(rec, rec.OriginalCage)
}

// AddNew inserts a freshly created record into the snapshot and the
// waiting room. The record must carry an ID unused in the snapshot.
func (b *Board) AddNew(rec domain.MouseRecord) (domain.MouseRecord, error) {
	if rec.ID == "" {
		return domain.MouseRecord{}, domain.EntryError{Field: "ID", Reason: "new records need an issued id"}
	}
	if _, taken := b.byID[rec.ID]; taken {
		return domain.MouseRecord{}, domain.EntryError{Field: "ID", Reason: fmt.Sprintf("id %s already exists", rec.ID)}
	}
	rec.Key = b.snapshot.NextKey()
	rec.CurrentLocation = domain.LocationWaitingRoom
	rec.Category = domain.CategoryWaitingRoom
	b.snapshot.Put(rec)
	b.byID[rec.ID] = rec.Key
	b.insert(rec)
	if err := b.verifyKey(rec); err != nil {
		return domain.MouseRecord{}, err
	}
	stored, _ := b.snapshot.Get(rec.Key)
	return stored, nil
}

// ValidateNewCageLabel checks a label against the cage naming grammar and
// returns the final label. Under a strain view a bare suffix receives the
// strain prefix.
func (b *Board) ValidateNewCageLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	reject := func(reason string) (string, error) {
		return "", domain.InvalidCageLabelError{Label: label, Reason: reason}
	}
	if label == "" {
		return reject("label is empty")
	}
	if !isDigit(label[0]) || !isDigit(label[len(label)-1]) {
		return reject("must start and end with a digit")
	}
	final := label
	if prefix, ok := b.classifier.StrainPrefix(b.view); ok && !strings.HasPrefix(label, prefix) && !b.classifier.HasStrainPrefix(label) {
		final = prefix + label
	}
	if b.view == domain.CategoryBackup && b.classifier.HasStrainPrefix(final) {
		return reject("backup cages cannot use a strain-area prefix")
	}
	if b.view != ViewAll && b.classifier.Classify(final) != b.view {
		return reject(fmt.Sprintf("label does not belong to %s", b.view))
	}
	suffix := b.stripPrefix(final)
	digits := strings.ReplaceAll(suffix, "-", "")
	switch {
	case digits == "":
		return reject("must include at least one digit after the prefix")
	case onlyDigits(digits) != digits:
		return reject("only digits and '-' are allowed after the prefix")
	case len(digits) > 4:
		return reject("at most four digits are allowed after the prefix")
	}
	if b.cageExists(final) {
		return reject("cage already exists")
	}
	return final, nil
}

// stripPrefix removes a recognized prefix: a strain-area prefix, or the
// "<n>-B-" block used by backup cages.
func (b *Board) stripPrefix(label string) string {
	for _, cat := range []domain.Category{domain.CategoryStrainA, domain.CategoryStrainB} {
		if p, ok := b.classifier.StrainPrefix(cat); ok && strings.HasPrefix(label, p) {
			return label[len(p):]
		}
	}
	if idx := strings.Index(label, "-B-"); idx >= 0 {
		return label[idx+len("-B-"):]
	}
	return label
}

// cageExists checks the whole snapshot, including cages hidden by the view.
func (b *Board) cageExists(label string) bool {
	if _, ok := b.regular[label]; ok {
		return true
	}
	for _, rec := range b.snapshot.Records() {
		if rec.Category.IsRegular() && (rec.CurrentLocation == label || rec.OriginalCage == label) {
			return true
		}
	}
	return false
}

// Cages returns the displayed regular cages sorted by label.
func (b *Board) Cages() []Cage {
	labels := make([]string, 0, len(b.regular))
	for label := range b.regular {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	out := make([]Cage, 0, len(labels))
	for _, label := range labels {
		cage := Cage{Label: label}
		for _, key := range b.regular[label] {
			rec, _ := b.snapshot.Get(key)
			cage.Records = append(cage.Records, rec)
		}
		out = append(out, cage)
	}
	return out
}

// Waiting returns the waiting room records sorted by ID.
func (b *Board) Waiting() []domain.MouseRecord { return b.collect(b.waiting) }

// DeathRow returns the condemned records sorted by ID.
func (b *Board) DeathRow() []domain.MouseRecord { return b.collect(b.death) }

func (b *Board) collect(bucket map[string]domain.Key) []domain.MouseRecord {
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]domain.MouseRecord, 0, len(ids))
	for _, id := range ids {
		rec, _ := b.snapshot.Get(bucket[id])
		out = append(out, rec)
	}
	return out
}

// BucketCount returns the total number of keys across all three indices.
func (b *Board) BucketCount() int {
	n := len(b.waiting) + len(b.death)
	for _, keys := range b.regular {
		n += len(keys)
	}
	return n
}

// buckets lists every bucket currently holding key.
func (b *Board) buckets(key domain.Key) []string {
	var found []string
	for label, keys := range b.regular {
		for _, k := range keys {
			if k == key {
				found = append(found, "cage "+label)
			}
		}
	}
	for id, k := range b.waiting {
		if k == key {
			found = append(found, "waiting room "+id)
		}
	}
	for id, k := range b.death {
		if k == key {
			found = append(found, "death row "+id)
		}
	}
	return found
}

// expectedBucket names the single bucket rec belongs in, or "" when the
// record is not indexed.
func (b *Board) expectedBucket(rec domain.MouseRecord) string {
	switch rec.Category {
	case domain.CategoryWaitingRoom:
		return "waiting room " + rec.ID
	case domain.CategoryDeathRow:
		return "death row " + rec.ID
	case domain.CategoryMemorial:
		return ""
	}
	if !b.visible(rec.Category) {
		return ""
	}
	return "cage " + rec.CurrentLocation
}

func (b *Board) verifyKey(rec domain.MouseRecord) error {
	want := b.expectedBucket(rec)
	got := b.buckets(rec.Key)
	switch {
	case want == "" && len(got) == 0:
		return nil
	case len(got) == 1 && got[0] == want:
		return nil
	}
	return domain.InvariantViolationError{Detail: fmt.Sprintf("record %s (key %d) at %q found in %v", rec.ID, rec.Key, rec.CurrentLocation, got)}
}

// Verify checks that every record sits in exactly the bucket its location
// implies and that no bucket references an unknown key.
func (b *Board) Verify() error {
	seen := 0
	for _, rec := range b.snapshot.Records() {
		if rec.Category != b.classifier.Classify(rec.CurrentLocation) {
			return domain.InvariantViolationError{Detail: fmt.Sprintf("record %s category %s disagrees with location %q", rec.ID, rec.Category, rec.CurrentLocation)}
		}
		if err := b.verifyKey(rec); err != nil {
			return err
		}
		if b.expectedBucket(rec) != "" {
			seen++
		}
	}
	if total := b.BucketCount(); total != seen {
		return domain.InvariantViolationError{Detail: fmt.Sprintf("indices hold %d keys for %d indexed records", total, seen)}
	}
	return nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
