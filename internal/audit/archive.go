// Package audit persists reconciliation change sets as changelog artifacts
// in the blob store and reads them back for replay.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mousedb/internal/blob"
	"mousedb/internal/core"
	"mousedb/pkg/domain"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Table names of a changelog artifact.
const (
	TableManual  = "Manual"
	TableAdded   = "Added"
	TableChanged = "Changed"
)

// DefaultPrefix is the key prefix under which changelogs are written.
const DefaultPrefix = "changelogs/"

const contentType = "application/json"

// Row is one record of a changelog table. Dates use the yy-mm-dd form.
type Row struct {
	ID        string `json:"ID"`
	Cage      string `json:"cage"`
	Location  string `json:"nuCA"`
	Sex       string `json:"sex"`
	Toe       string `json:"toe"`
	Genotype  string `json:"genotype"`
	BirthDate string `json:"birthDate"`
	BreedDate string `json:"breedDate"`
	ParentF   string `json:"parentF,omitempty"`
	ParentM   string `json:"parentM,omitempty"`
}

// Artifact is the stored form of a changelog.
type Artifact struct {
	SessionID string           `json:"session_id"`
	CreatedAt time.Time        `json:"created_at"`
	Tables    map[string][]Row `json:"tables"`
	Dropped   []string         `json:"dropped,omitempty"`
}

// Archive writes changelog artifacts to a blob store.
type Archive struct {
	store  blob.Store
	prefix string
	newID  func() string
}

// NewArchive returns an archive writing below prefix; an empty prefix uses DefaultPrefix.
func NewArchive(store blob.Store, prefix string) *Archive {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Archive{store: store, prefix: prefix, newID: uuid.NewString}
}

// Archive implements core.ChangeArchive.
func (a *Archive) Archive(ctx context.Context, record core.ArchiveRecord) (string, error) {
	artifact := Artifact{
		SessionID: record.SessionID,
		CreatedAt: record.CreatedAt.UTC(),
		Tables: map[string][]Row{
			TableManual:  toRows(record.Changes.ManualReview),
			TableAdded:   toRows(record.Changes.Added),
			TableChanged: toRows(record.Changes.Changed),
		},
		Dropped: record.Dropped,
	}
	payload, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode changelog: %w", err)
	}
	key := fmt.Sprintf("%s%s-%s.json", a.prefix, artifact.CreatedAt.Format("20060102-150405"), a.newID())
	if _, err := a.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"session": record.SessionID},
	}); err != nil {
		return "", err
	}
	return key, nil
}

// Load reads an artifact and rebuilds its change set.
func (a *Archive) Load(ctx context.Context, key string) (Artifact, domain.ChangeSet, error) {
	_, body, err := a.store.Get(ctx, key)
	if err != nil {
		return Artifact{}, domain.ChangeSet{}, err
	}
	defer body.Close()
	var artifact Artifact
	if err := json.NewDecoder(body).Decode(&artifact); err != nil {
		return Artifact{}, domain.ChangeSet{}, fmt.Errorf("decode changelog %s: %w", key, err)
	}
	changes := domain.ChangeSet{
		Added:        fromRows(artifact.Tables[TableAdded]),
		Changed:      fromRows(artifact.Tables[TableChanged]),
		ManualReview: fromRows(artifact.Tables[TableManual]),
	}
	return artifact, changes, nil
}

// List returns the keys of stored changelogs, oldest first.
func (a *Archive) List(ctx context.Context) ([]string, error) {
	infos, err := a.store.List(ctx, a.prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	return keys, nil
}

func toRows(records []domain.MouseRecord) []Row {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, Row{
			ID:        rec.ID,
			Cage:      rec.OriginalCage,
			Location:  rec.CurrentLocation,
			Sex:       rec.Sex.String(),
			Toe:       rec.Toe,
			Genotype:  rec.Genotype,
			BirthDate: core.FormatDate(rec.BirthDate),
			BreedDate: core.FormatDate(rec.BreedDate),
			ParentF:   deref(rec.ParentFather),
			ParentM:   deref(rec.ParentMother),
		})
	}
	return rows
}

func fromRows(rows []Row) []domain.MouseRecord {
	out := make([]domain.MouseRecord, 0, len(rows))
	for _, row := range rows {
		sex, _ := domain.ParseSex(row.Sex)
		out = append(out, domain.MouseRecord{
			ID:              row.ID,
			OriginalCage:    row.Cage,
			CurrentLocation: row.Location,
			Sex:             sex,
			Toe:             row.Toe,
			Genotype:        row.Genotype,
			BirthDate:       core.ToDate(row.BirthDate),
			BreedDate:       core.ToDate(row.BreedDate),
			ParentFather:    link(row.ParentF),
			ParentMother:    link(row.ParentM),
		})
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func link(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
