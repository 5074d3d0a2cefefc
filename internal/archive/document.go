package archive

import (
	"context"
	"fmt"

	"designcore/pkg/codec"
	"designcore/pkg/diag"
	"designcore/pkg/domain"
)

// Encode serializes doc into a snapshot for documentID. The snapshot is not
// saved.
func Encode(documentID string, doc *domain.Document, label string) (Snapshot, error) {
	p, err := codec.DumpDocument(doc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("dump document: %w", err)
	}
	data, err := codec.Marshal(p)
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshal document: %w", err)
	}
	return Snapshot{DocumentID: documentID, Label: label, Payload: data}, nil
}

// SaveDocument encodes doc and saves it as the next revision of documentID.
func SaveDocument(ctx context.Context, s Store, documentID string, doc *domain.Document, label string) (Snapshot, error) {
	snap, err := Encode(documentID, doc, label)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Save(ctx, snap)
}

// Decode rebuilds the document held by snap against reg. Load problems that
// do not prevent construction are returned in the report.
func Decode(snap Snapshot, reg *domain.Registry, reporter diag.Reporter) (*domain.Document, *codec.LoadReport, error) {
	p, err := codec.Unmarshal(snap.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%s revision %d: %w", snap.DocumentID, snap.Revision, err)
	}
	return codec.LoadDocument(p, reg, codec.LoadConfig{Reporter: reporter})
}

// LoadDocument fetches revision rev of documentID (the latest when rev <= 0)
// and decodes it.
func LoadDocument(ctx context.Context, s Store, documentID string, rev int, reg *domain.Registry, reporter diag.Reporter) (*domain.Document, *codec.LoadReport, Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	if rev > 0 {
		snap, err = s.Revision(ctx, documentID, rev)
	} else {
		snap, err = s.Latest(ctx, documentID)
	}
	if err != nil {
		return nil, nil, Snapshot{}, err
	}
	doc, report, err := Decode(snap, reg, reporter)
	if err != nil {
		return nil, nil, snap, err
	}
	return doc, report, snap, nil
}
