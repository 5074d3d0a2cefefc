package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"designcore/pkg/diag"
	"designcore/pkg/domain"
)

// ErrInvalidPayload reports a payload that cannot be loaded at all.
var ErrInvalidPayload = errors.New("codec: invalid payload")

// Node is one level of the serialized tree. It marshals to a JSON array whose
// element 0 is the entity record, followed by the association records owned by
// the entity and then the nested child subtrees.
type Node struct {
	Record       Record
	Associations []domain.AssociationRecord
	Children     []*Node
}

// MarshalJSON implements json.Marshaler.
func (n *Node) MarshalJSON() ([]byte, error) {
	arr := make([]any, 0, 1+len(n.Associations)+len(n.Children))
	arr = append(arr, n.Record)
	for _, a := range n.Associations {
		arr = append(arr, a)
	}
	for _, c := range n.Children {
		arr = append(arr, c)
	}
	return json.Marshal(arr)
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty node", ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw[0], &n.Record); err != nil {
		return fmt.Errorf("%w: node record: %v", ErrInvalidPayload, err)
	}
	if n.Record == nil {
		return fmt.Errorf("%w: null node record", ErrInvalidPayload)
	}
	n.Associations, n.Children = nil, nil
	for i, item := range raw[1:] {
		trimmed := bytes.TrimSpace(item)
		if len(trimmed) == 0 {
			continue
		}
		switch trimmed[0] {
		case '[':
			child := &Node{}
			if err := json.Unmarshal(trimmed, child); err != nil {
				return err
			}
			n.Children = append(n.Children, child)
		case '{':
			var a domain.AssociationRecord
			if err := json.Unmarshal(trimmed, &a); err != nil {
				return fmt.Errorf("%w: element %d: %v", ErrInvalidPayload, i+1, err)
			}
			n.Associations = append(n.Associations, a)
		default:
			return fmt.Errorf("%w: element %d is neither record nor subtree", ErrInvalidPayload, i+1)
		}
	}
	return nil
}

// Payload is a serialized document.
type Payload struct {
	Version int   `json:"version"`
	Tree    *Node `json:"tree"`
}

// Marshal encodes p as JSON.
func Marshal(p *Payload) ([]byte, error) {
	return json.Marshal(p)
}

// Unmarshal decodes a JSON payload.
func Unmarshal(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.Tree == nil {
		return nil, fmt.Errorf("%w: missing tree", ErrInvalidPayload)
	}
	return &p, nil
}

// DumpDocument serializes doc from its root. Entities shared by several
// parents are nested under the first parent reached; transient groups are
// flattened into their members; only valid associations are written.
func DumpDocument(doc *domain.Document) (*Payload, error) {
	opts := DumpOptions{Registry: doc.Registry()}
	seen := make(map[string]bool)
	tree, err := dumpNode(doc, doc.Root(), opts, seen)
	if err != nil {
		return nil, err
	}
	return &Payload{Version: FormatVersion, Tree: tree}, nil
}

func dumpNode(doc *domain.Document, e domain.Entity, opts DumpOptions, seen map[string]bool) (*Node, error) {
	seen[e.ID()] = true
	recs, err := DumpEntity(e, false, opts)
	if err != nil {
		return nil, err
	}
	n := &Node{Record: recs[0]}
	for _, a := range doc.Associations().ForEntity(e.ID()) {
		if a.IsValid() {
			n.Associations = append(n.Associations, a.Dump(opts.Registry))
		}
	}
	for _, child := range persistentChildren(e) {
		if seen[child.ID()] {
			continue
		}
		cn, err := dumpNode(doc, child, opts, seen)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, cn)
	}
	return n, nil
}

// LoadReport summarises a document load.
type LoadReport struct {
	Entities     int
	Associations int
	Errors       []*LoadError
}

// OK reports whether the load met no failures.
func (r *LoadReport) OK() bool { return len(r.Errors) == 0 }

// LoadConfig tunes LoadDocument.
type LoadConfig struct {
	Reporter diag.Reporter
	IDs      *domain.IDGenerator
}

type pending struct {
	entity domain.Entity
	node   *Node
	path   []string
}

type pendingAssoc struct {
	rec  domain.AssociationRecord
	path []string
}

// LoadDocument rebuilds a document from p. Construction runs in passes: every
// entity is created and registered in a LoadContext first, then fields and
// hierarchy are applied, then associations are resolved. Records of unknown
// type are skipped with their subtree and reported; unresolved references make
// the owning association invalid. Only a payload without a usable root fails.
func LoadDocument(p *Payload, reg *domain.Registry, cfg LoadConfig) (*domain.Document, *LoadReport, error) {
	if p == nil || p.Tree == nil || p.Tree.Record == nil {
		return nil, nil, fmt.Errorf("%w: missing tree", ErrInvalidPayload)
	}
	if p.Version > FormatVersion {
		return nil, nil, fmt.Errorf("%w: version %d is newer than %d", ErrInvalidPayload, p.Version, FormatVersion)
	}
	rootRec := p.Tree.Record
	if info, ok := reg.Class(rootRec.Type()); !ok || info.Family != domain.FamilyLayer {
		return nil, nil, fmt.Errorf("%w: root type %q is not a layer", ErrInvalidPayload, rootRec.Type())
	}
	docOpts := []domain.DocumentOption{domain.WithRootID(rootRec.ID()), domain.WithReporter(cfg.Reporter)}
	if cfg.IDs != nil {
		docOpts = append(docOpts, domain.WithIDGenerator(cfg.IDs))
	}
	doc := domain.NewDocument(reg, docOpts...)
	lc := NewLoadContext(WithLoadReporter(cfg.Reporter))
	lc.Add(doc.Root())

	l := &loader{doc: doc, reg: reg, lc: lc}
	rootPath := []string{".tree"}
	l.pending = append(l.pending, pending{entity: doc.Root(), node: p.Tree, path: rootPath})
	l.collectAssocs(p.Tree, rootPath)
	l.constructChildren(p.Tree, rootPath)

	for _, pe := range l.pending {
		lc.path = pe.path
		_ = LoadEntity(pe.entity, withTreeChildren(pe.node), LoadOptions{Context: lc, Registry: reg, Hierarchy: true})
	}

	l.loadAssociations()
	lc.path = nil
	doc.Associations().Update(doc.Root(), true, true)

	report := &LoadReport{
		Entities:     lc.Len(),
		Associations: doc.Associations().Len(),
		Errors:       lc.Errors(),
	}
	return doc, report, nil
}

// withTreeChildren returns the node record, or a copy listing the nested
// subtrees as children when the record carries no children key.
func withTreeChildren(n *Node) Record {
	if _, ok := n.Record[KeyChildren]; ok || len(n.Children) == 0 {
		return n.Record
	}
	rec := n.Record.Clone()
	children := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		if id := c.Record.ID(); id != "" {
			children = append(children, id)
		}
	}
	rec[KeyChildren] = children
	return rec
}

type loader struct {
	doc     *domain.Document
	reg     *domain.Registry
	lc      *LoadContext
	pending []pending
	assocs  []pendingAssoc
}

func (l *loader) construct(n *Node, path []string) {
	l.lc.path = path
	rec := n.Record
	id := rec.ID()
	info, ok := l.reg.Class(rec.Type())
	if !ok {
		l.lc.Fail(CategoryUnknownType, id, fmt.Sprintf("type %q", rec.Type()))
		l.skipSubtree(n)
		return
	}
	if id != "" && l.lc.Has(id) {
		l.lc.Fail(CategoryDuplicateID, id, "")
		l.skipSubtree(n)
		return
	}
	if id == "" {
		id = l.doc.IDs().Generate("", string(info.Family))
	}
	e := info.New(id)
	if err := l.doc.Adopt(e); err != nil {
		l.lc.Fail(CategoryDuplicateID, id, err.Error())
		l.skipSubtree(n)
		return
	}
	l.lc.Add(e)
	l.pending = append(l.pending, pending{entity: e, node: n, path: append([]string(nil), path...)})
	l.collectAssocs(n, path)
	l.constructChildren(n, path)
}

// constructChildren builds n's subtrees. Paths index the JSON array, where
// element 0 is the record and associations precede children.
func (l *loader) constructChildren(n *Node, path []string) {
	for i, child := range n.Children {
		l.construct(child, append(append([]string(nil), path...), fmt.Sprintf("[%d]", i+1+len(n.Associations))))
	}
}

func (l *loader) collectAssocs(n *Node, path []string) {
	for i, a := range n.Associations {
		p := append(append([]string(nil), path...), fmt.Sprintf("[%d]", i+1))
		l.assocs = append(l.assocs, pendingAssoc{rec: a, path: p})
	}
}

func (l *loader) skipSubtree(n *Node) {
	l.lc.skip(n.Record.ID())
	for _, c := range n.Children {
		l.skipSubtree(c)
	}
}

func (l *loader) loadAssociations() {
	records := make([]domain.AssociationRecord, 0, len(l.assocs))
	for i := range l.assocs {
		rec := l.assocs[i].rec
		if rec.ID == "" || !l.doc.IDs().Reserve(rec.ID) {
			rec.ID = l.doc.IDs().Generate(rec.ID, domain.KindAssociation)
		}
		records = append(records, rec)
	}
	issues := l.doc.Associations().Load(records, l.reg, l.lc)
	for _, issue := range issues {
		l.lc.path = l.assocs[issue.Index].path
		if issue.Unknown {
			l.doc.IDs().Release(issue.ID)
			l.lc.Fail(CategoryUnknownType, issue.ID, fmt.Sprintf("association type %q", issue.Type))
			continue
		}
		for _, id := range issue.Missing {
			if l.lc.skipped(id) {
				l.lc.Fail(CategoryUnresolvedRef, issue.ID, "reference to skipped entity "+id)
				continue
			}
			l.lc.Fail(CategoryUnresolvedRef, issue.ID, "missing entity "+id)
		}
	}
}
