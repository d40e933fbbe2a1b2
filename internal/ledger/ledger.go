// Package ledger records which entities a maintenance action changed so
// that a later restore can undo exactly those changes and nothing else.
package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
)

// ErrEmptyFile is returned when a ledger contains no bytes at all. This
// happens when the capturing action created the ledger but never finished
// writing it, so nothing can safely be restored from it.
var ErrEmptyFile = errors.New("maintenance ledger is empty")

// Variant selects which entity kinds a ledger holds.
type Variant int

const (
	// VariantPrepare holds the nodes taken offline by prepare.
	VariantPrepare Variant = iota
	// VariantKill holds the workflows disabled and nodes taken offline by kill.
	VariantKill
)

func (v Variant) String() string {
	if v == VariantKill {
		return "kill"
	}
	return "prepare"
}

// EntityKind names a recorded set. The value is the document key.
type EntityKind string

const (
	Nodes     EntityKind = "DisabledNodes"
	Workflows EntityKind = "DisabledWorkflows"
)

func (v Variant) kinds() []EntityKind {
	if v == VariantKill {
		return []EntityKind{Workflows, Nodes}
	}
	return []EntityKind{Nodes}
}

type set struct {
	order []string
	seen  map[string]struct{}
}

func (s *set) add(id string) bool {
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// Ledger is an insertion-ordered set of identifiers per entity kind. It is
// not safe for concurrent use.
type Ledger struct {
	variant  Variant
	sets     map[EntityKind]*set
	fromKill bool
	ignored  int
}

// New returns an empty ledger.
func New(v Variant) *Ledger {
	l := &Ledger{variant: v, sets: make(map[EntityKind]*set)}
	for _, k := range v.kinds() {
		l.sets[k] = &set{seen: make(map[string]struct{})}
	}
	return l
}

// Variant returns the ledger variant.
func (l *Ledger) Variant() Variant { return l.variant }

// FromKill reports whether a prepare ledger was decoded from a kill
// document.
func (l *Ledger) FromKill() bool { return l.fromKill }

// Ignored returns how many workflows were dropped when a kill document was
// decoded as a prepare ledger.
func (l *Ledger) Ignored() int { return l.ignored }

func (l *Ledger) set(kind EntityKind) *set {
	s, ok := l.sets[kind]
	if !ok {
		panic(fmt.Sprintf("ledger: %s ledger does not hold %s", l.variant, kind))
	}
	return s
}

// Record adds id to the kind's set. It reports whether id was new.
func (l *Ledger) Record(kind EntityKind, id string) bool {
	return l.set(kind).add(id)
}

// Has reports whether id was recorded under kind.
func (l *Ledger) Has(kind EntityKind, id string) bool {
	_, ok := l.set(kind).seen[id]
	return ok
}

// Len returns the number of identifiers recorded under kind.
func (l *Ledger) Len(kind EntityKind) int {
	return len(l.set(kind).order)
}

// Empty reports whether nothing was recorded.
func (l *Ledger) Empty() bool {
	for _, s := range l.sets {
		if len(s.order) > 0 {
			return false
		}
	}
	return true
}

// All yields the identifiers recorded under kind in insertion order. The
// sequence can be ranged over any number of times.
func (l *Ledger) All(kind EntityKind) iter.Seq[string] {
	s := l.set(kind)
	return func(yield func(string) bool) {
		for _, id := range s.order {
			if !yield(id) {
				return
			}
		}
	}
}

func (l *Ledger) ids(kind EntityKind) []string {
	return append([]string{}, l.set(kind).order...)
}

// prepareDocument also reads DisabledWorkflows so that a kill ledger can be
// resumed as nodes-only. Encode never sets it.
type prepareDocument struct {
	DisabledNodes     []string  `json:"DisabledNodes"`
	DisabledWorkflows *[]string `json:"DisabledWorkflows,omitempty"`
}

type killDocument struct {
	DisabledWorkflows []string `json:"DisabledWorkflows"`
	DisabledNodes     []string `json:"DisabledNodes"`
}

// Encode renders the ledger as an indented JSON document.
func (l *Ledger) Encode() ([]byte, error) {
	var doc any
	switch l.variant {
	case VariantKill:
		doc = killDocument{DisabledWorkflows: l.ids(Workflows), DisabledNodes: l.ids(Nodes)}
	default:
		doc = prepareDocument{DisabledNodes: l.ids(Nodes)}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s ledger: %w", l.variant, err)
	}
	return append(data, '\n'), nil
}

// Decode parses a ledger document. Zero bytes yield ErrEmptyFile; a blank
// document, "null" or "{}" yield an empty ledger. Unknown keys and anything
// after the document are rejected. A prepare ledger decoded from a kill
// document keeps the nodes and counts the workflows as ignored.
func Decode(v Variant, data []byte) (*Ledger, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	l := New(v)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return l, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()

	switch v {
	case VariantKill:
		var doc killDocument
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode %s ledger: %w", v, err)
		}
		for _, id := range doc.DisabledWorkflows {
			l.Record(Workflows, id)
		}
		for _, id := range doc.DisabledNodes {
			l.Record(Nodes, id)
		}
	default:
		var doc prepareDocument
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode %s ledger: %w", v, err)
		}
		for _, id := range doc.DisabledNodes {
			l.Record(Nodes, id)
		}
		if doc.DisabledWorkflows != nil {
			l.fromKill = true
			l.ignored = len(*doc.DisabledWorkflows)
		}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode %s ledger: trailing data after document", v)
	}
	return l, nil
}
