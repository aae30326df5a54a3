package knowledge

import "fmt"

// Kind identifies a feedback event variant. The set is closed: every Kind has
// an entry in the confidence rule table.
type Kind int

const (
	KindLike Kind = iota
	KindDislike
	KindNote
)

// NoteKind classifies a note annotation. Unknown kinds are accepted under the
// permissive policy and treated as generic annotations with a lower seed.
type NoteKind string

const (
	NoteEnhancement   NoteKind = "enhancement"
	NoteClarification NoteKind = "clarification"
	NoteCorrection    NoteKind = "correction"
	NoteContext       NoteKind = "context"
	NoteExample       NoteKind = "example"
)

// knownNoteKinds are the note kinds the strict validation policy accepts.
var knownNoteKinds = map[NoteKind]bool{
	NoteEnhancement:   true,
	NoteClarification: true,
	NoteCorrection:    true,
	NoteContext:       true,
	NoteExample:       true,
}

// Event is one transient feedback occurrence. It is retained only in the
// append-only feedback log; its durable effect is the learned entry mutation
// computed by the rule table.
type Event struct {
	DocumentID string
	Question   string
	Answer     string
	Kind       Kind
	NoteKind   NoteKind // set when Kind == KindNote
	Info       string   // additional info (like/dislike) or note content
}

// LogTag returns the kind tag stored in the feedback log.
func (e Event) LogTag() string {
	switch e.Kind {
	case KindLike:
		return "like"
	case KindDislike:
		return "dislike"
	case KindNote:
		return fmt.Sprintf("note_%s", e.NoteKind)
	}
	return "unknown"
}
