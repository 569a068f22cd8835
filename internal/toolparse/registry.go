// Package toolparse implements the Tool-Call Parser Registry (C4): a
// chain-of-responsibility over textual tool-call dialects, per SPEC_FULL
// §4.4. The teacher has no equivalent (its streaming handlers only ever
// consume native structured tool_calls), so this registry is designed
// directly from the spec, in the same "list of small interfaces, explicit
// ordering" idiom the teacher uses for its smart_routing operation
// registry (AllOperations/SmartOpDefinition).
package toolparse

// Match is the result of a successful Parse: the recognized call plus the
// byte range in the scanned buffer it consumed.
type Match struct {
	Name          string
	ArgumentsJSON string
	ConsumedEnd   int // exclusive end offset in the scanned buffer
}

// Dialect is one textual tool-call syntax the registry knows how to
// recognize. detect/parse per §4.4's contract.
type Dialect interface {
	// Name identifies the dialect for logging/config.
	Name() string
	// Detect reports whether buf, scanned from offset, contains this
	// dialect's opening delimiter.
	Detect(buf string, from int) (start int, ok bool)
	// Parse attempts a full parse starting at start; ok is false if the
	// closing delimiter hasn't appeared yet (partial — try again later).
	Parse(buf string, start int) (Match, bool)
}

// Registry holds an ordered list of dialects, strictest first, per §4.4.
// Selection: the dialect whose opening delimiter appears earliest in the
// buffer wins; registry order only breaks a tie between dialects detected
// at the same offset. Within one dialect, the earliest match position wins
// (Detect returns the first occurrence).
type Registry struct {
	dialects []Dialect
}

// Default returns the registry with the spec's default ordering:
// tagged-JSON, named-function, bracketed, bare-JSON-fence. Native
// structured tool_calls never reach this registry — they're handled
// directly by the stream transformer before any text is scanned.
func Default() *Registry {
	return &Registry{dialects: []Dialect{
		TaggedJSON{},
		NamedFunction{},
		Bracketed{},
		BareJSONFence{},
	}}
}

// New builds a registry with a caller-supplied ordering, for
// configuration-selected per-backend dialect priority (§9 design notes:
// "configuration selects the active ordering per backend").
func New(dialects ...Dialect) *Registry {
	return &Registry{dialects: dialects}
}

// Scan re-scans buf starting at the given offset, picks the dialect with
// the earliest-positioned Detect hit, and returns that dialect's Parse
// result; other dialects are not tried. It returns ok=false when no
// dialect detects an opening delimiter, or when the picked dialect cannot
// parse yet (e.g. its closing delimiter hasn't arrived) — the caller
// should re-scan once more text has arrived.
func (r *Registry) Scan(buf string, from int) (Match, bool) {
	bestStart := -1
	var bestDialect Dialect
	for _, d := range r.dialects {
		start, ok := d.Detect(buf, from)
		if !ok {
			continue
		}
		if bestStart == -1 || start < bestStart {
			bestStart = start
			bestDialect = d
		}
	}
	if bestStart == -1 {
		return Match{}, false
	}
	return bestDialect.Parse(buf, bestStart)
}
