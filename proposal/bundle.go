package proposal

// Bundle is the typed collection of proposals a commit gathers before
// filtering: the ones it references by hash plus the ones it carries
// by value. It mirrors aws-mls's ProposalBundle (filtering.rs) closely
// enough that the proposalfilter and treeeditor packages read like a
// direct port of that file's control flow, generalized from Rust
// generics to Go's simpler "filter by Type tag" style since this
// module has a small, closed set of proposal shapes.
type Bundle struct {
	items []Info
}

// NewBundle returns an empty Bundle.
func NewBundle() *Bundle { return &Bundle{} }

// Add appends info to the bundle.
func (b *Bundle) Add(info Info) { b.items = append(b.items, info) }

// Len returns the number of proposals currently in the bundle.
func (b *Bundle) Len() int { return len(b.items) }

// Clone returns a shallow copy of the bundle: a new backing slice with
// the same Info values, safe to filter independently of the original.
func (b *Bundle) Clone() *Bundle {
	c := &Bundle{items: make([]Info, len(b.items))}
	copy(c.items, b.items)
	return c
}

// All returns every proposal in the bundle, in insertion order. The
// returned slice is a copy; mutating it does not affect the bundle.
func (b *Bundle) All() []Info {
	out := make([]Info, len(b.items))
	copy(out, b.items)
	return out
}

// ByType returns every proposal of the given type, in insertion order.
func (b *Bundle) ByType(t Type) []Info {
	var out []Info
	for _, it := range b.items {
		if it.Proposal.Type == t {
			out = append(out, it)
		}
	}
	return out
}

// CountByType returns how many proposals of the given type the bundle
// holds.
func (b *Bundle) CountByType(t Type) int {
	n := 0
	for _, it := range b.items {
		if it.Proposal.Type == t {
			n++
		}
	}
	return n
}

// RetainByType keeps only the proposals of type t for which keep
// returns true; proposals of any other type are left untouched.
func (b *Bundle) RetainByType(t Type, keep func(Info) bool) {
	out := b.items[:0]
	for _, it := range b.items {
		if it.Proposal.Type == t && !keep(it) {
			continue
		}
		out = append(out, it)
	}
	b.items = out
}

// RemoveAllOfType drops every proposal of the given type from the
// bundle.
func (b *Bundle) RemoveAllOfType(t Type) {
	b.RetainByType(t, func(Info) bool { return false })
}

// RetainCustom keeps only the custom proposals for which keep returns
// true, leaving every default-type proposal untouched.
func (b *Bundle) RetainCustom(keep func(Info) bool) {
	out := b.items[:0]
	for _, it := range b.items {
		if it.Proposal.Type.IsDefault() || keep(it) {
			out = append(out, it)
		}
	}
	b.items = out
}

// ProposalTypes returns the distinct proposal types present in the
// bundle, in first-seen order.
func (b *Bundle) ProposalTypes() []Type {
	seen := map[Type]bool{}
	var out []Type
	for _, it := range b.items {
		if !seen[it.Proposal.Type] {
			seen[it.Proposal.Type] = true
			out = append(out, it.Proposal.Type)
		}
	}
	return out
}

// CustomProposalTypes returns the distinct non-default proposal types
// present in the bundle.
func (b *Bundle) CustomProposalTypes() []Type {
	var out []Type
	for _, t := range b.ProposalTypes() {
		if !t.IsDefault() {
			out = append(out, t)
		}
	}
	return out
}

// GroupContextExtensionsProposal returns the bundle's single
// GroupContextExtensions proposal, if present. Callers that need to
// enforce "at most one" should check CountByType first; this returns
// the first one found.
func (b *Bundle) GroupContextExtensionsProposal() (Info, bool) {
	items := b.ByType(TypeGroupContextExtensions)
	if len(items) == 0 {
		return Info{}, false
	}
	return items[0], true
}

// ClearGroupContextExtensions drops every GroupContextExtensions
// proposal from the bundle, used when a group-context-extensions
// capability negotiation falls back to "no change" (spec's
// try-new-capabilities-then-fall-back flow).
func (b *Bundle) ClearGroupContextExtensions() {
	b.RemoveAllOfType(TypeGroupContextExtensions)
}
