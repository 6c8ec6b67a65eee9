package leafnode

// ValidationContext selects which signature content, lifetime check,
// and leaf-source tag a Validator expects, per spec §4.B.
type ValidationContext interface {
	isValidationContext()
	requiredSource() Source
}

// KeyPackageContext validates a leaf being added via a KeyPackage: the
// leaf must carry SourceKeyPackage and its lifetime is checked against
// CommitTime when provided.
type KeyPackageContext struct {
	CommitTime *int64 // unix seconds; nil skips the lifetime check
}

func (KeyPackageContext) isValidationContext()    {}
func (KeyPackageContext) requiredSource() Source  { return SourceKeyPackage }

// UpdateContext validates a leaf refreshed by an Update proposal from
// a specific member of a specific group.
type UpdateContext struct {
	GroupID     []byte
	SenderIndex uint32
	CommitTime  *int64
}

func (UpdateContext) isValidationContext()   {}
func (UpdateContext) requiredSource() Source { return SourceUpdate }

// CommitContext validates the committer's own new leaf, installed as
// part of applying its commit path.
type CommitContext struct {
	GroupID []byte
}

func (CommitContext) isValidationContext()   {}
func (CommitContext) requiredSource() Source { return SourceCommit }
