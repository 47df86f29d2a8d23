package restore

// Outcome classifies what happened to one archive member.
type Outcome int

const (
	// Extracted means the member was written to the destination.
	Extracted Outcome = iota
	// SkippedIdentical means an identical copy already existed.
	SkippedIdentical
	// SkippedUnsafe means the member's path failed a security check.
	SkippedUnsafe
	// Failed means extraction was attempted and did not complete.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Extracted:
		return "extracted"
	case SkippedIdentical:
		return "skipped"
	case SkippedUnsafe:
		return "unsafe"
	default:
		return "failed"
	}
}

// Result is the outcome for one member with a human-readable reason.
type Result struct {
	Member  string
	Outcome Outcome
	Reason  string
}

// Tally accumulates member outcomes across a whole run. Unsafe members
// count as errors: a run that skipped them for safety did not succeed.
type Tally struct {
	Extracted int
	Skipped   int
	Errors    int
}

func (t *Tally) add(o Outcome) {
	switch o {
	case Extracted:
		t.Extracted++
	case SkippedIdentical:
		t.Skipped++
	default:
		t.Errors++
	}
}
