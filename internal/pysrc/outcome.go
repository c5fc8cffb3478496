package pysrc

import "fmt"

// OutcomeKind classifies what happened to a single file during a parse
// batch. Per-file failures are values threaded through the reduction,
// never errors crossing the batch boundary.
type OutcomeKind int

const (
	OutcomeParsed OutcomeKind = iota
	OutcomeSyntaxError
	OutcomePathError
	OutcomeIOError
)

// Outcome records the result of parsing one file.
type Outcome struct {
	Kind    OutcomeKind
	Path    string
	Message string
	Line    int // 1-based, 0 when unknown
}

func Parsed(path string) Outcome {
	return Outcome{Kind: OutcomeParsed, Path: path}
}

func SyntaxError(path, message string, line int) Outcome {
	return Outcome{Kind: OutcomeSyntaxError, Path: path, Message: message, Line: line}
}

func PathError(path string) Outcome {
	return Outcome{Kind: OutcomePathError, Path: path, Message: "path outside configured roots"}
}

func IOError(path string, err error) Outcome {
	return Outcome{Kind: OutcomeIOError, Path: path, Message: err.Error()}
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeParsed:
		return "parsed"
	case OutcomeSyntaxError:
		if o.Line > 0 {
			return fmt.Sprintf("syntax error at %s:%d: %s", o.Path, o.Line, o.Message)
		}
		return fmt.Sprintf("syntax error at %s: %s", o.Path, o.Message)
	case OutcomePathError:
		return fmt.Sprintf("unresolved path %s", o.Path)
	default:
		return fmt.Sprintf("io error at %s: %s", o.Path, o.Message)
	}
}

// Tally counts outcomes by kind across a batch. The reconciliation
// invariant: discovered == Parsed + SyntaxErrors + PathErrors + IOErrors.
type Tally struct {
	Parsed       int
	SyntaxErrors int
	PathErrors   int
	IOErrors     int
}

// Add merges one outcome into the tally.
func (t Tally) Add(o Outcome) Tally {
	switch o.Kind {
	case OutcomeParsed:
		t.Parsed++
	case OutcomeSyntaxError:
		t.SyntaxErrors++
	case OutcomePathError:
		t.PathErrors++
	case OutcomeIOError:
		t.IOErrors++
	}
	return t
}

// Merge combines two tallies.
func (t Tally) Merge(other Tally) Tally {
	t.Parsed += other.Parsed
	t.SyntaxErrors += other.SyntaxErrors
	t.PathErrors += other.PathErrors
	t.IOErrors += other.IOErrors
	return t
}

// Total is the number of files accounted for.
func (t Tally) Total() int {
	return t.Parsed + t.SyntaxErrors + t.PathErrors + t.IOErrors
}

// Failed is the number of files excluded from results.
func (t Tally) Failed() int {
	return t.Total() - t.Parsed
}
