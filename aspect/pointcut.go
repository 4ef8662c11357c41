package aspect

import (
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// Candidate is an invocable member offered to a Pointcut during traversal.
type Candidate struct {
	// Name is the member name at the position where the candidate was
	// found: a struct field name, a map key, or the function's own name
	// for a directly woven target. Nameless candidates carry "".
	Name string

	// Target is the reference that would be woven on a match.
	Target any
}

// Pointcut decides which candidates a weave applies to.
//
// Match errors abort the surrounding weave or unweave and surface to the
// caller unchanged. Joinpoints already processed before the error stay as
// they are.
type Pointcut interface {
	Match(c Candidate) (bool, error)
}

type always struct{}

func (always) Match(Candidate) (bool, error) { return true, nil }

// Always matches every candidate. It is the default pointcut.
func Always() Pointcut {
	return always{}
}

type namePattern struct {
	re *regexp.Regexp
}

func (p namePattern) Match(c Candidate) (bool, error) {
	return p.re.MatchString(norm.NFC.String(c.Name)), nil
}

// NamePattern matches candidate names against expr, anchored at the start
// of the name. Names are NFC-normalized before matching so composed and
// decomposed spellings of the same name behave identically. Nameless
// candidates are matched against the empty string.
//
// An invalid expression yields an INVALID_POINTCUT configuration error.
func NamePattern(expr string) (Pointcut, error) {
	re, err := regexp.Compile(`\A(?:` + expr + `)`)
	if err != nil {
		return nil, NewPointcutError(expr, err)
	}
	return namePattern{re: re}, nil
}

type predicate struct {
	fn func(c Candidate) (bool, error)
}

func (p predicate) Match(c Candidate) (bool, error) {
	return p.fn(c)
}

// Predicate adapts fn into a Pointcut. Errors returned by fn propagate to
// the weave caller as-is.
func Predicate(fn func(c Candidate) (bool, error)) Pointcut {
	return predicate{fn: fn}
}
