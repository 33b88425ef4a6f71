// Package signature describes the call shapes that count as assertions and
// the module names whose imports bind them.
//
// A signature is written the way the Node.js documentation writes it:
//
//	assert.equal(actual, expected, [message])
//
// Bracketed parameters are optional. A call matches a signature when its
// callee path is the same and its argument count lies between the number of
// required parameters and the total number of parameters.
package signature

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPattern is returned when a textual signature cannot be parsed.
var ErrInvalidPattern = errors.New("invalid signature pattern")

// Param is one formal parameter of a signature.
type Param struct {
	Name     string
	Optional bool
}

// Signature is a single recognised call shape.
type Signature struct {
	// Callee is the member path of the called function, e.g. ["assert", "equal"].
	Callee []string
	Params []Param
}

// Parse reads a textual pattern such as `assert.throws(block, [error], [message])`.
func Parse(pattern string) (Signature, error) {
	p := strings.TrimSpace(pattern)
	open := strings.IndexByte(p, '(')
	if open <= 0 || !strings.HasSuffix(p, ")") {
		return Signature{}, fmt.Errorf("%w: %q: expected callee(params)", ErrInvalidPattern, pattern)
	}

	callee := strings.Split(strings.TrimSpace(p[:open]), ".")
	for _, seg := range callee {
		if !isIdentifier(seg) {
			return Signature{}, fmt.Errorf("%w: %q: bad callee segment %q", ErrInvalidPattern, pattern, seg)
		}
	}

	var params []Param
	inner := strings.TrimSpace(p[open+1 : len(p)-1])
	if inner != "" {
		sawOptional := false
		for _, raw := range strings.Split(inner, ",") {
			raw = strings.TrimSpace(raw)
			param := Param{Name: raw}
			if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
				param = Param{Name: strings.TrimSpace(raw[1 : len(raw)-1]), Optional: true}
			}
			if !isIdentifier(param.Name) {
				return Signature{}, fmt.Errorf("%w: %q: bad parameter %q", ErrInvalidPattern, pattern, raw)
			}
			if !param.Optional && sawOptional {
				return Signature{}, fmt.Errorf("%w: %q: required parameter %q after optional one", ErrInvalidPattern, pattern, param.Name)
			}
			sawOptional = sawOptional || param.Optional
			params = append(params, param)
		}
	}

	return Signature{Callee: callee, Params: params}, nil
}

// MustParse is like Parse but panics on error. Used for the built-in table.
func MustParse(pattern string) Signature {
	sig, err := Parse(pattern)
	if err != nil {
		panic(err)
	}
	return sig
}

// Required returns the number of non-optional parameters.
func (s Signature) Required() int {
	n := 0
	for _, p := range s.Params {
		if !p.Optional {
			n++
		}
	}
	return n
}

// AcceptsArity reports whether a call with n arguments fits the signature.
func (s Signature) AcceptsArity(n int) bool {
	return n >= s.Required() && n <= len(s.Params)
}

// Root is the first segment of the callee path.
func (s Signature) Root() string {
	return s.Callee[0]
}

// HasPrefix reports whether the callee path starts with prefix.
func (s Signature) HasPrefix(prefix []string) bool {
	if len(prefix) > len(s.Callee) {
		return false
	}
	for i := range prefix {
		if s.Callee[i] != prefix[i] {
			return false
		}
	}
	return true
}

// String renders the signature back into pattern form.
func (s Signature) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(s.Callee, "."))
	b.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		if p.Optional {
			b.WriteString("[" + p.Name + "]")
		} else {
			b.WriteString(p.Name)
		}
	}
	b.WriteByte(')')
	return b.String()
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
