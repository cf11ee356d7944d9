package csrf

import "strings"

// Scope binds a token either to the whole session or to one named form.
type Scope string

// GlobalScope tokens are reusable until they age out.
const GlobalScope Scope = "global"

const formPrefix = "form:"

// FormScope returns the single-use scope for a named form.
func FormScope(name string) Scope {
	return Scope(formPrefix + strings.TrimSpace(name))
}

// IsForm reports whether tokens of this scope are consumed on success.
func (s Scope) IsForm() bool {
	return strings.HasPrefix(string(s), formPrefix)
}

// Kind is the low-cardinality label used for metrics.
func (s Scope) Kind() string {
	if s.IsForm() {
		return "form"
	}
	return "global"
}

func (s Scope) valid() bool {
	return s == GlobalScope || (s.IsForm() && len(s) > len(formPrefix))
}
