package reconciliation

import (
	"regexp"
	"strings"
	"sync"
)

const (
	placeholderUnit   = "unit_number"
	placeholderTenant = "tenant_name"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// ReferenceParts is what a payer's account reference says about the target.
type ReferenceParts struct {
	UnitNumber string
	TenantName string
	// Matched is false when the reference did not follow the template and
	// the raw reference was used for both fragments.
	Matched bool
}

var (
	templateCacheMu sync.RWMutex
	templateCache   = map[string]*regexp.Regexp{}
)

// compileTemplate turns "UNIT-{unit_number}" into ^UNIT\-(?P<unit_number>.+?)$,
// case-insensitive. Unknown placeholders match anything.
func compileTemplate(tmpl string) (*regexp.Regexp, error) {
	templateCacheMu.RLock()
	re, ok := templateCache[tmpl]
	templateCacheMu.RUnlock()
	if ok {
		return re, nil
	}

	var b strings.Builder
	b.WriteString(`(?i)^\s*`)
	seen := map[string]bool{}
	last := 0
	for _, m := range placeholderRe.FindAllStringSubmatchIndex(tmpl, -1) {
		b.WriteString(regexp.QuoteMeta(tmpl[last:m[0]]))
		name := tmpl[m[2]:m[3]]
		switch {
		case (name == placeholderUnit || name == placeholderTenant) && !seen[name]:
			seen[name] = true
			b.WriteString(`(?P<` + name + `>.+?)`)
		default:
			b.WriteString(`.*?`)
		}
		last = m[1]
	}
	b.WriteString(regexp.QuoteMeta(tmpl[last:]))
	b.WriteString(`\s*$`)

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	templateCacheMu.Lock()
	templateCache[tmpl] = re
	templateCacheMu.Unlock()
	return re, nil
}

// ParseReference reverses the owner's reference template.
func ParseReference(tmpl, ref string) ReferenceParts {
	ref = strings.TrimSpace(ref)
	fallback := ReferenceParts{UnitNumber: ref, TenantName: ref}
	if ref == "" || tmpl == "" {
		return fallback
	}
	re, err := compileTemplate(tmpl)
	if err != nil {
		return fallback
	}
	m := re.FindStringSubmatch(ref)
	if m == nil {
		return fallback
	}
	out := ReferenceParts{Matched: true}
	for i, name := range re.SubexpNames() {
		switch name {
		case placeholderUnit:
			out.UnitNumber = strings.TrimSpace(m[i])
		case placeholderTenant:
			out.TenantName = strings.TrimSpace(m[i])
		}
	}
	return out
}

// RenderReference fills the template for outbound push payments. Unknown
// placeholders are left as written.
func RenderReference(tmpl, unitNumber, tenantName string) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(p string) string {
		switch p[1 : len(p)-1] {
		case placeholderUnit:
			return unitNumber
		case placeholderTenant:
			return tenantName
		}
		return p
	})
}
