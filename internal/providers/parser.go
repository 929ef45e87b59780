package providers

import "strings"

// ProviderRef names one configured provider, optionally bound to a key alias
// ("gemini:backup" reads LUDOLENS_GEMINI_KEY_BACKUP).
type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}

func (r ProviderRef) String() string {
	if r.KeyAlias == "" {
		return r.Name
	}
	return r.Name + ":" + r.KeyAlias
}

// ParseProviderList reads a failover chain such as "gemini|groq,mock". Both
// "|" and "," separate entries, names are case-insensitive and repeated
// entries are kept once. An empty list means the mock provider.
func ParseProviderList(raw string) []ProviderRef {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == '|' || r == ',' })
	out := make([]ProviderRef, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		name, alias, _ := strings.Cut(strings.TrimSpace(f), ":")
		ref := ProviderRef{
			Name:     strings.ToLower(strings.TrimSpace(name)),
			KeyAlias: strings.TrimSpace(alias),
		}
		if ref.Name == "" {
			continue
		}
		ref.Raw = ref.String()
		if _, dup := seen[ref.Raw]; dup {
			continue
		}
		seen[ref.Raw] = struct{}{}
		out = append(out, ref)
	}
	if len(out) == 0 {
		out = append(out, ProviderRef{Raw: "mock", Name: "mock"})
	}
	return out
}
