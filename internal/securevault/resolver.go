package securevault

import "github.com/systmms/secvault/internal/token"

var _ token.Resolver = (*SecretResolver)(nil)

// SecretResolver answers token substitution requests from a Vault.
type SecretResolver struct {
	vault *Vault
}

// IsInitialized implements token.Resolver.
func (r *SecretResolver) IsInitialized() bool {
	return r.vault.IsInitialized()
}

// IsTokenProtected reports whether value may be substituted. With an
// explicit protectedTokens list only those aliases qualify; otherwise any
// alias the registry holds does.
func (r *SecretResolver) IsTokenProtected(value string) bool {
	st := r.vault.state.Load()
	if st == nil {
		return false
	}
	if st.protected != nil {
		_, ok := st.protected[value]
		return ok
	}
	return st.registry.IsKnown(value)
}

// Resolve implements token.Resolver. A resolution error leaves the token
// value in place.
func (r *SecretResolver) Resolve(value string) string {
	resolved, err := r.vault.ResolveSecret(value)
	if err != nil {
		r.vault.logger.Warn("Cannot resolve secret %q: %v", value, err)
		return value
	}
	return resolved
}
