package types

// Identity is the authenticated principal of a single request. It is built
// from a verified token and never mutated afterwards.
type Identity struct {
	Subject    string
	Role       Role
	Department string
}

// HasRole reports whether the identity carries the given role. An identity
// without a role claim has no permissions.
func (i Identity) HasRole(role Role) bool {
	return i.Role != "" && i.Role == role
}
