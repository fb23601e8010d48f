package common

import "errors"

// ErrUnauthorized is returned when a caller fails a principal check.
var ErrUnauthorized = errors.New("unauthorized caller")

// RequirePrincipal verifies that the claimed caller matches the required
// principal. Keeping the check in one place makes the authorization policy
// auditable independent of the business logic that invokes it.
func RequirePrincipal(caller, required [20]byte) error {
	if caller != required {
		return ErrUnauthorized
	}
	return nil
}

// RequireMember verifies that the claimed caller appears in the supplied
// principal set.
func RequireMember(caller [20]byte, set [][20]byte) error {
	for _, member := range set {
		if member == caller {
			return nil
		}
	}
	return ErrUnauthorized
}
