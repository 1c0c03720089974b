package authcore

// AuthState is the precondition gate's verdict on a resolved user. It is a
// tagged value rather than two booleans so the contradictory combination
// (needs password setup and needs two-factor at once) cannot be
// represented: two-factor is not evaluated until a password exists.
type AuthState uint8

const (
	// StateAuthenticated means both preconditions hold and the session is
	// fully authenticated.
	StateAuthenticated AuthState = iota
	// StateNeedsPasswordSetup means the user has no password hash; the
	// session is parked until one is set.
	StateNeedsPasswordSetup
	// StateNeedsTwoFactor means two-factor is enabled and no valid
	// verification token was found for this sign-in.
	StateNeedsTwoFactor
)

// NeedsPasswordSetup reports whether the session is parked in the
// password-setup sub-state.
func (s AuthState) NeedsPasswordSetup() bool {
	return s == StateNeedsPasswordSetup
}

// NeedsTwoFactor reports whether the session is parked in the two-factor
// sub-state.
func (s AuthState) NeedsTwoFactor() bool {
	return s == StateNeedsTwoFactor
}

// Authenticated reports whether the session cleared both preconditions.
func (s AuthState) Authenticated() bool {
	return s == StateAuthenticated
}

func (s AuthState) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateNeedsPasswordSetup:
		return "needs-password-setup"
	case StateNeedsTwoFactor:
		return "needs-two-factor"
	default:
		return "unknown"
	}
}
