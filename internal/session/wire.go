package session

// Wire message types used by the agent service.
const (
	WireHuman = "human"
	WireAI    = "ai"
	WireError = "error"
)

// RoleFromWire maps a history entry's "type" to a Role. Anything that is not
// explicitly human or error is treated as assistant output (the service also
// emits "system" and "tool" entries).
func RoleFromWire(t string) Role {
	switch t {
	case WireHuman:
		return RoleHuman
	case WireError:
		return RoleSystemError
	default:
		return RoleAssistant
	}
}

// WireType is the inverse of RoleFromWire.
func (r Role) WireType() string {
	switch r {
	case RoleHuman:
		return WireHuman
	case RoleSystemError:
		return WireError
	default:
		return WireAI
	}
}
