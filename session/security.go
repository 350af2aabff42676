package session

// SecurityEventCallback receives security-relevant events such as
// "auth_succeeded" and "auth_failed".
type SecurityEventCallback func(event string, details map[string]any)

// emitSecurityEventLocked invokes the security callback if set.
// Caller MUST hold s.mu.
func (s *Session) emitSecurityEventLocked(event string, details map[string]any) {
	cb := s.securityCallback
	if cb != nil {
		cb(event, details)
	}
}
