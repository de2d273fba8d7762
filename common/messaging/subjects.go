package messaging

// Subject constants for the security message bus.
// Follow the pattern: {domain}.{action}.{resource}
const (
	// SubjectSecurityEventsCritical carries critical security events as they are recorded.
	SubjectSecurityEventsCritical = "security.events.critical"

	// SubjectSecurityBlocksCreated announces identities placed in the block registry.
	SubjectSecurityBlocksCreated = "security.blocks.created"
)

// Header keys attached to security messages.
const (
	HeaderEventType = "Sos-Event-Type"
	HeaderSeverity  = "Sos-Severity"
)
