package shared

// Capability is the kind of code a line must receive
type Capability string

const (
	CapabilitySMS   Capability = "sms"
	CapabilityVoice Capability = "voice"
)

// Valid reports whether c is a known capability
func (c Capability) Valid() bool {
	return c == CapabilitySMS || c == CapabilityVoice
}

// Plan is the user's pricing plan, carried in the auth token
type Plan string

const (
	PlanPayAsYouGo Plan = "payg"
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Valid reports whether p is a known plan
func (p Plan) Valid() bool {
	switch p {
	case PlanPayAsYouGo, PlanStarter, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)
