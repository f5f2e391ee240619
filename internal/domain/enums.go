package domain

// PaymentMethod selects the checkout completion path
type PaymentMethod string

const (
	PaymentMethodCOD     PaymentMethod = "COD"
	PaymentMethodGateway PaymentMethod = "GATEWAY"
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodGateway:
		return true
	default:
		return false
	}
}

// DeliveryMethod selects the shipping service level
type DeliveryMethod string

const (
	DeliveryMethodStandard DeliveryMethod = "STANDARD"
	DeliveryMethodExpress  DeliveryMethod = "EXPRESS"
)

// IsValid checks if the delivery method is valid
func (m DeliveryMethod) IsValid() bool {
	switch m {
	case DeliveryMethodStandard, DeliveryMethodExpress:
		return true
	default:
		return false
	}
}

// FlowPhase is the lifecycle state of a checkout flow
type FlowPhase string

const (
	FlowPhaseSelecting   FlowPhase = "SELECTING"
	FlowPhaseSubmitting  FlowPhase = "SUBMITTING"
	FlowPhaseCompleted   FlowPhase = "COMPLETED"
	FlowPhaseRedirecting FlowPhase = "REDIRECTING"
	FlowPhaseFailed      FlowPhase = "FAILED"
)

// CanTransitionTo checks if a phase transition is valid
func (p FlowPhase) CanTransitionTo(next FlowPhase) bool {
	switch p {
	case FlowPhaseSelecting:
		return next == FlowPhaseSubmitting
	case FlowPhaseSubmitting:
		return next == FlowPhaseCompleted ||
			next == FlowPhaseRedirecting ||
			next == FlowPhaseFailed
	case FlowPhaseFailed:
		// user may re-initiate after a failed submission
		return next == FlowPhaseSubmitting
	case FlowPhaseCompleted, FlowPhaseRedirecting:
		return false // terminal states
	default:
		return false
	}
}

// FlowDestination is where the app navigates after a submit settles
type FlowDestination string

const (
	DestinationSuccess  FlowDestination = "ORDER_SUCCESS"
	DestinationRedirect FlowDestination = "PAYMENT_REDIRECT"
	DestinationFailure  FlowDestination = "ORDER_FAILURE"
)
