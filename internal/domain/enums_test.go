package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlowPhaseTransitions(t *testing.T) {
	assert.True(t, FlowPhaseSelecting.CanTransitionTo(FlowPhaseSubmitting))
	assert.False(t, FlowPhaseSelecting.CanTransitionTo(FlowPhaseCompleted))

	assert.True(t, FlowPhaseSubmitting.CanTransitionTo(FlowPhaseCompleted))
	assert.True(t, FlowPhaseSubmitting.CanTransitionTo(FlowPhaseRedirecting))
	assert.True(t, FlowPhaseSubmitting.CanTransitionTo(FlowPhaseFailed))
	assert.False(t, FlowPhaseSubmitting.CanTransitionTo(FlowPhaseSelecting))

	// a failed submission may be retried
	assert.True(t, FlowPhaseFailed.CanTransitionTo(FlowPhaseSubmitting))
	assert.False(t, FlowPhaseFailed.CanTransitionTo(FlowPhaseCompleted))

	// terminal phases
	assert.False(t, FlowPhaseCompleted.CanTransitionTo(FlowPhaseSubmitting))
	assert.False(t, FlowPhaseRedirecting.CanTransitionTo(FlowPhaseSubmitting))
}

func TestMethodValidation(t *testing.T) {
	assert.True(t, PaymentMethodCOD.IsValid())
	assert.True(t, PaymentMethodGateway.IsValid())
	assert.False(t, PaymentMethod("PAYPAL").IsValid())

	assert.True(t, DeliveryMethodStandard.IsValid())
	assert.True(t, DeliveryMethodExpress.IsValid())
	assert.False(t, DeliveryMethod("").IsValid())
}
