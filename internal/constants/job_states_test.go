package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_ForwardOnly(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusExtracting))
	assert.True(t, CanTransition(StatusExtracting, StatusExtracted))
	assert.True(t, CanTransition(StatusAnalyzed, StatusImproving))
	assert.True(t, CanTransition(StatusImproving, StatusDone))

	// 不允许回退或跳级
	assert.False(t, CanTransition(StatusExtracted, StatusPending))
	assert.False(t, CanTransition(StatusPending, StatusAnalyzing))
	assert.False(t, CanTransition(StatusDone, StatusPending))
}

func TestCanTransition_FailedFromAnyNonTerminal(t *testing.T) {
	for _, from := range []string{
		StatusPending, StatusExtracting, StatusExtracted,
		StatusAnalyzing, StatusAnalyzed, StatusImproving,
	} {
		assert.True(t, CanTransition(from, StatusFailed), from)
	}
	// 终态不再流转
	assert.False(t, CanTransition(StatusDone, StatusFailed))
	assert.False(t, CanTransition(StatusFailed, StatusExtracting))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StatusDone))
	assert.True(t, IsTerminal(StatusFailed))
	assert.False(t, IsTerminal(StatusPending))
	assert.False(t, IsTerminal(StatusAnalyzing))
}

func TestIsStatusAllowed(t *testing.T) {
	assert.True(t, IsStatusAllowed(StatusPending, AllowedStatusesForExtraction))
	assert.True(t, IsStatusAllowed(StatusDone, AllowedStatusesForExtraction))
	assert.True(t, IsStatusAllowed(StatusDone, AllowedStatusesForAnalysis))
	assert.False(t, IsStatusAllowed(StatusFailed, AllowedStatusesForAnalysis))
	assert.False(t, IsStatusAllowed(StatusAnalyzing, AllowedStatusesForExtraction))
}
