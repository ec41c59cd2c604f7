package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsInExpectedLocation(t *testing.T) {
	assert.True(t, IsInExpectedLocation("LH-101", ""))
	assert.True(t, IsInExpectedLocation(" lh-101 ", "LH-101"))
	assert.False(t, IsInExpectedLocation("Canteen", "LH-101"))
}

func TestComplianceMessage(t *testing.T) {
	assert.Equal(t, "Free Period", ComplianceMessage(true, "", ""))
	assert.Equal(t, "Compliant", ComplianceMessage(true, "LH-101", "Math"))
	assert.Equal(t, "TRUANCY: Expected in LH-101 for Math", ComplianceMessage(false, "LH-101", "Math"))
	assert.Equal(t, "TRUANCY: Expected in LH-101", ComplianceMessage(false, "LH-101", ""))
}

func TestRequiresDebounce(t *testing.T) {
	assert.False(t, RequiresDebounce(29, DefaultDebounceThreshold))
	assert.True(t, RequiresDebounce(30, DefaultDebounceThreshold))
	assert.True(t, RequiresDebounce(31, DefaultDebounceThreshold))
}

func TestNoiseRules(t *testing.T) {
	r := DefaultNoiseRules()

	assert.True(t, r.ShouldTrigger(0.5, true))
	assert.False(t, r.ShouldTrigger(0.5, false))
	assert.False(t, r.ShouldTrigger(0.40, true))
	assert.True(t, r.ShouldTrigger(0.81, false))

	assert.Equal(t, SeverityCritical, r.Severity(0.9))
	assert.Equal(t, SeverityWarning, r.Severity(0.85))

	assert.True(t, ShouldDebounce(1))
	assert.False(t, ShouldDebounce(0))
}

func TestSeverity_Recipient(t *testing.T) {
	assert.Equal(t, "Security", SeveritySecurity.Recipient())
	assert.Equal(t, "Faculty", SeverityWarning.Recipient())
	assert.Equal(t, "Dean", SeverityCritical.Recipient())
	assert.Equal(t, "Disciplinary Committee", SeverityGrooming.Recipient())
	assert.Equal(t, "Admin", Severity("Other").Recipient())
}

func TestAlert_RequiresImmediateAction(t *testing.T) {
	assert.True(t, Alert{Severity: SeveritySecurity}.RequiresImmediateAction())
	assert.True(t, Alert{Severity: SeverityCritical}.RequiresImmediateAction())
	assert.False(t, Alert{Severity: SeverityWarning}.RequiresImmediateAction())
	assert.False(t, Alert{Severity: SeverityGrooming}.RequiresImmediateAction())
}
