package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeZeroesFactsWithoutLiteralEvidence(t *testing.T) {
	raw := Interpretation{
		Confidence: 0.9, ShouldStore: true,
		Facts: []Fact{
			{Key: "city", Value: "Paris", Confidence: 0.8, Evidence: "I live in Paris"},
			{Key: "job", Value: "engineer", Confidence: 0.8, Evidence: "not in the message"},
		},
	}
	out := sanitize(raw, "I live in Paris and work remotely")
	assert.Equal(t, 0.8, out.Facts[0].Confidence)
	assert.Equal(t, 0.0, out.Facts[1].Confidence)
}

func TestSanitizeForcesShouldStoreFalseBelowConfidenceFloor(t *testing.T) {
	raw := Interpretation{Confidence: 0.4, ShouldStore: true}
	out := sanitize(raw, "hello")
	assert.False(t, out.ShouldStore)
}

func TestSanitizeKeepsShouldStoreAboveFloor(t *testing.T) {
	raw := Interpretation{Confidence: 0.8, ShouldStore: true}
	out := sanitize(raw, "hello")
	assert.True(t, out.ShouldStore)
}

func TestSkippedCarriesErrorOnly(t *testing.T) {
	s := Skipped()
	assert.False(t, s.ShouldStore)
	assert.Equal(t, "memory_interpreter_skipped_semantic_resilience", s.Error)
}
