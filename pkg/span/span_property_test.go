//go:build property
// +build property

package span

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestHashDeterminismProperty verifies Testable Property 2: hash(s) ==
// hash(clone(s)) for any span, across randomly generated titles/loglineIDs
// and tag sets.
func TestHashDeterminismProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("span hash is deterministic across clones", prop.ForAll(
		func(loglineID, title string, tags []string) bool {
			s := New(loglineID, title)
			for _, tag := range tags {
				if tag != "" {
					s.AddTag(tag)
				}
			}

			h1, err1 := s.Hash()
			clone := s.Clone()
			h2, err2 := clone.Hash()

			if err1 != nil || err2 != nil {
				return false
			}
			return h1 == h2
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestAddTagIdempotentProperty verifies tags behave as a set: inserting the
// same tag any number of times, in any order, converges to the same sorted,
// deduplicated slice.
func TestAddTagIdempotentProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("AddTag is idempotent and keeps tags sorted", prop.ForAll(
		func(tags []string) bool {
			s := New("alice", "demo")
			for _, tag := range tags {
				s.AddTag(tag)
			}
			firstPass := append([]string(nil), s.Tags...)

			// Re-adding every tag again must not change anything.
			for _, tag := range tags {
				s.AddTag(tag)
			}
			if len(firstPass) != len(s.Tags) {
				return false
			}
			for i := range firstPass {
				if firstPass[i] != s.Tags[i] {
					return false
				}
			}

			for i := 1; i < len(s.Tags); i++ {
				if s.Tags[i-1] >= s.Tags[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestSignatureClearedHashProperty verifies hash() ignores whatever
// Signature currently holds (it is always computed over the signing view
// with Signature nulled out), for arbitrary signature-like strings.
func TestSignatureClearedHashProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("hash is independent of the signature field", prop.ForAll(
		func(sig string) bool {
			s := New("alice", "demo")
			unsigned, err := s.Hash()
			if err != nil {
				return false
			}

			s.Sign(sig)
			signed, err := s.Hash()
			if err != nil {
				return false
			}
			return unsigned == signed
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
