// Package postproc computes the response's cost estimate and privacy
// classification after inference.
package postproc

import "math"

// Privacy levels reported to clients.
const (
	PrivacyHigh       = "HIGH"        // served locally, nothing left the premises
	PrivacyBalanced   = "BALANCED"    // cloud, but PII was masked out first
	PrivacyCloudHeavy = "CLOUD_HEAVY" // cloud with no redactions
)

// Pricing holds the per-1k-token rates used for cloud cost estimates.
type Pricing struct {
	Per1KInput  float64
	Per1KOutput float64
}

// EstimateCost returns the estimated cost of a request in USD, rounded to
// six decimals. Local inference is free; cloud cost is the compressed
// prompt tokens at the input rate plus the provider-reported usage at the
// output rate.
func EstimateCost(p Pricing, compressedTokens, usageTokens int, route string) float64 {
	if route == "LOCAL" {
		return 0
	}
	inputCost := float64(compressedTokens) / 1000 * p.Per1KInput
	outputCost := float64(usageTokens) / 1000 * p.Per1KOutput
	return math.Round((inputCost+outputCost)*1e6) / 1e6
}

// PrivacyLevel classifies how much of the request left the premises:
// HIGH for local inference, BALANCED for cloud with PII masked, CLOUD_HEAVY
// for cloud with nothing redacted.
func PrivacyLevel(route string, redactionCount int) string {
	if route == "LOCAL" {
		return PrivacyHigh
	}
	if redactionCount > 0 {
		return PrivacyBalanced
	}
	return PrivacyCloudHeavy
}
