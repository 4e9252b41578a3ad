package postproc_test

import (
	"testing"

	"github.com/Aryannovice/metamorphosis/internal/gateway/postproc"
)

var pricing = postproc.Pricing{Per1KInput: 0.0005, Per1KOutput: 0.0015}

func TestEstimateCostLocalIsFree(t *testing.T) {
	if got := postproc.EstimateCost(pricing, 100000, 100000, "LOCAL"); got != 0 {
		t.Errorf("local cost = %v, want 0", got)
	}
}

func TestEstimateCostCloud(t *testing.T) {
	// 2000 input tokens at 0.0005/1k + 1000 output tokens at 0.0015/1k.
	got := postproc.EstimateCost(pricing, 2000, 1000, "CLOUD")
	want := 0.0025
	if got != want {
		t.Errorf("cost = %v, want %v", got, want)
	}
}

func TestEstimateCostRounding(t *testing.T) {
	got := postproc.EstimateCost(pricing, 333, 777, "CLOUD")
	// 0.0001665 + 0.0011655 = 0.001332; must come back with at most six decimals.
	if got != 0.001332 {
		t.Errorf("cost = %v, want 0.001332", got)
	}
}

func TestEstimateCostZeroTokens(t *testing.T) {
	if got := postproc.EstimateCost(pricing, 0, 0, "CLOUD"); got != 0 {
		t.Errorf("cost = %v, want 0", got)
	}
}

func TestPrivacyLevel(t *testing.T) {
	tests := []struct {
		route      string
		redactions int
		want       string
	}{
		{"LOCAL", 0, postproc.PrivacyHigh},
		{"LOCAL", 5, postproc.PrivacyHigh},
		{"CLOUD", 3, postproc.PrivacyBalanced},
		{"CLOUD", 0, postproc.PrivacyCloudHeavy},
	}
	for _, tc := range tests {
		if got := postproc.PrivacyLevel(tc.route, tc.redactions); got != tc.want {
			t.Errorf("PrivacyLevel(%s, %d) = %s, want %s", tc.route, tc.redactions, got, tc.want)
		}
	}
}
