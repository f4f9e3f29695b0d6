package pool

import (
	"math"
	"testing"

	"github.com/riozmarkets/settlement/internal/domain"
)

func pos(option string, stake float64) domain.Position {
	return domain.Position{
		OptionChosen: option,
		Stake:        stake,
		Status:       domain.PositionStatusActive,
	}
}

func TestCompute_TwoSidedMarket(t *testing.T) {
	// 700 on "sim", 300 on "nao", 20% fee on the losing side.
	positions := []domain.Position{
		pos("sim", 400),
		pos("sim", 300),
		pos("nao", 300),
	}

	snap := Compute("m1", []string{"sim", "nao"}, positions, 0.20)

	if snap.TotalPool != 1000 {
		t.Fatalf("total pool = %v, want 1000", snap.TotalPool)
	}

	sim, nao := snap.Options[0], snap.Options[1]
	if sim.Percent != 70 || nao.Percent != 30 {
		t.Errorf("percents = %v/%v, want 70/30", sim.Percent, nao.Percent)
	}
	if sim.Bettors != 2 || nao.Bettors != 1 {
		t.Errorf("bettors = %d/%d, want 2/1", sim.Bettors, nao.Bettors)
	}

	// (1000 - 0.2*300)/700 and (1000 - 0.2*700)/300.
	if math.Abs(sim.PayoutMultiplier-940.0/700.0) > 1e-9 {
		t.Errorf("sim multiplier = %v, want %v", sim.PayoutMultiplier, 940.0/700.0)
	}
	if math.Abs(nao.PayoutMultiplier-860.0/300.0) > 1e-9 {
		t.Errorf("nao multiplier = %v, want %v", nao.PayoutMultiplier, 860.0/300.0)
	}
}

func TestCompute_Closure(t *testing.T) {
	cases := []struct {
		name      string
		positions []domain.Position
	}{
		{"even", []domain.Position{pos("a", 100), pos("b", 100)}},
		{"lopsided", []domain.Position{pos("a", 999), pos("b", 1)}},
		{"three way", []domain.Position{pos("a", 50), pos("b", 30), pos("c", 20)}},
		{"fractional", []domain.Position{pos("a", 33.33), pos("b", 66.67), pos("c", 0.01)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := Compute("m", []string{"a", "b", "c"}, tc.positions, 0.15)

			var poolSum, pctSum float64
			for _, o := range snap.Options {
				poolSum += o.Pool
				pctSum += o.Percent
				if o.PayoutMultiplier < 1 {
					t.Errorf("option %s multiplier %v below 1", o.Label, o.PayoutMultiplier)
				}
			}
			if math.Abs(poolSum-snap.TotalPool) > 1e-9 {
				t.Errorf("pool sum %v != total %v", poolSum, snap.TotalPool)
			}
			if snap.TotalPool > 0 && math.Abs(pctSum-100) > 1e-6 {
				t.Errorf("percent sum = %v, want 100", pctSum)
			}
		})
	}
}

func TestCompute_OneSidedMarket(t *testing.T) {
	snap := Compute("m", []string{"sim", "nao"}, []domain.Position{pos("sim", 500)}, 0.20)

	if got := snap.Multiplier("sim"); got != 1 {
		t.Errorf("funded side multiplier = %v, want 1 (no one to pay from)", got)
	}
	if got := snap.Multiplier("nao"); got != 1 {
		t.Errorf("empty side multiplier = %v, want 1", got)
	}
	if snap.Options[0].Percent != 100 {
		t.Errorf("funded side percent = %v, want 100", snap.Options[0].Percent)
	}
}

func TestCompute_EmptyMarket(t *testing.T) {
	snap := Compute("m", []string{"sim", "nao"}, nil, 0.20)

	if snap.TotalPool != 0 {
		t.Fatalf("total pool = %v, want 0", snap.TotalPool)
	}
	for _, o := range snap.Options {
		if o.Percent != 0 || o.PayoutMultiplier != 1 {
			t.Errorf("option %s = %+v, want zero percent and multiplier 1", o.Label, o)
		}
	}
}

func TestCompute_IgnoresSettledPositions(t *testing.T) {
	positions := []domain.Position{
		pos("sim", 100),
		{OptionChosen: "nao", Stake: 900, Status: domain.PositionStatusWon},
		{OptionChosen: "nao", Stake: 400, Status: domain.PositionStatusCashedOut},
	}

	snap := Compute("m", []string{"sim", "nao"}, positions, 0.20)
	if snap.TotalPool != 100 {
		t.Errorf("total pool = %v, want 100 (settled positions excluded)", snap.TotalPool)
	}
}

func TestCompute_IgnoresUnlistedOptions(t *testing.T) {
	positions := []domain.Position{
		pos("sim", 700),
		pos("nao", 300),
		pos("talvez", 250), // label the market does not offer
	}

	snap := Compute("m", []string{"sim", "nao"}, positions, 0.20)

	if snap.TotalPool != 1000 {
		t.Fatalf("total pool = %v, want 1000 (unlisted label excluded)", snap.TotalPool)
	}
	var poolSum float64
	for _, o := range snap.Options {
		poolSum += o.Pool
	}
	if math.Abs(poolSum-snap.TotalPool) > 1e-9 {
		t.Errorf("pool sum %v != total %v", poolSum, snap.TotalPool)
	}
	if got := snap.Multiplier("sim"); math.Abs(got-940.0/700.0) > 1e-9 {
		t.Errorf("sim multiplier = %v, want %v", got, 940.0/700.0)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	positions := []domain.Position{pos("a", 123.45), pos("b", 678.90)}
	first := Compute("m", []string{"a", "b"}, positions, 0.12)
	second := Compute("m", []string{"a", "b"}, positions, 0.12)

	for i := range first.Options {
		if first.Options[i] != second.Options[i] {
			t.Fatalf("snapshot not deterministic: %+v vs %+v", first.Options[i], second.Options[i])
		}
	}
}
