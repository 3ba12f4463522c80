package bot

import (
	"encoding/json"
	"testing"

	"github.com/clemgrim/veillee/pkg/engine"
)

func TestBetWithinBalance(t *testing.T) {
	SeedBotRng(42)
	defer ResetBotRng()

	p := DefaultProfile()
	for i := 0; i < 100; i++ {
		bet := Bet(p, 50)
		if bet < 0 || bet > 50 {
			t.Fatalf("bet %d out of range for balance 50", bet)
		}
	}
	if got := Bet(p, 0); got != 0 {
		t.Errorf("bet with zero balance = %d, want 0", got)
	}
	if got := Bet(p, -5); got != 0 {
		t.Errorf("bet with negative balance = %d, want 0", got)
	}
}

func TestBetDeterministicWithSeed(t *testing.T) {
	p := DefaultProfile()

	SeedBotRng(7)
	var first []int
	for i := 0; i < 10; i++ {
		first = append(first, Bet(p, 100))
	}
	SeedBotRng(7)
	for i := 0; i < 10; i++ {
		if got := Bet(p, 100); got != first[i] {
			t.Fatalf("draw %d = %d, want %d (same seed)", i, got, first[i])
		}
	}
	ResetBotRng()
}

func TestPositionSlotRange(t *testing.T) {
	SeedBotRng(1)
	defer ResetBotRng()

	p := DefaultProfile()
	for i := 0; i < 100; i++ {
		c := Position(p, 5, []string{"Stone"}, []string{"Shield"})
		if c.WantSlot < 1 || c.WantSlot > 5 {
			t.Fatalf("want slot %d out of range", c.WantSlot)
		}
		if c.AttackItem != "" {
			if c.TargetSlot < 1 || c.TargetSlot > 5 {
				t.Fatalf("target slot %d out of range", c.TargetSlot)
			}
			if c.TargetSlot == c.WantSlot {
				t.Fatalf("bot targets its own desired slot %d", c.WantSlot)
			}
		}
		if c.ProtectItem != "Shield" {
			t.Fatalf("owned protection not committed, got %q", c.ProtectItem)
		}
	}
}

func TestPositionNoItems(t *testing.T) {
	SeedBotRng(1)
	defer ResetBotRng()

	c := Position(DefaultProfile(), 4, nil, nil)
	if c.AttackItem != "" || c.TargetSlot != 0 || c.ProtectItem != "" {
		t.Errorf("itemless bot committed items: %+v", c)
	}
	if got := Position(DefaultProfile(), 0, nil, nil); got.WantSlot != 0 {
		t.Errorf("zero slots should yield empty choice, got %+v", got)
	}
}

func TestShopOnlyAffordable(t *testing.T) {
	SeedBotRng(3)
	defer ResetBotRng()

	p := DefaultProfile()
	p.BuyProbability = 1
	offer := engine.Offer{"Stone": 1, "Spear": 1}
	prices := engine.StandardPrices()

	for i := 0; i < 50; i++ {
		// 12 tokens buys a stone (10) but not a spear (25).
		if got := Shop(p, offer, prices, "", 12); got != "Stone" {
			t.Fatalf("choice = %q, want Stone", got)
		}
	}
	if got := Shop(p, offer, prices, "", 5); got != "" {
		t.Errorf("broke bot chose %q, want nothing", got)
	}
	if got := Shop(p, engine.Offer{"Stone": 0}, prices, "", 100); got != "" {
		t.Errorf("bot chose out-of-stock item %q", got)
	}
}

func TestShopRespectsBuyProbability(t *testing.T) {
	SeedBotRng(3)
	defer ResetBotRng()

	p := DefaultProfile()
	p.BuyProbability = 0
	if got := Shop(p, engine.Offer{"Stone": 5}, engine.StandardPrices(), "", 100); got != "" {
		t.Errorf("zero buy probability still chose %q", got)
	}
}

func TestCrossingStakeBounds(t *testing.T) {
	SeedBotRng(9)
	defer ResetBotRng()

	p := DefaultProfile()
	p.ContinueProbability = 1
	for i := 0; i < 100; i++ {
		c := Crossing(p, 40, true, false)
		if !c.Continue {
			t.Fatal("continue probability 1 produced a stop")
		}
		if c.Stake < 1 || c.Stake > 40 {
			t.Fatalf("stake %d out of range for balance 40", c.Stake)
		}
		if !c.UseTalisman || c.UseLifeline {
			t.Fatalf("rescue commitment wrong: %+v", c)
		}
	}
	c := Crossing(p, 0, false, true)
	if c.Stake != 0 {
		t.Errorf("broke bot staked %d", c.Stake)
	}
	if !c.UseLifeline {
		t.Error("owned lifeline not committed")
	}
}

func TestCrossingStop(t *testing.T) {
	SeedBotRng(9)
	defer ResetBotRng()

	p := DefaultProfile()
	p.ContinueProbability = 0
	c := Crossing(p, 40, true, true)
	if c.Continue || c.Stake != 0 || c.UseTalisman || c.UseLifeline {
		t.Errorf("stopping bot should commit nothing, got %+v", c)
	}
}

func TestDuelContrabandBounds(t *testing.T) {
	SeedBotRng(5)
	defer ResetBotRng()

	p := DefaultProfile()
	p.SmuggleProbability = 1
	for i := 0; i < 100; i++ {
		c := Duel(p)
		if c.Declared != engine.LegalContraband {
			t.Fatalf("declared = %d, want %d", c.Declared, engine.LegalContraband)
		}
		if c.Actual <= engine.LegalContraband || c.Actual > engine.ContrabandCap {
			t.Fatalf("smuggling bot carries %d", c.Actual)
		}
	}

	p.SmuggleProbability = 0
	c := Duel(p)
	if c.Actual != engine.LegalContraband {
		t.Errorf("honest bot carries %d, want %d", c.Actual, engine.LegalContraband)
	}
}

func TestProfileFromSettings(t *testing.T) {
	settings := json.RawMessage(`{"bots":{"bet_fraction":0.9,"smuggle_probability":0.1}}`)
	p := ProfileFromSettings(settings)
	if p.BetFraction != 0.9 {
		t.Errorf("bet fraction = %v, want 0.9", p.BetFraction)
	}
	if p.SmuggleProbability != 0.1 {
		t.Errorf("smuggle probability = %v, want 0.1", p.SmuggleProbability)
	}
	if p.BuyProbability != DefaultProfile().BuyProbability {
		t.Errorf("unset field should keep default, got %v", p.BuyProbability)
	}
}

func TestProfileFromSettingsMalformed(t *testing.T) {
	got := ProfileFromSettings(json.RawMessage(`not json`))
	if got != DefaultProfile() {
		t.Errorf("malformed settings should yield defaults, got %+v", got)
	}
	if got := ProfileFromSettings(nil); got != DefaultProfile() {
		t.Errorf("nil settings should yield defaults, got %+v", got)
	}
}
