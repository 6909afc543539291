package modelpolicy

import "testing"

func TestDefaultPolicyDoesNotClamp(t *testing.T) {
	p := Default("mock-model")
	maxTokens, temp := p.Clamp("mock-model", 4000, 1.9)
	if maxTokens != 4000 || temp != 1.9 {
		t.Fatalf("expected no clamping under default policy, got (%d, %f)", maxTokens, temp)
	}
}

func TestClampAppliesModelSpecificCeiling(t *testing.T) {
	tempCap := 0.5
	p := &Policy{cfg: Config{
		DefaultModel: "mock-model",
		Rules: []Rule{
			{Model: "gpt-mini", MaxTokensCeil: 256, TemperatureCap: &tempCap},
		},
	}}
	maxTokens, temp := p.Clamp("gpt-mini", 4000, 1.9)
	if maxTokens != 256 {
		t.Fatalf("expected max_tokens clamped to 256, got %d", maxTokens)
	}
	if temp != 0.5 {
		t.Fatalf("expected temperature clamped to 0.5, got %f", temp)
	}
}

func TestClampLeavesOtherModelsUnaffected(t *testing.T) {
	tempCap := 0.5
	p := &Policy{cfg: Config{
		Rules: []Rule{{Model: "gpt-mini", MaxTokensCeil: 256, TemperatureCap: &tempCap}},
	}}
	maxTokens, temp := p.Clamp("other-model", 4000, 1.9)
	if maxTokens != 4000 || temp != 1.9 {
		t.Fatalf("expected unrelated model to pass through unclamped, got (%d, %f)", maxTokens, temp)
	}
}

func TestLoadWithEmptyPathReturnsDefault(t *testing.T) {
	p, err := Load("", "mock-model")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.DefaultModel() != "mock-model" {
		t.Fatalf("expected default model mock-model, got %s", p.DefaultModel())
	}
}
