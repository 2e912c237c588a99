package models

import (
	"reflect"
	"testing"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestRecordIDString(t *testing.T) {
	got, err := RecordIDString(surrealmodels.RecordID{Table: "token_usage", ID: "abc"})
	if err != nil {
		t.Fatalf("RecordIDString() error = %v", err)
	}
	if got != "abc" {
		t.Errorf("RecordIDString() = %q, want %q", got, "abc")
	}

	if _, err := RecordIDString(surrealmodels.RecordID{Table: "token_usage", ID: 42}); err == nil {
		t.Error("RecordIDString() with int ID should fail")
	}
}

func TestSummarizeUsage(t *testing.T) {
	groups := []UsageGroup{
		{Model: "gpt-4o", Outcome: OutcomeOK, Turns: 3, PromptTokens: 300, CompletionTokens: 150},
		{Model: "gpt-4o", Outcome: "transport", Turns: 1, PromptTokens: 100, CompletionTokens: 5},
		{Model: "gpt-3.5-turbo", Outcome: OutcomeOK, Turns: 4, PromptTokens: 40, CompletionTokens: 40},
	}

	s := SummarizeUsage(groups)

	if s.Turns != 8 {
		t.Errorf("Turns = %d, want 8", s.Turns)
	}
	if s.TotalTokens != 635 {
		t.Errorf("TotalTokens = %d, want 635", s.TotalTokens)
	}
	if s.ByModel["gpt-4o"] != 555 {
		t.Errorf("ByModel[gpt-4o] = %d, want 555", s.ByModel["gpt-4o"])
	}
	if s.ByOutcome[OutcomeOK] != 7 {
		t.Errorf("ByOutcome[ok] = %d, want 7", s.ByOutcome[OutcomeOK])
	}
	if got := s.OutcomePercent["transport"]; got != 12.5 {
		t.Errorf("OutcomePercent[transport] = %v, want 12.5", got)
	}

	want := []string{"gpt-4o", "gpt-3.5-turbo"}
	if got := s.ModelsByTokens(); !reflect.DeepEqual(got, want) {
		t.Errorf("ModelsByTokens() = %v, want %v", got, want)
	}
}

func TestSummarizeUsageEmpty(t *testing.T) {
	s := SummarizeUsage(nil)
	if s.Turns != 0 || s.TotalTokens != 0 {
		t.Errorf("empty summary = %+v", s)
	}
	if len(s.OutcomePercent) != 0 {
		t.Errorf("OutcomePercent should be empty, got %v", s.OutcomePercent)
	}
}
