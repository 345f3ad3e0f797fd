package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDueDate(t *testing.T) {
	want := time.Date(2025, time.October, 21, 0, 0, 0, 0, time.UTC)
	for _, input := range []string{"21 Oct 2025", "Oct 21, 2025", "2025-10-21", "2025-10-21T18:30:00Z", "  21 Oct 2025 "} {
		got, err := ParseDueDate(input)
		if err != nil {
			t.Errorf("ParseDueDate(%q) failed: %v", input, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDueDate(%q) = %v, want %v", input, got.Time, want)
		}
	}
	if _, err := ParseDueDate("21/10/2025"); err == nil {
		t.Error("Expected error for unsupported layout")
	}
}

func TestDueDateJSON(t *testing.T) {
	var inst Installment
	if err := json.Unmarshal([]byte(`{"due_no": 3, "due_date": "Jan 05, 2026"}`), &inst); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	b, err := json.Marshal(inst.DueDate)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(b) != `"05 Jan 2026"` {
		t.Errorf("Expected \"05 Jan 2026\", got %s", b)
	}

	var empty DueDate
	if err := json.Unmarshal([]byte(`""`), &empty); err != nil || !empty.IsZero() {
		t.Errorf("Expected zero date for empty string, got %v (%v)", empty, err)
	}
	if err := json.Unmarshal([]byte(`20251021`), &empty); err == nil {
		t.Error("Expected error for a non-string date")
	}
}

func TestDueDateSameMonth(t *testing.T) {
	d := NewDueDate(time.Date(2025, time.October, 31, 23, 0, 0, 0, time.UTC))
	if !d.SameMonth(time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("Expected same month")
	}
	if d.SameMonth(time.Date(2024, time.October, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("Different year must not match")
	}
}

func TestAccountClone(t *testing.T) {
	collected := time.Now()
	a := &Account{
		Account:     "AZH-001",
		DuePayments: []Installment{{DueNo: 1, PaymentStatus: PaymentStatusPending, CollectedOn: &collected}},
		LoanHistory: []LoanHistoryEntry{{UpdatedBy: "admin"}},
	}
	c := a.Clone()
	c.DuePayments[0].PaymentStatus = PaymentStatusPaid
	*c.DuePayments[0].CollectedOn = collected.Add(time.Hour)
	c.LoanHistory[0].UpdatedBy = "other"

	if a.DuePayments[0].PaymentStatus != PaymentStatusPending || !a.DuePayments[0].CollectedOn.Equal(collected) || a.LoanHistory[0].UpdatedBy != "admin" {
		t.Error("Clone shares state with the original")
	}
	if inst, ok := c.Installment(1); !ok || inst.PaymentStatus != PaymentStatusPaid {
		t.Error("Installment lookup failed")
	}
	if _, ok := c.Installment(2); ok {
		t.Error("Expected missing installment")
	}
}

func TestAccountClone_EmptyHistoriesStayArrays(t *testing.T) {
	a := &Account{Account: "AZH-001", LoanHistory: []LoanHistoryEntry{}, LoanRepaymentHistory: []RepaymentEntry{}}
	data, err := json.Marshal(a.Clone())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if string(raw["loan_history"]) != "[]" || string(raw["loan_repayment_history"]) != "[]" {
		t.Errorf("Expected empty arrays, got %s / %s", raw["loan_history"], raw["loan_repayment_history"])
	}
}
