package core

import (
	"errors"
	"testing"
)

func TestChoreSubmissionValidate(t *testing.T) {
	good := ChoreSubmission{Category: "食事", Task: "料理(昼)", BaseScore: 3, Assignees: []string{"keisuke"}}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		s    ChoreSubmission
		msg  string
	}{
		{"missing category", ChoreSubmission{Task: "料理", Assignees: []string{"keiko"}}, MsgCategoryTaskRequired},
		{"missing task", ChoreSubmission{Category: "食事", Assignees: []string{"keiko"}}, MsgCategoryTaskRequired},
		{"no assignees", ChoreSubmission{Category: "食事", Task: "料理"}, MsgAssigneesRequired},
		{"blank assignee", ChoreSubmission{Category: "食事", Task: "料理", Assignees: []string{" "}}, MsgAssigneesRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.s.Validate()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Message != tc.msg {
				t.Errorf("message = %q, want %q", ve.Message, tc.msg)
			}
		})
	}
}

func TestExpenseRecordValidate(t *testing.T) {
	if err := (ExpenseRecord{Category: CategoryFood, Amount: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []ExpenseRecord{
		{Category: "", Amount: 100},
		{Category: CategoryFood, Amount: 0},
		{Category: CategoryFood, Amount: -5},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestChoreRecordPoints(t *testing.T) {
	r := ChoreRecord{Score: 1.5, Multiplier: 2}
	if got := r.Points(); got != 3 {
		t.Fatalf("Points() = %v, want 3", got)
	}
}

func TestDrawNote(t *testing.T) {
	p := GachaPrize{Name: "肩もみ券", Rarity: "SR"}
	if got := p.DrawNote(); got != "獲得: 肩もみ券 (SR)" {
		t.Fatalf("DrawNote() = %q", got)
	}
}

func TestDependencyError(t *testing.T) {
	cause := errors.New("disk full")
	var err error = &DependencyError{Op: "record chore", Err: cause}
	if err.Error() != "failed to record chore: disk full" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause")
	}

	de := &DependencyError{Op: "fetch prizes", Message: "Failed to fetch gacha prizes", Err: ErrNoPrizesAvailable}
	if de.PublicMessage() != "Failed to fetch gacha prizes" {
		t.Fatalf("PublicMessage() = %q", de.PublicMessage())
	}
	if !errors.Is(de, ErrNoPrizesAvailable) {
		t.Fatal("expected ErrNoPrizesAvailable in chain")
	}
}

func TestNotFoundErrorIs(t *testing.T) {
	err := error(&NotFoundError{Kind: "expense", ID: "9"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected errors.Is(ErrNotFound)")
	}
}

func TestAssigneeDirectory(t *testing.T) {
	d := NewAssigneeDirectory([]Assignee{
		{Key: "keiko", DisplayName: "けいこ", DisplayOrder: 2},
		{Key: "keisuke", DisplayName: "けいすけ", DisplayOrder: 1},
	})

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"keisuke", "keisuke", false},
		{"けいすけ", "keisuke", false},
		{" けいこ ", "keiko", false},
		{"不明", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := d.Resolve(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("Resolve(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if d.DisplayName("keiko") != "けいこ" || d.DisplayName("ghost") != "ghost" {
		t.Error("unexpected display names")
	}
	members := d.Members()
	if len(members) != 2 || members[0].Key != "keisuke" {
		t.Errorf("Members() order = %+v", members)
	}

	keys, err := d.ResolveAll([]string{"けいすけ", "keiko"})
	if err != nil || len(keys) != 2 || keys[0] != "keisuke" || keys[1] != "keiko" {
		t.Fatalf("ResolveAll = %v, %v", keys, err)
	}
	if _, err := d.ResolveAll([]string{"keiko", "nobody"}); err == nil {
		t.Fatal("expected error for unknown assignee")
	}
}

func TestDrawStateTerminal(t *testing.T) {
	for _, s := range []DrawState{DrawStarted, DrawCatalogFetched, DrawDeducted} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []DrawState{DrawGranted, DrawCatalogFetchFailed, DrawDeductionFailed, DrawGrantFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if DrawGranted.Failed() || !DrawGrantFailed.Failed() {
		t.Error("unexpected Failed() result")
	}
}
