package users

import (
	"strings"
	"testing"
)

func exampleCSV() string {
	return strings.Join([]string{
		"id,password,msgDown,msgUp,fileDown,fileUp",
		"alice,secret,1,1,1,0",
		"bob,hunter2,true,false,false,true",
		"",
	}, "\n")
}

func TestLoadParsesRecordsAndSkipsHeader(t *testing.T) {
	tbl, err := Load(strings.NewReader(exampleCSV()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}

	alice, ok := tbl.Lookup("alice")
	if !ok {
		t.Fatal("expected alice to be loaded")
	}
	if !alice.Perms.MsgDown || !alice.Perms.MsgUp || !alice.Perms.FileDown || alice.Perms.FileUp {
		t.Fatalf("alice perms = %+v, want {true true true false}", alice.Perms)
	}

	bob, ok := tbl.Lookup("bob")
	if !ok {
		t.Fatal("expected bob to be loaded")
	}
	if bob.Perms.MsgDown || bob.Perms.MsgUp || bob.Perms.FileDown != false || !bob.Perms.FileUp {
		t.Fatalf("bob perms = %+v, want {false false false true}", bob.Perms)
	}
}

func TestLoadRejectsWrongFieldCount(t *testing.T) {
	csv := "id,password,msgDown,msgUp,fileDown,fileUp\nalice,secret,1,1\n"
	if _, err := Load(strings.NewReader(csv)); err == nil {
		t.Fatal("expected error for wrong field count")
	}
}

func TestLoadRejectsInvalidBoolean(t *testing.T) {
	csv := "id,password,msgDown,msgUp,fileDown,fileUp\nalice,secret,maybe,1,1,0\n"
	if _, err := Load(strings.NewReader(csv)); err == nil {
		t.Fatal("expected error for invalid boolean flag")
	}
}
