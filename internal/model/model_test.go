package model

import "testing"

func TestParseRole(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Role{
		"client":       RoleClient,
		" Freelancer ": RoleFreelancer,
		"CLIENT":       RoleClient,
	} {
		got, err := ParseRole(in)
		if err != nil || got != want {
			t.Fatalf("ParseRole(%q) = %q, %v", in, got, err)
		}
	}
	for _, in := range []string{"", "admin", "clients"} {
		if _, err := ParseRole(in); err == nil {
			t.Fatalf("ParseRole(%q): want error", in)
		}
	}
}

func TestAccount_Profile(t *testing.T) {
	t.Parallel()

	a := Account{Email: "ann@example.com", Role: RoleFreelancer, Name: "Ann", PwdHash: []byte("h")}
	p := a.Profile()
	if p.Email != a.Email || p.Role != a.Role || p.DisplayName != "Ann" {
		t.Fatalf("profile mismatch: %+v", p)
	}
}
