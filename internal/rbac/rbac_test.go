package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer write", role: RoleViewer, action: ActionWrite, allow: false},
		{name: "student read", role: RoleStudent, action: ActionRead, allow: true},
		{name: "student write", role: RoleStudent, action: ActionWrite, allow: true},
		{name: "student admin", role: RoleStudent, action: ActionAdmin, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("ghost"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("") != RoleViewer || Normalize("editor") != RoleViewer {
		t.Fatal("expected unknown roles to normalize to viewer")
	}
	if Can(Normalize("editor"), ActionWrite) {
		t.Fatal("an unknown role must not grant write access")
	}
	if Normalize("student") != RoleStudent || Normalize("admin") != RoleAdmin {
		t.Fatal("expected known roles to be kept")
	}
}
