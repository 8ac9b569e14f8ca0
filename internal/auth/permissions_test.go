package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermRegisterRead, true},
		{RoleViewer, PermAuditRead, true},
		{RoleViewer, PermRegisterWrite, false},
		{RoleViewer, PermPresetApply, false},
		{RoleOperator, PermRegisterWrite, true},
		{RoleOperator, PermPresetApply, true},
		{RoleOperator, PermPresetManage, false},
		{RoleOperator, PermSyncManage, false},
		{RoleAdmin, PermPresetManage, true},
		{RoleAdmin, PermSyncManage, true},
		{RoleAdmin, PermSystemAdmin, true},
		{"owner", PermRegisterRead, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}

func TestPermissionsForRole_ReturnsCopy(t *testing.T) {
	perms := PermissionsForRole(RoleViewer)
	if len(perms) == 0 {
		t.Fatal("viewer has no permissions")
	}
	perms[0] = PermSystemAdmin
	if HasPermission(RoleViewer, PermSystemAdmin) {
		t.Error("mutating the returned slice changed the role model")
	}
	if PermissionsForRole("nobody") != nil {
		t.Error("unknown role should have nil permissions")
	}
}
