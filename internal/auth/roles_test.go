package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"PARENT", RoleParent, true},
		{"student", RoleStudent, true},
		{" Admin ", RoleAdmin, true},
		{"tutor", Role("TUTOR"), false},
		{"", Role(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRole(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoleCapabilities(t *testing.T) {
	assert.True(t, RoleParent.Can(CapDeposit))
	assert.True(t, RoleParent.Can(CapViewLinked))
	assert.False(t, RoleParent.Can(CapSpend))
	assert.False(t, RoleParent.Can(CapBypassLinks))

	assert.True(t, RoleStudent.Can(CapSpend))
	assert.True(t, RoleStudent.Can(CapManagePlans))
	assert.False(t, RoleStudent.Can(CapDeposit))

	assert.True(t, RoleAdmin.Can(CapBypassLinks))
	assert.True(t, RoleAdmin.Can(CapDeposit))
	assert.True(t, RoleAdmin.Can(CapAdmin))

	assert.False(t, Role("GHOST").Can(CapDeposit))
}
