package testutils

import (
	"github.com/stretchr/testify/mock"
)

type MockRoleResolver struct {
	mock.Mock
}

func (m *MockRoleResolver) ResolveRole(userID uint) (string, error) {
	args := m.Called(userID)
	return args.String(0), args.Error(1)
}
