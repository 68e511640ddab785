package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleRegistryDefaults(t *testing.T) {
	r := NewModuleRegistry(nil)

	tests := map[string]string{
		"members":      "members",
		"employees":    "hr/employees",
		"transactions": "finance/transactions",
		"welfare":      "welfare",
		"inventory":    "inventory",
		"events":       "events",
		"appointments": "appointments",
	}
	for module, want := range tests {
		got, err := r.Endpoint(module)
		require.NoError(t, err, module)
		assert.Equal(t, want, got, module)
	}

	_, err := r.Endpoint("visitors")
	assert.ErrorIs(t, err, ErrUnknownModule)
}

func TestModuleRegistryExtra(t *testing.T) {
	r := NewModuleRegistry(map[string]string{
		"Visitors": "/church/visitors/",
		"events":   "",
		"  ":       "ignored",
	})

	got, err := r.Endpoint("visitors")
	require.NoError(t, err)
	assert.Equal(t, "church/visitors", got)

	_, err = r.Endpoint("events")
	assert.ErrorIs(t, err, ErrUnknownModule)

	assert.NotContains(t, r.Modules(), "events")
	assert.Contains(t, r.Modules(), "visitors")
	assert.IsNonDecreasing(t, r.Modules())
}
