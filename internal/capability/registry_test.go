package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citizenly/autopilot/pkg/cerr"
)

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()

	c, err := r.Get("tax_preparation")
	require.NoError(t, err)
	assert.Equal(t, "tax_preparation", c.ID)
	assert.True(t, c.Enabled)

	_, err = r.Get("time_travel")
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	r := NewRegistry()

	c, err := r.Get("research")
	require.NoError(t, err)
	c.Enabled = false
	c.Accuracy = 0

	again, err := r.Get("research")
	require.NoError(t, err)
	assert.True(t, again.Enabled)
	assert.NotZero(t, again.Accuracy)
}

func TestRegistrySetEnabled(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.SetEnabled("legal_analysis", false))
	c, err := r.Get("legal_analysis")
	require.NoError(t, err)
	assert.False(t, c.Enabled)

	require.NoError(t, r.SetEnabled("legal_analysis", true))
	c, err = r.Get("legal_analysis")
	require.NoError(t, err)
	assert.True(t, c.Enabled)

	err = r.SetEnabled("time_travel", true)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()

	caps := r.List()
	require.Len(t, caps, len(defaults))
	for i := 1; i < len(caps); i++ {
		assert.Less(t, caps[i-1].ID, caps[i].ID)
	}
}

func TestRegistryTouch(t *testing.T) {
	r := NewRegistry()

	c, err := r.Get("email_generation")
	require.NoError(t, err)
	require.Nil(t, c.LastUsed)

	r.Touch("email_generation")
	c, err = r.Get("email_generation")
	require.NoError(t, err)
	require.NotNil(t, c.LastUsed)

	// Unknown ids are a no-op.
	r.Touch("time_travel")
}

func TestRegistryApply(t *testing.T) {
	r := NewRegistry()
	r.Touch("research")

	r.Apply([]Capability{
		{ID: "research", Category: CategoryResearch, Enabled: false, AutomationLevel: 0.5, Accuracy: 0.6},
		{ID: "translation", Category: CategoryCommunication, Enabled: true, AutomationLevel: 0.7, Accuracy: 0.8},
	})

	c, err := r.Get("research")
	require.NoError(t, err)
	assert.False(t, c.Enabled)
	assert.Equal(t, 0.6, c.Accuracy)
	assert.NotNil(t, c.LastUsed, "overlay keeps the usage stamp")

	added, err := r.Get("translation")
	require.NoError(t, err)
	assert.True(t, added.Enabled)
	assert.Equal(t, CategoryCommunication, added.Category)
}
