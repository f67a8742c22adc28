package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Builtin(t *testing.T) {
	for _, name := range []string{
		"general", "calculation", "data_retrieval", "validation",
		"monitoring", "transformation", "orchestration",
	} {
		t.Run(name, func(t *testing.T) {
			p, err := Load(name)
			require.NoError(t, err)
			assert.Equal(t, name, p.Name)
			assert.NotEmpty(t, p.Description)
			assert.NotEmpty(t, p.SystemPromptAddendum)
		})
	}
}

func TestLoad_Unknown(t *testing.T) {
	_, err := Load("astrology")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "astrology")
	assert.Contains(t, err.Error(), "general", "error should list the available profiles")
}

func TestList_SortedAndComplete(t *testing.T) {
	profiles := List()
	require.Len(t, profiles, 7)
	for i := 1; i < len(profiles); i++ {
		assert.Less(t, profiles[i-1].Name, profiles[i].Name)
	}
}
