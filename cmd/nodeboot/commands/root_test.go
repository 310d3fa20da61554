package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot(t *testing.T) {
	cmd := Root()

	require.NotNil(t, cmd)
	assert.Equal(t, "nodeboot", cmd.Use)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "bootstrap")
	assert.Contains(t, names, "stop")
	assert.Contains(t, names, "terminate")
	assert.Contains(t, names, "validate")
	assert.Contains(t, names, "version")
}
