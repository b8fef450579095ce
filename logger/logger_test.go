package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	for _, jsonOutput := range []bool{true, false} {
		Logger = nil
		JSONOutput = false

		require.NoError(t, Initialize(jsonOutput))
		assert.NotNil(t, Logger)
		assert.Equal(t, jsonOutput, JSONOutput)

		Cleanup()
	}
}

func TestHelpersSafeBeforeInitialize(t *testing.T) {
	// The init no-op logger must absorb calls made before Initialize
	assert.NotPanics(t, func() {
		Infow("startup", "key", "value")
		Warnw("warning", "key", "value")
		Errorw("error", "key", "value")
		Debugw("debug", "key", "value")
	})
}
