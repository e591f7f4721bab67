package utils

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestOperationTimerLogsUnits(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	done := OperationTimer("import", 0, log)
	done(4)

	out := buf.String()
	assert.Contains(t, out, `"operation":"import"`)
	assert.Contains(t, out, `"units":4`)
	assert.Contains(t, out, `"per_unit"`)
	assert.Contains(t, out, `"level":"debug"`)
}

func TestOperationTimerWarnsWhenSlow(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	done := OperationTimer("simulation_run", 1, log)
	done(0)

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"slow":true`)
	assert.NotContains(t, out, `"per_unit"`)
}
