package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStyler_Markers(t *testing.T) {
	s := NewStyler(true)
	assert.Equal(t, "✓ created", s.Success("created"))
	assert.Equal(t, "✗ failed", s.Error("failed"))
	assert.Equal(t, "ℹ working", s.Info("working"))
}

func TestStyler_ColorsOnlyTheMarker(t *testing.T) {
	s := NewStyler(false)
	assert.Equal(t, colorGreen+"✓"+colorReset+" created", s.Success("created"))
	assert.Equal(t, colorRed+"✗"+colorReset+" failed", s.Error("failed"))
}

func TestStyler_Fprint(t *testing.T) {
	var buf bytes.Buffer
	NewStyler(true).FprintError(&buf, "no such service")
	assert.Equal(t, "✗ no such service\n", buf.String())
}

func TestStyler_Status(t *testing.T) {
	plain := NewStyler(true)
	assert.Equal(t, "active", plain.Status("active"))

	colored := NewStyler(false)
	assert.Equal(t, colorGreen+"active"+colorReset, colored.Status("active"))
	assert.Equal(t, colorYellow+"suspended"+colorReset, colored.Status("suspended"))
	assert.Equal(t, colorRed+"missing"+colorReset, colored.Status("missing"))
	assert.Equal(t, "unknown", colored.Status("unknown"))
}

func TestFormatJSON(t *testing.T) {
	data := map[string]any{
		"service_id": "svc-1",
		"status":     "active",
	}

	result, err := FormatJSON(data)
	assert.NoError(t, err)
	assert.Contains(t, result, "svc-1")
	assert.Contains(t, result, "active")
	assert.Contains(t, result, "\n") // Pretty-printed
}

func TestFormatJSON_Error(t *testing.T) {
	// channels cannot be marshaled
	data := make(chan int)

	_, err := FormatJSON(data)
	assert.Error(t, err)
}
