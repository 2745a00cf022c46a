package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title": "SubmitPayment",
	"type": "object",
	"properties": {
		"order_id": { "type": "string", "minLength": 1 },
		"client_secret": { "type": "string", "minLength": 1 }
	},
	"required": ["order_id", "client_secret"]
}`

func TestNewContractMonitorFromBytes(t *testing.T) {
	cm, err := NewContractMonitorFromBytes([]byte(testSchema))
	require.NoError(t, err)
	require.NotNil(t, cm)

	t.Run("valid document", func(t *testing.T) {
		ok, errs, err := cm.Validate([]byte(`{"order_id": "ord-1", "client_secret": "cs_1"}`))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, errs)
	})

	t.Run("missing required field", func(t *testing.T) {
		ok, errs, err := cm.Validate([]byte(`{"order_id": "ord-1"}`))
		require.NoError(t, err)
		assert.False(t, ok)
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[0], "client_secret")
	})

	t.Run("wrong type", func(t *testing.T) {
		ok, errs, err := cm.Validate([]byte(`{"order_id": 42, "client_secret": "cs_1"}`))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NotEmpty(t, errs)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, _, err := cm.Validate([]byte(`{"order_id":`))
		assert.Error(t, err)
	})
}

func TestNewContractMonitorFromBytes_BadSchema(t *testing.T) {
	_, err := NewContractMonitorFromBytes([]byte(`{"type": "not-a-real-type"}`))
	assert.Error(t, err)
}

func TestNewContractMonitor_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(testSchema), 0o644))

	cm, err := NewContractMonitor(path)
	require.NoError(t, err)

	ok, _, err := cm.Validate([]byte(`{"order_id": "ord-1", "client_secret": "cs_1"}`))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewContractMonitor_MissingFile(t *testing.T) {
	_, err := NewContractMonitor(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestFormatErrors(t *testing.T) {
	assert.Empty(t, FormatErrors(nil))
	assert.Equal(t, "Validation errors: a; b", FormatErrors([]string{"a", "b"}))
}
