package schema

import (
	"errors"
	"testing"

	"opsdash/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFunction(fields []model.RequiredField) model.Function {
	return model.Function{
		ID:             "01TESTFN",
		Name:           "Backup",
		RequiredFields: fields,
	}
}

func TestChecker_Validate(t *testing.T) {
	checker := NewChecker(16)

	fn := testFunction([]model.RequiredField{
		{Name: "backup_type", Type: "string", Required: true},
		{Name: "compress", Type: "boolean", Required: false},
	})

	err := checker.Validate(fn, map[string]interface{}{"backup_type": "full"})
	require.NoError(t, err)

	err = checker.Validate(fn, map[string]interface{}{"backup_type": "full", "compress": true})
	require.NoError(t, err)

	// Missing required field
	err = checker.Validate(fn, map[string]interface{}{"compress": true})
	assert.True(t, errors.Is(err, model.ErrValidation))

	// Wrong type
	err = checker.Validate(fn, map[string]interface{}{"backup_type": 7})
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestChecker_Validate_NoDeclaredFields(t *testing.T) {
	checker := NewChecker(16)

	fn := testFunction(nil)
	assert.NoError(t, checker.Validate(fn, nil))
	assert.NoError(t, checker.Validate(fn, map[string]interface{}{"anything": "goes"}))
}

func TestChecker_Validate_NilParams(t *testing.T) {
	checker := NewChecker(16)

	fn := testFunction([]model.RequiredField{
		{Name: "name", Type: "string", Required: true},
	})

	err := checker.Validate(fn, nil)
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestChecker_Validate_UnknownTypeIsPresenceOnly(t *testing.T) {
	checker := NewChecker(16)

	fn := testFunction([]model.RequiredField{
		{Name: "anything", Type: "uuid", Required: true},
	})

	assert.NoError(t, checker.Validate(fn, map[string]interface{}{"anything": 42}))
	assert.Error(t, checker.Validate(fn, map[string]interface{}{}))
}

func TestChecker_CacheInvalidatedOnFieldChange(t *testing.T) {
	checker := NewChecker(16)

	fn := testFunction([]model.RequiredField{
		{Name: "a", Type: "string", Required: true},
	})
	require.NoError(t, checker.Validate(fn, map[string]interface{}{"a": "x"}))

	// Same function ID, tightened declaration: the old compiled schema
	// must not be reused.
	fn.RequiredFields = []model.RequiredField{
		{Name: "a", Type: "string", Required: true},
		{Name: "b", Type: "integer", Required: true},
	}
	err := checker.Validate(fn, map[string]interface{}{"a": "x"})
	assert.True(t, errors.Is(err, model.ErrValidation))
}
