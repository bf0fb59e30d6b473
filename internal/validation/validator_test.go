package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	MinX      float64 `json:"minx" validate:"gte=-180,lte=180"`
	MaxX      float64 `json:"maxx" validate:"gte=-180,lte=180,gtfield=MinX"`
	Composite string  `json:"composite" validate:"omitempty,oneof=mean quality"`
	Buckets   int     `json:"buckets" validate:"min=1"`
}

func TestValidateStructPasses(t *testing.T) {
	assert.NoError(t, ValidateStruct(&sampleRequest{MinX: -75, MaxX: -74, Composite: "quality", Buckets: 20}))
	assert.NoError(t, ValidateStruct(&sampleRequest{MinX: -75, MaxX: -74, Buckets: 1}))
}

func TestValidateStructReportsJSONNames(t *testing.T) {
	err := ValidateStruct(&sampleRequest{MinX: -75, MaxX: -76, Composite: "median", Buckets: 0})
	require.Error(t, err)

	var verr *RequestValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 3)

	byField := map[string]FieldError{}
	for _, f := range verr.Fields {
		byField[f.Field] = f
	}
	assert.Equal(t, "gtfield", byField["maxx"].Tag)
	assert.Equal(t, "maxx must be greater than minx", byField["maxx"].Message)
	assert.Equal(t, "composite must be one of: mean quality", byField["composite"].Message)
	assert.Equal(t, "buckets must be at least 1", byField["buckets"].Message)
}

func TestGetValidatorIsShared(t *testing.T) {
	assert.Same(t, GetValidator(), GetValidator())
}
