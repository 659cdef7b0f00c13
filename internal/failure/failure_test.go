package failure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDoctorNotFound = New(KindNotFound, "doctor_not_found", "Doctor not found.")

func TestIsMatchesWrappedSentinel(t *testing.T) {
	err := fmt.Errorf("booking: %w", errDoctorNotFound.Wrap(errors.New("missing row")))
	assert.ErrorIs(t, err, errDoctorNotFound)
	assert.NotErrorIs(t, err, New(KindNotFound, "pharmacy_not_found", "x"))
}

func TestFromClassifiesErrors(t *testing.T) {
	assert.Nil(t, From(nil))
	assert.Equal(t, KindNotFound, From(errDoctorNotFound).Kind)

	deadline := fmt.Errorf("store: get: %w", context.DeadlineExceeded)
	fe := From(deadline)
	assert.Equal(t, KindTimeout, fe.Kind)
	assert.ErrorIs(t, fe, context.DeadlineExceeded)

	raw := From(errors.New("connection reset by peer"))
	assert.Equal(t, KindUnexpected, raw.Kind)
	assert.NotContains(t, raw.Message, "connection reset")
}

func TestWithfKeepsIdentity(t *testing.T) {
	err := errDoctorNotFound.Withf("Doctor %s not found.", "d-1")
	assert.Equal(t, "Doctor d-1 not found.", err.Message)
	assert.ErrorIs(t, err, errDoctorNotFound)
	assert.Equal(t, "Doctor not found.", errDoctorNotFound.Message)
}

func TestKindHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, KindNotFound.HTTPStatus())
	assert.Equal(t, http.StatusConflict, KindAlreadyExists.HTTPStatus())
	assert.Equal(t, http.StatusConflict, KindInvalidTransition.HTTPStatus())
	assert.Equal(t, http.StatusUnprocessableEntity, KindValidation.HTTPStatus())
	assert.Equal(t, http.StatusGatewayTimeout, KindTimeout.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindUnexpected.HTTPStatus())
}

func TestResultEnvelope(t *testing.T) {
	ok := Of("order-1", nil)
	require.True(t, ok.Success)
	require.NotNil(t, ok.Data)
	assert.Equal(t, "order-1", *ok.Data)

	failed := Of("", errors.New("boom"))
	assert.False(t, failed.Success)
	assert.Nil(t, failed.Data)
	assert.Equal(t, unexpectedMessage, failed.Error)
	assert.Equal(t, "unexpected", failed.Code)
}
