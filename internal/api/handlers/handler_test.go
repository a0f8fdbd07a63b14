package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rohits-web03/vaultbox/internal/encryption"
	"github.com/rohits-web03/vaultbox/internal/services"
	"github.com/rohits-web03/vaultbox/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_RoundTrip(t *testing.T) {
	state, nonce, err := GenerateState(map[string]string{"flow": "register"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(state, nonce+"."))

	data, err := DecodeState(state, nonce)
	require.NoError(t, err)
	assert.Equal(t, "register", data["flow"])
}

func TestState_RejectsForeignNonce(t *testing.T) {
	state, _, err := GenerateState(map[string]string{"flow": "login"})
	require.NoError(t, err)
	_, otherNonce, err := GenerateState(nil)
	require.NoError(t, err)

	_, err = DecodeState(state, otherNonce)
	assert.Error(t, err)
	_, err = DecodeState(state, "")
	assert.Error(t, err)
	_, err = DecodeState("no-dot-here", "no-dot-here")
	assert.Error(t, err)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", services.ErrValidation), http.StatusBadRequest},
		{services.ErrUnsupportedType, http.StatusUnsupportedMediaType},
		{services.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrUnauthorized, http.StatusUnauthorized},
		{services.ErrConflict, http.StatusConflict},
		{services.ErrUnavailable, http.StatusServiceUnavailable},
		{encryption.ErrCrypto, http.StatusInternalServerError},
		{services.ErrEncryptionFailed, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, _ := statusFor(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
	}
}

func TestFail_HidesDetailInProduction(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	cause := errors.New("pq: connection refused on 10.0.0.5")
	err := &services.Error{Kind: services.ErrStore, Message: "Could not save file", Err: cause}

	for _, production := range []bool{false, true} {
		h := New(Deps{Log: log, Production: production})
		w := httptest.NewRecorder()
		h.fail(w, httptest.NewRequest(http.MethodGet, "/files", nil), err)

		require.Equal(t, http.StatusInternalServerError, w.Code)
		var body utils.Payload
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.False(t, body.Success)
		assert.Equal(t, "Could not save file", body.Message)
		if production {
			assert.Empty(t, body.Error)
			assert.NotContains(t, w.Body.String(), "10.0.0.5")
		} else {
			assert.Contains(t, body.Error, "connection refused")
		}
	}
}

func TestOwnerID_MissingIdentity(t *testing.T) {
	h := New(Deps{})
	w := httptest.NewRecorder()

	_, ok := h.ownerID(w, httptest.NewRequest(http.MethodGet, "/files", nil))
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
