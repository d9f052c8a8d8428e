// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	taoerrors "github.com/taodb/tao/errors"
)

func TestWriteErr_StatusMapping(t *testing.T) {
	cases := []struct {
		err      error
		wantCode int
	}{
		{taoerrors.ErrUnauthorized, http.StatusUnauthorized},
		{taoerrors.ErrNotFound, http.StatusNotFound},
		{taoerrors.ErrConflict, http.StatusConflict},
		{taoerrors.ErrInvalidArgument, http.StatusBadRequest},
		{taoerrors.ErrShardUnavailable, http.StatusServiceUnavailable},
		{taoerrors.ErrClockRegressionExceeded, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		writeErr(w, tc.err)
		assert.Equal(t, tc.wantCode, w.Code)

		var body envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.False(t, body.Success)
		assert.Equal(t, tc.err.Error(), body.Error)
	}
}

func TestWriteOK_Envelope(t *testing.T) {
	w := httptest.NewRecorder()
	writeOK(w, map[string]uint64{"id": 7})

	assert.Equal(t, http.StatusOK, w.Code)
	var body envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
}
