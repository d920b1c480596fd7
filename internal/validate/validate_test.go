package validate

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addressForm struct {
	Mobile  string `json:"mobile" validate:"required,notblank"`
	City    string `json:"city" validate:"required,notblank"`
	PinCode string `json:"pinCode" validate:"required,notblank"`
	Note    string `json:"note,omitempty"`
}

var addressMessages = map[string]string{
	"mobile":  "Mobile is Required",
	"city":    "City is Required",
	"pinCode": "PinCode is Required",
}

func TestStructCollectsEveryFailure(t *testing.T) {
	failures := Struct(&addressForm{City: "  "}, addressMessages)

	assert.Equal(t, []FieldError{
		{Field: "mobile", Message: "Mobile is Required"},
		{Field: "city", Message: "City is Required"},
		{Field: "pinCode", Message: "PinCode is Required"},
	}, failures)
}

func TestStructPasses(t *testing.T) {
	failures := Struct(&addressForm{Mobile: "555", City: "Pune", PinCode: "411001"}, addressMessages)
	assert.Nil(t, failures)
}

func TestStructDefaultMessage(t *testing.T) {
	failures := Struct(&addressForm{Mobile: "555", City: "Pune"}, map[string]string{})
	assert.Equal(t, []FieldError{{Field: "pinCode", Message: "pinCode is required"}}, failures)
}

func TestNotBlank(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{name: "empty", value: "", want: false},
		{name: "blank", value: " \t", want: false},
		{name: "text", value: "x", want: true},
		{name: "padded", value: "  x ", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failures := Struct(&addressForm{Mobile: tt.value, City: "Pune", PinCode: "1"}, addressMessages)
			assert.Equal(t, tt.want, failures == nil)
		})
	}
}

func TestBodyMiddleware(t *testing.T) {
	var got []FieldError
	onFail := func(w http.ResponseWriter, failures []FieldError) {
		got = failures
		w.WriteHeader(http.StatusUnprocessableEntity)
	}

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = string(data)
		w.WriteHeader(http.StatusOK)
	})
	handler := Body[addressForm](onFail, addressMessages)(next)

	serve := func(body string) *httptest.ResponseRecorder {
		got, seen = nil, ""
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		return rec
	}

	t.Run("rejects before handler", func(t *testing.T) {
		rec := serve(`{"mobile":"555"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, []FieldError{
			{Field: "city", Message: "City is Required"},
			{Field: "pinCode", Message: "PinCode is Required"},
		}, got)
		assert.Empty(t, seen)
	})

	t.Run("null counts as missing", func(t *testing.T) {
		rec := serve(`{"mobile":null,"city":"Pune","pinCode":"1"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, []FieldError{{Field: "mobile", Message: "Mobile is Required"}}, got)
	})

	t.Run("malformed body fails every field", func(t *testing.T) {
		rec := serve(`[1,2`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Len(t, got, len(addressMessages))
	})

	t.Run("wrong type names the field", func(t *testing.T) {
		rec := serve(`{"mobile":"555","city":"Pune","pinCode":411001}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, []FieldError{{Field: "pinCode", Message: "PinCode is Required"}}, got)
	})

	t.Run("passes body through", func(t *testing.T) {
		payload, err := json.Marshal(map[string]string{"mobile": "555", "city": "Pune", "pinCode": "411001"})
		require.NoError(t, err)

		rec := serve(string(payload))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, got)
		assert.JSONEq(t, string(payload), seen)
	})
}
