package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
)

const maxJSONBodyBytes = 1 << 20

// text is a request string that also accepts JSON numbers, so fields such as
// pinCode or mobile can be sent either way. Other JSON types are rejected.
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = text(s)
	case 't', 'f':
		return &json.UnmarshalTypeError{Value: "bool", Type: reflect.TypeOf(*t)}
	case '{':
		return &json.UnmarshalTypeError{Value: "object", Type: reflect.TypeOf(*t)}
	case '[':
		return &json.UnmarshalTypeError{Value: "array", Type: reflect.TypeOf(*t)}
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return &json.UnmarshalTypeError{Value: string(data), Type: reflect.TypeOf(*t)}
		}
		*t = text(n.String())
	}
	return nil
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}
