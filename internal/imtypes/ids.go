package imtypes

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// ID is an identifier that the backends send either as a JSON string or as a
// JSON number (gorm primary keys). It is always handled as a string locally.
type ID string

// UnmarshalJSON accepts strings, numbers and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.Wrap(err, "id is neither a string nor a number")
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as a plain string.
func (id ID) String() string { return string(id) }

// Timestamp is a point in time in unix milliseconds. On the wire it is a
// number; RFC 3339 strings are accepted on input.
type Timestamp int64

// Now returns the current time as a Timestamp.
func Now() Timestamp { return FromTime(time.Now()) }

// FromTime converts t to a Timestamp.
func FromTime(t time.Time) Timestamp { return Timestamp(t.UnixMilli()) }

// Time converts ts back to a time.Time.
func (ts Timestamp) Time() time.Time { return time.UnixMilli(int64(ts)) }

// UnmarshalJSON accepts unix milliseconds, RFC 3339 strings and null.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*ts = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*ts = 0
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			*ts = Timestamp(n)
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return errors.Wrapf(err, "invalid timestamp %q", s)
		}
		*ts = FromTime(t)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.Wrap(err, "timestamp is neither a string nor a number")
	}
	*ts = Timestamp(int64(f))
	return nil
}
