package backend

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// wireID is sent as a JSON number when it is a canonical integer, since the
// backend keys users, scenes and topics by integer. Ids such as "007" stay
// strings. Either form is accepted back.
type wireID string

func (id wireID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		if canonical := strconv.FormatInt(n, 10); canonical == string(id) {
			return []byte(canonical), nil
		}
	}
	return json.Marshal(string(id))
}

func (id *wireID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = wireID(n.String())
	return nil
}
