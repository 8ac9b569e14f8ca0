package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/nerrad567/regsync/internal/register"
)

// hexByte is a JSON number that may also arrive as a string such as "0x3F"
// or "63", the way the camera web UI sends register fields.
type hexByte struct {
	n   int64
	set bool
}

func (h *hexByte) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*h = hexByte{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
		if err != nil {
			return fmt.Errorf("%q is not a number", s)
		}
		*h = hexByte{n: n, set: true}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	i, err := n.Int64()
	if err != nil {
		return fmt.Errorf("%s is not an integer", n)
	}
	*h = hexByte{n: i, set: true}
	return nil
}

func (h hexByte) address() (register.Address, error) {
	if !h.set {
		return 0, fmt.Errorf("%w: addr is required", register.ErrInvalidAddress)
	}
	return register.AddressFromInt(h.n)
}

func (h hexByte) value() (register.Value, error) {
	if !h.set {
		return 0, fmt.Errorf("%w: value is required", register.ErrInvalidValue)
	}
	return register.ValueFromInt(h.n)
}

// bankField accepts 0, 1, "0", "1", "dsp" or "sensor".
type bankField struct {
	bank register.Bank
	set  bool
	err  error
}

func (b *bankField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	bank, err := register.ParseBank(s)
	*b = bankField{bank: bank, set: true, err: err}
	return nil
}

func (b bankField) get() (register.Bank, error) {
	if !b.set {
		return 0, fmt.Errorf("%w: bank is required", register.ErrInvalidAddress)
	}
	return b.bank, b.err
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// queryBank parses the bank query parameter.
func queryBank(r *http.Request) (register.Bank, error) {
	v := r.URL.Query().Get("bank")
	if v == "" {
		return 0, fmt.Errorf("%w: bank is required", register.ErrInvalidAddress)
	}
	return register.ParseBank(v)
}

// queryAddress parses an address query parameter.
func queryAddress(r *http.Request, name string) (register.Address, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, fmt.Errorf("%w: %s is required", register.ErrInvalidAddress, name)
	}
	return register.ParseAddress(v)
}

// queryBool treats "1", "true" and "yes" as true.
func queryBool(r *http.Request, name string) bool {
	switch strings.ToLower(r.URL.Query().Get(name)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// queryInt returns the integer parameter or def when absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
