package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FlexibleInt unmarshals integers that browsers may send as numbers or strings.
// null, "" and a missing field all leave Set false.
type FlexibleInt struct {
	Value int
	Set   bool
}

func (f *FlexibleInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = FlexibleInt{}
		return nil
	}

	raw := string(b)
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*f = FlexibleInt{}
			return nil
		}
	}

	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q", raw)
	}
	if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt32 || n < math.MinInt32 {
		return fmt.Errorf("invalid integer %q", raw)
	}

	f.Value = int(n)
	f.Set = true
	return nil
}

func (f FlexibleInt) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(f.Value)), nil
}

// Or returns the value, or def when the field was absent or zero.
func (f FlexibleInt) Or(def int) int {
	if !f.Set || f.Value == 0 {
		return def
	}
	return f.Value
}
