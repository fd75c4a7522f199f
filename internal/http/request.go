package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kakeibo/internal/core"
	"kakeibo/internal/fiscal"
)

const maxBodyBytes = 1 << 20

const (
	msgInvalidBody  = "リクエストの形式が正しくありません。"
	msgInvalidLimit = "limit must be a positive integer"
	msgInvalidDate  = "日付の形式が正しくありません。"

	msgInvalidMultiplier = "multiplier must be a whole number"
)

// decodeJSON reads one JSON object from the body. Unknown fields are
// ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.Invalid("body", "request body too large")
		}
		return core.Invalid("body", msgInvalidBody)
	}
	return nil
}

// flexInt accepts a JSON number or a numeric string, as browser forms send
// either. Valid is false for null, blanks, fractions and anything that is
// not a number. Set is true when a non-blank value was sent, so callers can
// tell an omitted field from a malformed one.
type flexInt struct {
	Value int64
	Valid bool
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*f = flexInt{}
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}

	*f = flexInt{Set: raw != ""}
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsInteger() {
		return nil
	}
	if d.Abs().GreaterThan(decimal.NewFromInt(1 << 53)) {
		return nil
	}
	f.Value, f.Valid = d.IntPart(), true
	return nil
}

// parseID reads a positive integer id. A missing id and a malformed one
// get different messages.
func parseID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, core.Invalid("id", core.MsgIDRequired)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Invalid("id", core.MsgInvalidID)
	}
	return id, nil
}

// parseLimit returns 0 when the parameter is absent, so the service
// applies its default.
func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, core.Invalid("limit", msgInvalidLimit)
	}
	return n, nil
}

// parseWeek maps the week parameter to 1..MaxWeeks, or 0 for the whole
// period. "all", blanks and out-of-range values all mean the whole period.
func parseWeek(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 || n > fiscal.MaxWeeks {
		return 0
	}
	return n
}

// parseDate reads an optional ISO date, falling back to now.
func parseDate(raw string, loc *time.Location, now time.Time) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return now.In(loc), nil
	}
	t, err := fiscal.ParseReference(raw, loc)
	if err != nil {
		return time.Time{}, core.Invalid("date", msgInvalidDate)
	}
	return t, nil
}
