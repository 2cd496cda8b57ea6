package defaults

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Date is a unix timestamp in seconds that decodes from YAML as a number or
// as a date string. A null or empty date is 0.
type Date int64

// dateLayouts are tried in order
var dateLayouts = []string{
	"2006-Jan-02",
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"January 02, 2006",
}

func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!null" {
		*d = 0
		return nil
	}
	ts, err := ParseDate(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Date(ts)
	return nil
}

// ParseDate converts a date string in one of the supported layouts or a
// plain unix timestamp to unix seconds (UTC).
func ParseDate(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return 0, nil
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ts, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unsupported date %q", s)
}
