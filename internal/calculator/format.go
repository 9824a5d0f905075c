package calculator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatUSD keeps sub-dollar amounts readable: four decimals below $1,
// two above.
func FormatUSD(usd float64) string {
	switch {
	case usd == 0:
		return "$0.00"
	case usd < 1 && usd > -1:
		return fmt.Sprintf("$%.4f", usd)
	default:
		return fmt.Sprintf("$%.2f", usd)
	}
}

func FormatTokenCount(tokens int64) string {
	switch {
	case tokens >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(tokens)/1_000_000.0)
	case tokens >= 1_000:
		return fmt.Sprintf("%.1fk", float64(tokens)/1_000.0)
	default:
		return fmt.Sprintf("%d", tokens)
	}
}

// ParseCount reads a token or request count. It accepts digit separators
// ("1_000_000", "1,000,000") and k/m suffixes ("128k", "1.5m"). An empty
// string is zero. Negative, non-finite and out-of-range values are errors.
func ParseCount(raw string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("_", "", ",", "").Replace(s)
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("count %q must not be negative", raw)
	}
	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = 1_000
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		multiplier = 1_000_000
		s = strings.TrimSuffix(s, "m")
	}
	if multiplier == 1 {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid count %q", raw)
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid count %q", raw)
	}
	// float64(math.MaxInt64) rounds up to 2^63, so >= keeps the conversion in range.
	v := f * multiplier
	if v < 0 || v >= float64(math.MaxInt64) {
		return 0, fmt.Errorf("count %q is out of range", raw)
	}
	return int64(v), nil
}
