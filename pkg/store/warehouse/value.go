package warehouse

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb/v2"
)

// AsString converts a scanned value to text. ok is false for NULL.
func AsString(v any) (s string, ok bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case time.Time:
		return t.Format("2006-01-02"), true
	default:
		return fmt.Sprint(t), true
	}
}

// AsFloat converts a scanned numeric value. Drivers differ: snowflake and
// pgx hand back NUMBER/NUMERIC as text, duckdb sums integers into HUGEINT
// (*big.Int) and DECIMAL into duckdb.Decimal. NULL converts to 0.
func AsFloat(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int8:
		return float64(t), nil
	case int16:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint:
		return float64(t), nil
	case uint8:
		return float64(t), nil
	case uint16:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case *big.Int:
		if t == nil {
			return 0, nil
		}
		f, _ := new(big.Float).SetInt(t).Float64()
		return f, nil
	case duckdb.Decimal:
		return t.Float64(), nil
	case *duckdb.Decimal:
		if t == nil {
			return 0, nil
		}
		return t.Float64(), nil
	case []byte:
		return parseFloat(string(t))
	case string:
		return parseFloat(t)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value %q: %w", s, err)
	}
	return f, nil
}
