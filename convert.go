package strata

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	durationType = reflect.TypeFor[time.Duration]()
	timeType     = reflect.TypeFor[time.Time]()
)

// convertValue coerces value to typ. A value already of the declared type
// passes through untouched; otherwise conversion follows the same rules the
// typed accessors use: numeric widening/truncation, strconv parsing for
// strings, duration and RFC3339 time parsing, comma-split string slices.
func convertValue(value any, typ reflect.Type) (any, error) {
	if value == nil {
		return nil, fmt.Errorf("%w: nil to %s", ErrConversion, typ)
	}

	vt := reflect.TypeOf(value)
	if vt == typ {
		return value, nil
	}

	// Durations and times before the kind switch: time.Duration's kind is
	// Int64 and would otherwise be treated as a plain integer.
	switch typ {
	case durationType:
		return convertDuration(value)
	case timeType:
		if s, ok := value.(string); ok {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, fmt.Errorf("%w: %q to time: %w", ErrConversion, s, err)
			}
			return t, nil
		}
		return nil, fmt.Errorf("%w: %T to time", ErrConversion, value)
	}

	rv := reflect.ValueOf(value)

	switch typ.Kind() {
	case reflect.Bool:
		return convertBool(rv, value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := convertInt64(rv, value)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(i).Convert(typ).Interface(), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, err := convertInt64(rv, value)
		if err != nil {
			return nil, err
		}
		if i < 0 {
			return nil, fmt.Errorf("%w: negative value %d to %s", ErrConversion, i, typ)
		}
		return reflect.ValueOf(i).Convert(typ).Interface(), nil

	case reflect.Float32, reflect.Float64:
		f, err := convertFloat64(rv, value)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(f).Convert(typ).Interface(), nil

	case reflect.String:
		s, err := convertString(rv, value)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(s).Convert(typ).Interface(), nil

	case reflect.Slice:
		return convertSlice(value, typ)

	case reflect.Map:
		if vt != nil && vt.AssignableTo(typ) {
			return value, nil
		}
	}

	if vt != nil && vt.AssignableTo(typ) {
		return value, nil
	}
	return nil, fmt.Errorf("%w: %T to %s", ErrConversion, value, typ)
}

func convertDuration(value any) (any, error) {
	switch v := value.(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %q to duration: %w", ErrConversion, v, err)
		}
		return d, nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(rv.Int()), nil
	case reflect.Float32, reflect.Float64:
		return time.Duration(rv.Float()), nil
	}
	return nil, fmt.Errorf("%w: %T to duration", ErrConversion, value)
}

func convertBool(rv reflect.Value, value any) (any, error) {
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		b, err := strconv.ParseBool(rv.String())
		if err != nil {
			return nil, fmt.Errorf("%w: %q to bool: %w", ErrConversion, rv.String(), err)
		}
		return b, nil
	// Numeric interpretation: 0 is false, non-zero is true.
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0, nil
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0, nil
	}
	return nil, fmt.Errorf("%w: %T to bool", ErrConversion, value)
}

func convertInt64(rv reflect.Value, value any) (int64, error) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > uint64(1<<63-1) {
			return 0, fmt.Errorf("%w: unsigned %d overflows int64", ErrConversion, u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return int64(rv.Float()), nil
	case reflect.String:
		s := rv.String()
		if i, err := strconv.ParseInt(s, 0, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), nil
		}
		return 0, fmt.Errorf("%w: %q to integer", ErrConversion, s)
	case reflect.Bool:
		if rv.Bool() {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %T to integer", ErrConversion, value)
}

func convertFloat64(rv reflect.Value, value any) (float64, error) {
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.String:
		s := rv.String()
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q to float: %w", ErrConversion, s, err)
		}
		return f, nil
	case reflect.Bool:
		if rv.Bool() {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %T to float", ErrConversion, value)
}

func convertString(rv reflect.Value, value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	case error:
		return v.Error(), nil
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	case reflect.String:
		return rv.String(), nil
	}
	return "", fmt.Errorf("%w: %T to string", ErrConversion, value)
}

func convertSlice(value any, typ reflect.Type) (any, error) {
	// Comma-separated strings expand into string slices the way the decode
	// hooks do it.
	if s, ok := value.(string); ok && typ.Elem().Kind() == reflect.String {
		parts := strings.Split(s, ",")
		out := reflect.MakeSlice(typ, 0, len(parts))
		for _, p := range parts {
			out = reflect.Append(out, reflect.ValueOf(strings.TrimSpace(p)))
		}
		return out.Interface(), nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: %T to %s", ErrConversion, value, typ)
	}
	out := reflect.MakeSlice(typ, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		elem, err := convertValue(rv.Index(i).Interface(), typ.Elem())
		if err != nil {
			return nil, err
		}
		out = reflect.Append(out, reflect.ValueOf(elem))
	}
	return out.Interface(), nil
}
