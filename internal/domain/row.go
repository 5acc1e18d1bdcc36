package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Row — одна запись коллекции в виде «поле → значение».
// Имена полей совпадают с физической схемой (clienteFK, valor_total, ...).
type Row map[string]any

// Clone возвращает поверхностную копию строки.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID возвращает первичный ключ строки.
func (r Row) ID() (int64, error) {
	id, ok, err := r.Int64(FieldID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("row has no %s", FieldID)
	}
	return id, nil
}

// Int64 читает целое поле. ok=false, если поле отсутствует или NULL.
func (r Row) Int64(field string) (int64, bool, error) {
	v, present := r[field]
	if !present || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int64:
		return n, true, nil
	case int:
		return int64(n), true, nil
	case int32:
		return int64(n), true, nil
	case float64:
		return int64(n), true, nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("field %s: %w", field, err)
		}
		return parsed, true, nil
	case []byte:
		parsed, err := strconv.ParseInt(string(n), 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("field %s: %w", field, err)
		}
		return parsed, true, nil
	default:
		return 0, false, fmt.Errorf("field %s: unexpected type %T", field, v)
	}
}

// Float64 читает числовое поле; NUMERIC из PostgreSQL приходит строкой.
func (r Row) Float64(field string) (float64, bool, error) {
	v, present := r[field]
	if !present || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int32:
		return float64(n), true, nil
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false, fmt.Errorf("field %s: %w", field, err)
		}
		return parsed, true, nil
	case []byte:
		parsed, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return 0, false, fmt.Errorf("field %s: %w", field, err)
		}
		return parsed, true, nil
	default:
		return 0, false, fmt.Errorf("field %s: unexpected type %T", field, v)
	}
}

// Text читает текстовое поле.
func (r Row) Text(field string) (string, bool) {
	v, present := r[field]
	if !present || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return fmt.Sprint(v), true
	}
}

// Bool читает логическое поле; NULL трактуется как false.
func (r Row) Bool(field string) (bool, error) {
	v, present := r[field]
	if !present || v == nil {
		return false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("field %s: %w", field, err)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("field %s: unexpected type %T", field, v)
	}
}

// Time читает временную метку.
func (r Row) Time(field string) (time.Time, bool, error) {
	v, present := r[field]
	if !present || v == nil {
		return time.Time{}, false, nil
	}
	switch t := v.(type) {
	case time.Time:
		return t, true, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("field %s: %w", field, err)
		}
		return parsed, true, nil
	default:
		return time.Time{}, false, fmt.Errorf("field %s: unexpected type %T", field, v)
	}
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC()
}

func optionalInt64(r Row, field string) (*int64, error) {
	v, ok, err := r.Int64(field)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}
