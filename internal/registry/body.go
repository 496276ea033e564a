package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/bgbm/dnastore/internal/apperr"
	"github.com/bgbm/dnastore/internal/scope"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const dayLayout = "2006-01-02"

var validate = newValidator()

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode applies the writable subset of body onto dst and validates the result.
func (r *resource[T]) decode(fields scope.FieldSet, body map[string]any, dst *T) error {
	aliased := make(map[string]any, len(body))
	for k, v := range body {
		aliased[k] = v
	}
	for alias, target := range r.desc.aliases {
		if v, ok := aliased[alias]; ok {
			if _, taken := aliased[target]; !taken {
				aliased[target] = v
			}
			delete(aliased, alias)
		}
	}

	writable := fields.WritableOnly(aliased)
	errs := apperr.FieldErrors{}
	r.coerce(writable, errs)
	if errFields := errs.Err(); errFields != nil {
		return errFields
	}

	raw, errMarshal := json.Marshal(writable)
	if errMarshal != nil {
		return apperr.Field("non_field_errors", "invalid request body")
	}
	if errUnmarshal := json.Unmarshal(raw, dst); errUnmarshal != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(errUnmarshal, &typeErr) && typeErr.Field != "" {
			return apperr.Field(typeErr.Field, "invalid value")
		}
		return apperr.Field("non_field_errors", "invalid request body")
	}

	validateRow(dst, errs)
	if r.desc.check != nil {
		r.desc.check(dst, errs)
	}
	return errs.Err()
}

// coerce converts loosely typed input values in place.
func (r *resource[T]) coerce(body map[string]any, errs apperr.FieldErrors) {
	convert := func(names []string, fn func(any) (any, bool), msg string) {
		for _, name := range names {
			v, ok := body[name]
			if !ok {
				continue
			}
			out, valid := fn(v)
			if !valid {
				errs.Add(name, msg)
				continue
			}
			body[name] = out
		}
	}
	convert(r.desc.dates, coerceDate, "date has wrong format, use YYYY-MM-DD")
	convert(r.desc.flags, coerceFlag, "must be a valid boolean")
	convert(r.desc.refs, coerceRef, "incorrect type, expected pk value")
	convert(r.desc.decimals, coerceDecimal, "a valid number is required")
}

// validateRow runs struct tag validation and records messages per field.
func validateRow(row any, errs apperr.FieldErrors) {
	errValidate := validate.Struct(row)
	if errValidate == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(errValidate, &verrs) {
		errs.Add("non_field_errors", errValidate.Error())
		return
	}
	for _, fe := range verrs {
		errs.Add(fe.Field(), validationMessage(fe))
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "max":
		return "ensure this field has no more than " + fe.Param() + " characters"
	case "min":
		return "ensure this value is greater than or equal to " + fe.Param()
	case "email":
		return "enter a valid email address"
	default:
		return "invalid value"
	}
}

// represent renders row as its projected JSON representation.
func (r *resource[T]) represent(row *T, fields scope.FieldSet) (map[string]any, error) {
	raw, errMarshal := json.Marshal(row)
	if errMarshal != nil {
		return nil, apperr.Internal("encode "+r.table(), errMarshal)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rep map[string]any
	if errDecode := dec.Decode(&rep); errDecode != nil {
		return nil, apperr.Internal("decode "+r.table(), errDecode)
	}
	for _, name := range r.desc.dates {
		if s, ok := rep[name].(string); ok && len(s) > len(dayLayout) {
			rep[name] = s[:len(dayLayout)]
		}
	}
	if r.desc.extras != nil {
		for k, v := range r.desc.extras(row) {
			rep[k] = v
		}
	}
	return fields.Project(rep), nil
}

// representAll renders rows in order.
func (r *resource[T]) representAll(rows []T, fields scope.FieldSet) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(rows))
	for i := range rows {
		rep, errRep := r.represent(&rows[i], fields)
		if errRep != nil {
			return nil, errRep
		}
		out = append(out, rep)
	}
	return out, nil
}

// cloneRow deep-copies the JSON-visible columns of row.
func cloneRow[T any](row *T) (*T, error) {
	raw, errMarshal := json.Marshal(row)
	if errMarshal != nil {
		return nil, errMarshal
	}
	var out T
	if errUnmarshal := json.Unmarshal(raw, &out); errUnmarshal != nil {
		return nil, errUnmarshal
	}
	return &out, nil
}

// parseFlag reads the boolean spellings accepted in bodies and filters.
func parseFlag(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// parseDay reads a calendar date, accepting RFC 3339 timestamps as well.
func parseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if day, errParse := time.Parse(dayLayout, raw); errParse == nil {
		return day, nil
	}
	ts, errParse := time.Parse(time.RFC3339, raw)
	if errParse != nil {
		return time.Time{}, errParse
	}
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
}

func coerceDate(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, true
		}
		day, errParse := parseDay(t)
		if errParse != nil {
			return nil, false
		}
		return day.Format(time.RFC3339), true
	default:
		return nil, false
	}
}

func coerceFlag(v any) (any, bool) {
	switch t := v.(type) {
	case nil, bool:
		return t, true
	case float64:
		if t == 0 || t == 1 {
			return t == 1, true
		}
		return nil, false
	case int:
		if t == 0 || t == 1 {
			return t == 1, true
		}
		return nil, false
	case json.Number:
		return parseFlag(t.String())
	case string:
		return parseFlag(t)
	default:
		return nil, false
	}
}

func coerceRef(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case float64:
		if t < 1 || t != float64(uint64(t)) {
			return nil, false
		}
		return uint64(t), true
	case int:
		return uint64(t), t > 0
	case int64:
		return uint64(t), t > 0
	case uint64:
		return t, t > 0
	case json.Number:
		id, errParse := strconv.ParseUint(t.String(), 10, 64)
		return id, errParse == nil && id > 0
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, true
		}
		id, errParse := strconv.ParseUint(strings.TrimSpace(t), 10, 64)
		return id, errParse == nil && id > 0
	default:
		return nil, false
	}
}

func coerceDecimal(v any) (any, bool) {
	var (
		d        decimal.Decimal
		errParse error
	)
	switch t := v.(type) {
	case float64:
		d = decimal.NewFromFloat(t)
	case json.Number:
		d, errParse = decimal.NewFromString(t.String())
	case string:
		d, errParse = decimal.NewFromString(strings.TrimSpace(t))
	default:
		return nil, false
	}
	if errParse != nil {
		return nil, false
	}
	return d.String(), true
}

// invalidPK is the message for references the caller may not use.
func invalidPK(id uint64) string {
	return fmt.Sprintf("invalid pk %q - object does not exist", strconv.FormatUint(id, 10))
}
