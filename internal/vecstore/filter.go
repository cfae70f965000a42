package vecstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	FilterOpEq  = "$eq"
	FilterOpNe  = "$ne"
	FilterOpIn  = "$in"
	FilterOpGt  = "$gt"
	FilterOpGte = "$gte"
	FilterOpLt  = "$lt"
	FilterOpLte = "$lte"
)

// Predicate is one compiled field condition. A filter is a conjunction of
// predicates; no disjunction is supported at this boundary.
type Predicate struct {
	Field  string
	Op     string
	Value  any
	Values []any
}

type CompiledFilter struct {
	preds []Predicate
}

// CompileFilter validates and normalizes a raw filter map. Fields map either
// to a bare scalar (equality) or to an operator object such as
// {"$gte": 0.2, "$lte": 0.9}. Malformed shapes fail with validation_failed;
// unknown operators fail with unsupported_filter.
func CompileFilter(filter map[string]any) (*CompiledFilter, error) {
	out := &CompiledFilter{}
	if len(filter) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		field := strings.TrimSpace(key)
		if field == "" {
			return nil, opErr("filter_compile", OperationErrorValidation, "filter field name is empty", nil)
		}
		if strings.HasPrefix(field, "$") {
			return nil, opErr(
				"filter_compile",
				OperationErrorUnsupportedFilter,
				fmt.Sprintf("unsupported top-level filter operator %q", field),
				nil,
			)
		}

		switch typed := filter[key].(type) {
		case map[string]any:
			if len(typed) == 0 {
				return nil, opErr(
					"filter_compile",
					OperationErrorValidation,
					fmt.Sprintf("field %q has empty operator map", field),
					nil,
				)
			}
			ops := make([]string, 0, len(typed))
			for op := range typed {
				ops = append(ops, op)
			}
			sort.Strings(ops)

			for _, op := range ops {
				pred, err := compileOperator(field, strings.ToLower(strings.TrimSpace(op)), typed[op])
				if err != nil {
					return nil, err
				}
				out.preds = append(out.preds, pred)
			}

		default:
			scalar, ok := toScalarValue(filter[key])
			if !ok {
				return nil, opErr(
					"filter_compile",
					OperationErrorValidation,
					fmt.Sprintf("field %q expects scalar value or operator object", field),
					nil,
				)
			}
			out.preds = append(out.preds, Predicate{Field: field, Op: FilterOpEq, Value: scalar})
		}
	}

	return out, nil
}

func compileOperator(field, op string, raw any) (Predicate, error) {
	switch op {
	case FilterOpEq, FilterOpNe:
		scalar, ok := toScalarValue(raw)
		if !ok {
			return Predicate{}, opErr(
				"filter_compile",
				OperationErrorValidation,
				fmt.Sprintf("operator %s for field %q expects scalar value", op, field),
				nil,
			)
		}
		return Predicate{Field: field, Op: op, Value: scalar}, nil

	case FilterOpIn:
		values, err := toScalarSlice(raw)
		if err != nil {
			return Predicate{}, opErr(
				"filter_compile",
				OperationErrorValidation,
				fmt.Sprintf("operator %s for field %q expects scalar array", op, field),
				err,
			)
		}
		if len(values) == 0 {
			return Predicate{}, opErr(
				"filter_compile",
				OperationErrorValidation,
				fmt.Sprintf("operator %s for field %q cannot be empty", op, field),
				nil,
			)
		}
		return Predicate{Field: field, Op: op, Values: values}, nil

	case FilterOpGt, FilterOpGte, FilterOpLt, FilterOpLte:
		scalar, ok := toScalarValue(raw)
		if !ok {
			return Predicate{}, opErr(
				"filter_compile",
				OperationErrorValidation,
				fmt.Sprintf("operator %s for field %q expects scalar value", op, field),
				nil,
			)
		}
		return Predicate{Field: field, Op: op, Value: scalar}, nil

	default:
		return Predicate{}, opErr(
			"filter_compile",
			OperationErrorUnsupportedFilter,
			fmt.Sprintf("unsupported filter operator %q for field %q", op, field),
			nil,
		)
	}
}

func (f *CompiledFilter) Predicates() []Predicate {
	if f == nil {
		return nil
	}
	return f.preds
}

// Matches evaluates the full conjunction against one metadata map.
func (f *CompiledFilter) Matches(meta map[string]any) bool {
	if f == nil {
		return true
	}
	for _, pred := range f.preds {
		val, present := meta[pred.Field]
		if !present {
			return false
		}
		if !pred.matches(val) {
			return false
		}
	}
	return true
}

func (p Predicate) matches(val any) bool {
	switch p.Op {
	case FilterOpEq:
		return scalarEqual(val, p.Value)
	case FilterOpNe:
		return !scalarEqual(val, p.Value)
	case FilterOpIn:
		for _, candidate := range p.Values {
			if scalarEqual(val, candidate) {
				return true
			}
		}
		return false
	case FilterOpGt, FilterOpGte, FilterOpLt, FilterOpLte:
		cmp, ok := scalarCompare(val, p.Value)
		if !ok {
			return false
		}
		switch p.Op {
		case FilterOpGt:
			return cmp > 0
		case FilterOpGte:
			return cmp >= 0
		case FilterOpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	default:
		return false
	}
}

func scalarEqual(a, b any) bool {
	if fa, aok := toFloat(a); aok {
		if fb, bok := toFloat(b); bok {
			return fa == fb
		}
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// scalarCompare returns -1/0/1 or ok=false when the operands are not
// comparable. Numbers compare numerically, strings lexically.
func scalarCompare(a, b any) (int, bool) {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch typed := v.(type) {
	case int:
		return float64(typed), true
	case int8:
		return float64(typed), true
	case int16:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint:
		return float64(typed), true
	case uint8:
		return float64(typed), true
	case uint16:
		return float64(typed), true
	case uint32:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	case json.Number:
		f, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toScalarSlice(value any) ([]any, error) {
	switch typed := value.(type) {
	case []any:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			scalar, ok := toScalarValue(v)
			if !ok {
				return nil, fmt.Errorf("expected scalar, got %T", v)
			}
			out = append(out, scalar)
		}
		return out, nil
	case []string:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			out = append(out, v)
		}
		return out, nil
	case []int:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			out = append(out, v)
		}
		return out, nil
	case []float64:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			out = append(out, v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected scalar array, got %T", value)
	}
}

func toScalarValue(value any) (any, bool) {
	switch typed := value.(type) {
	case string:
		return typed, true
	case bool:
		return typed, true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return typed, true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i, true
		}
		if f, err := typed.Float64(); err == nil {
			return f, true
		}
		return nil, false
	default:
		return nil, false
	}
}
