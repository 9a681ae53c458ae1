package tool

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"time"

	"github.com/casualjim/strix/pkg/slogx"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// buildArgList resolves the function's call arguments from the JSON arguments.
// Context parameters receive ctx; missing arguments receive the zero value.
func buildArgList(ctx context.Context, def Definition, arguments string) ([]reflect.Value, error) {
	args := gjson.Parse(arguments)
	typ := reflect.TypeOf(def.Function)

	callArgs := make([]reflect.Value, typ.NumIn())
	var idx int
	for i := range typ.NumIn() {
		paramType := typ.In(i)
		if isContext(paramType) {
			callArgs[i] = reflect.ValueOf(ctx)
			continue
		}
		name := def.ParamName(idx)
		idx++

		val := args.Get(name)
		if !val.Exists() || val.Type == gjson.Null {
			callArgs[i] = reflect.Zero(paramType)
			continue
		}

		v, err := convertArg(val, paramType)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		callArgs[i] = v
	}
	return callArgs, nil
}

func convertArg(val gjson.Result, paramType reflect.Type) (reflect.Value, error) {
	switch paramType.Kind() {
	case reflect.String:
		return reflect.ValueOf(val.String()).Convert(paramType), nil
	case reflect.Bool:
		if val.Type != gjson.True && val.Type != gjson.False {
			return reflect.Value{}, fmt.Errorf("expected a boolean, got %s", val.Type)
		}
		return reflect.ValueOf(val.Bool()).Convert(paramType), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if val.Type != gjson.Number {
			return reflect.Value{}, fmt.Errorf("expected a number, got %s", val.Type)
		}
		return reflect.ValueOf(val.Float()).Convert(paramType), nil
	}

	ptr := reflect.New(paramType)
	if err := json.Unmarshal([]byte(val.Raw), ptr.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

var errorType = reflect.TypeFor[error]()

// callFunction calls fn and renders its first non-error result as text.
func callFunction(fn any, args []reflect.Value) (string, error) {
	val := reflect.ValueOf(fn)
	results := val.Call(args)

	var value reflect.Value
	for _, res := range results {
		if res.Type().Implements(errorType) && res.Type().Kind() == reflect.Interface {
			if !res.IsNil() {
				return "", res.Interface().(error)
			}
			continue
		}
		if !value.IsValid() {
			value = res
		}
	}
	if !value.IsValid() {
		return "", nil
	}
	return renderValue(value.Interface())
}

func renderValue(v any) (string, error) {
	switch vtpe := v.(type) {
	case nil:
		return "", nil
	case string:
		return vtpe, nil
	case []byte:
		return string(vtpe), nil
	case time.Time:
		return vtpe.Format(time.RFC3339), nil
	case bool:
		return strconv.FormatBool(vtpe), nil
	case int, int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(vtpe).Int(), 10), nil
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflect.ValueOf(vtpe).Uint(), 10), nil
	case float32, float64:
		return strconv.FormatFloat(reflect.ValueOf(vtpe).Float(), 'f', -1, 64), nil
	case encoding.TextMarshaler:
		b, err := vtpe.MarshalText()
		if err != nil {
			slog.Error("Error marshalling function return", slogx.Error(err))
			return "", err
		}
		return string(b), nil
	case fmt.Stringer:
		return vtpe.String(), nil
	default:
		b, err := json.Marshal(vtpe)
		if err != nil {
			slog.Error("Error marshalling function return", slogx.Error(err))
			return "", err
		}
		return string(b), nil
	}
}

// asToolError keeps typed errors and wraps anything else.
func asToolError(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Code: CodeExecutionFailed, Message: err.Error()}
}
