package tool

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/casualjim/strix/pkg/stdx"
	"github.com/fogfish/opts"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Definition describes a tool backed by a Go function.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]string
	Function    any
}

var functionReflector = jsonschema.Reflector{
	AllowAdditionalProperties: true,
	DoNotReference:            true,
}

var contextType = reflect.TypeFor[context.Context]()

func isContext(t reflect.Type) bool {
	return t == contextType
}

// ParamName returns the JSON argument name of the i-th non-context parameter.
func (td Definition) ParamName(i int) string {
	key := fmt.Sprintf("param%d", i)
	if td.Parameters != nil {
		if p, ok := td.Parameters[key]; ok {
			return p
		}
	}
	return key
}

// Schema returns the JSON schema of the tool's arguments object.
func (td Definition) Schema() *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: orderedmap.New[string, *jsonschema.Schema](),
	}

	typ := reflect.TypeOf(td.Function)
	if typ == nil || typ.Kind() != reflect.Func {
		return schema
	}

	var required []string
	var idx int
	for i := range typ.NumIn() {
		paramType := typ.In(i)
		if isContext(paramType) {
			continue
		}
		name := td.ParamName(idx)
		idx++

		propSchema := functionReflector.ReflectFromType(paramType)
		propSchema.Version = ""
		schema.Properties.Set(name, propSchema)
		required = append(required, name)
	}
	if len(required) > 0 {
		schema.Required = required
	}
	return schema
}

// Option configures a Definition.
type Option = opts.Option[Definition]

// Must is New that panics on error.
func Must(f any, options ...Option) Definition {
	return stdx.Must1(New(f, options...))
}

// New creates a Definition for f, which must be a function.
func New(f any, options ...Option) (Definition, error) {
	if f == nil || reflect.TypeOf(f).Kind() != reflect.Func {
		return Definition{}, fmt.Errorf("provided value is not a function")
	}

	var def Definition
	if err := opts.Apply(&def, options); err != nil {
		return Definition{}, err
	}
	if def.Name == "" {
		def.Name = functionName(f)
	}

	def.Function = f
	return def, nil
}

func functionName(f any) string {
	val := reflect.ValueOf(f)
	if fn := runtime.FuncForPC(val.Pointer()); fn != nil {
		name := fn.Name()
		if lastDot := strings.LastIndex(name, "."); lastDot >= 0 {
			name = name[lastDot+1:]
		}
		return strings.TrimSuffix(name, "-fm")
	}
	return val.Type().String()
}

var (
	// Name sets the tool name the invoker dispatches on.
	Name = opts.ForName[Definition, string]("Name")
	// Description sets a human readable description.
	Description = opts.ForName[Definition, string]("Description")
)

// Parameters names the function's non-context parameters in order.
func Parameters(parameters ...string) Option {
	return opts.Type[Definition](func(o *Definition) error {
		o.Parameters = make(map[string]string, len(parameters))
		for i, p := range parameters {
			o.Parameters[fmt.Sprintf("param%d", i)] = p
		}
		return nil
	})
}
