package scope

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/hashicorp/go-argmapper"
	"github.com/hashicorp/go-multierror"
)

// markerType is used for markerValue on Bean.
type markerType struct{}

// createState tracks the order beans were created in so that Close can
// destroy them in reverse.
type createState struct {
	Order []string
}

// Bean is a single named element of a Scope with a create and destroy
// lifecycle and an optional state value. The state value is how a bean
// shares what it built (a connection pool, a transaction manager) with the
// beans that depend on it and with the callers of the scope.
type Bean struct {
	name        string
	stateType   reflect.Type
	stateValue  interface{}
	createFunc  interface{}
	destroyFunc interface{}
}

// NewBean creates a new bean.
//
// Callers should call Validate on the result to check for errors.
func NewBean(opts ...BeanOption) *Bean {
	var b Bean
	for _, opt := range opts {
		opt(&b)
	}

	return &b
}

// Validate checks that the bean is configured correctly.
func (b *Bean) Validate() error {
	var result error

	if b.name == "" {
		result = multierror.Append(result, errors.New("name must be set"))
	}

	if b.createFunc == nil {
		result = multierror.Append(result, errors.New("creation function must be set"))
	}

	if b.stateType != nil && b.stateType.Kind() != reflect.Ptr {
		result = multierror.Append(result, fmt.Errorf(
			"state type %s must be a pointer", b.stateType.String()))
	}

	return result
}

// Name returns the name of the bean.
func (b *Bean) Name() string {
	return b.name
}

// State returns the current state of this bean. This is nil until the
// bean is created and is reset after it is destroyed.
func (b *Bean) State() interface{} {
	return b.stateValue
}

// mapperForCreate returns an argmapper func that takes as input the
// requirements for the createFunc and returns the state type plus the
// marker value for this bean.
func (b *Bean) mapperForCreate(cs *createState) (*argmapper.Func, error) {
	original, err := argmapper.NewFunc(b.createFunc)
	if err != nil {
		return nil, err
	}

	markerVal := markerValue(b.name)
	outputs, err := argmapper.NewValueSet([]argmapper.Value{markerVal})
	if err != nil {
		return nil, err
	}

	inputs := original.Input()
	if b.stateType != nil {
		// The state is produced by this function for dependents.
		outputs, err = argmapper.NewValueSet(append(outputs.Values(), argmapper.Value{
			Type: b.stateType,
		}))
		if err != nil {
			return nil, err
		}

		b.initState(true)

		// Our own state is supplied directly rather than resolved, so
		// drop it from the required inputs.
		inputVals := inputs.Values()
		for i := 0; i < len(inputVals); i++ {
			if inputVals[i].Type != b.stateType {
				continue
			}

			inputVals[len(inputVals)-1], inputVals[i] = inputVals[i], inputVals[len(inputVals)-1]
			inputVals = inputVals[:len(inputVals)-1]
			i--
		}

		inputs, err = argmapper.NewValueSet(inputVals)
		if err != nil {
			return nil, err
		}
	}

	return argmapper.BuildFunc(inputs, outputs, func(in, out *argmapper.ValueSet) error {
		args := in.Args()
		if b.stateType != nil {
			args = append(args, argmapper.Typed(b.stateValue))
			if v := out.Typed(b.stateType); v != nil {
				v.Value = reflect.ValueOf(b.stateValue)
			}
		}

		if v := out.TypedSubtype(markerVal.Type, markerVal.Subtype); v != nil {
			v.Value = markerVal.Value
		}

		// Recorded before the call so a failed create still gets its
		// destroy function called during rollback.
		if cs != nil {
			cs.Order = append(cs.Order, b.name)
		}

		result := original.Call(args...)
		return result.Err()
	}, argmapper.FuncOnce())
}

// mapperForDestroy returns an argmapper func that destroys this bean. deps
// are the names of the beans that must be destroyed before this one.
func (b *Bean) mapperForDestroy(deps []string) (*argmapper.Func, error) {
	destroyFunc := b.destroyFunc
	if destroyFunc == nil {
		destroyFunc = func() {}
	}

	original, err := argmapper.NewFunc(destroyFunc)
	if err != nil {
		return nil, err
	}

	markerVal := markerValue(b.name)
	outputs, err := argmapper.NewValueSet([]argmapper.Value{markerVal})
	if err != nil {
		return nil, err
	}

	inputVals := original.Input().Values()
	for _, d := range deps {
		if d == b.name {
			return nil, fmt.Errorf("bean %q depends on itself for destroy", b.name)
		}

		inputVals = append(inputVals, markerValue(d))
	}

	inputs, err := argmapper.NewValueSet(inputVals)
	if err != nil {
		return nil, err
	}

	var buildArgs []argmapper.Arg
	if b.stateType != nil {
		if b.stateValue == nil {
			b.initState(true)
		}

		buildArgs = append(buildArgs, argmapper.Typed(b.stateValue))
	}
	buildArgs = append(buildArgs, argmapper.FuncOnce())

	return argmapper.BuildFunc(inputs, outputs, func(in, out *argmapper.ValueSet) error {
		if v := out.TypedSubtype(markerVal.Type, markerVal.Subtype); v != nil {
			v.Value = markerVal.Value
		}

		result := original.Call(in.Args()...)
		err := result.Err()
		if err == nil {
			b.initState(false)
		}

		return err
	}, buildArgs...)
}

// initState sets the state to an allocated zero value when zero is true
// and to the nil value of the state type otherwise.
func (b *Bean) initState(zero bool) {
	if b.stateType == nil {
		return
	}

	if zero {
		b.stateValue = reflect.New(b.stateType.Elem()).Interface()
	} else {
		b.stateValue = nil
	}
}

// BeanOption is used to configure NewBean.
type BeanOption func(*Bean)

// WithName sets the name of the bean. The name must be unique within a
// scope.
func WithName(n string) BeanOption {
	return func(b *Bean) { b.name = n }
}

// WithCreate sets the creation function for this bean.
//
// The function may take as inputs any values available to the scope:
// arguments given to Refresh, values set with WithValue, outputs of value
// providers, the states of other beans and the values and states of the
// parent scope. The state type set with WithState is passed in as an
// allocated zero value.
//
// Only a final "error" return value is used. Any other return value is
// ignored.
func WithCreate(f interface{}) BeanOption {
	return func(b *Bean) { b.createFunc = f }
}

// WithDestroy sets the function to destroy this bean. The state argument
// is populated with the value filled in during create.
func WithDestroy(f interface{}) BeanOption {
	return func(b *Bean) { b.destroyFunc = f }
}

// WithState specifies the state type for this bean. The value v is only
// used to determine the type and must be a pointer.
func WithState(v interface{}) BeanOption {
	return func(b *Bean) { b.stateType = reflect.TypeOf(v) }
}

// markerValue returns an argmapper.Value that is unique to this bean.
//
// argmapper only calls the functions needed to satisfy the inputs of the
// final function in a chain. The scope makes every bean marker an input of
// its final function so that every create (or destroy) function is called.
func markerValue(n string) argmapper.Value {
	val := markerType(struct{}{})
	return argmapper.Value{
		Type:    reflect.TypeOf(val),
		Subtype: n,
		Value:   reflect.ValueOf(val),
	}
}
