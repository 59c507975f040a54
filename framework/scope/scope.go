package scope

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-argmapper"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// ErrClosed is returned by Refresh once a scope has been closed.
var ErrClosed = errors.New("scope is closed")

// Scope manages the lifecycle of a set of beans.
//
// Beans are created together by Refresh in the order required by their
// dependencies and destroyed together by Close in the reverse order. A
// failed Refresh destroys whatever it managed to create before returning.
//
// A scope may have a parent. The values and bean states of the parent are
// available to the beans of the child, but the child never creates or
// destroys anything owned by the parent.
//
// Create a Scope with New and a set of options.
type Scope struct {
	mu sync.Mutex

	parent         *Scope
	beans          map[string]*Bean
	order          []string
	values         []interface{}
	valueProviders []interface{}
	createState    *createState
	logger         hclog.Logger
	closed         bool
}

// New creates a new scope.
//
// Callers should call Validate on the result to check for errors.
func New(opts ...Option) *Scope {
	var s Scope
	s.beans = map[string]*Bean{}
	s.logger = hclog.L()
	for _, opt := range opts {
		opt(&s)
	}

	return &s
}

// Validate checks that the scope and all of its beans are configured
// correctly. This is always called by Refresh and Close.
func (s *Scope) Validate() error {
	var result error

	for _, n := range s.order {
		b := s.beans[n]
		err := b.Validate()
		if err == nil {
			continue
		}

		prefix := b.name
		if prefix == "" {
			prefix = "unnamed bean"
		}
		err = multierror.Prefix(err, prefix+":")

		result = multierror.Append(result, err)
	}

	return result
}

// Parent returns the parent scope or nil.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Bean returns the bean with the given name, or nil if it is not known.
func (s *Scope) Bean(n string) *Bean {
	return s.beans[n]
}

// Beans returns the beans of this scope in registration order.
func (s *Scope) Beans() []*Bean {
	result := make([]*Bean, 0, len(s.order))
	for _, n := range s.order {
		result = append(result, s.beans[n])
	}

	return result
}

// Created returns the names of the beans in the order they were created.
// This is empty before Refresh and after Close.
func (s *Scope) Created() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createState == nil {
		return nil
	}

	return append([]string(nil), s.createState.Order...)
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Refresh creates all the beans of this scope.
//
// The ordering is determined by the dependencies of each bean's creation
// function. If any bean fails to create then the beans created so far are
// destroyed and the creation error is returned, together with any error
// from that rollback.
func (s *Scope) Refresh(args ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if err := s.Validate(); err != nil {
		return err
	}

	if s.createState != nil && len(s.createState.Order) > 0 {
		return fmt.Errorf("scope has already been refreshed")
	}

	finalInputs := make([]argmapper.Value, 0, len(s.order))
	for _, n := range s.order {
		finalInputs = append(finalInputs, markerValue(n))
	}

	finalFunc, err := finalFunc(finalInputs)
	if err != nil {
		return err
	}

	s.createState = &createState{}

	mapperArgs, err := s.mapperArgs(args)
	if err != nil {
		return err
	}
	for _, n := range s.order {
		createFunc, err := s.beans[n].mapperForCreate(s.createState)
		if err != nil {
			return err
		}

		mapperArgs = append(mapperArgs, argmapper.ConverterFunc(createFunc))
	}

	result := finalFunc.Call(mapperArgs...)
	resultErr := result.Err()
	if resultErr != nil {
		s.logger.Info("error during refresh, starting rollback", "err", resultErr)
		if err := s.destroyAll(args); err != nil {
			s.logger.Warn("error during rollback", "err", err)
			resultErr = multierror.Append(resultErr, fmt.Errorf(
				"error during rollback: %w", err))
		} else {
			s.logger.Info("rollback successful")
		}
	}

	return resultErr
}

// Close destroys every created bean in the reverse order of creation and
// marks the scope closed. Calling Close more than once is a no-op.
//
// Only beans that were created are destroyed.
func (s *Scope) Close(args ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.destroyAll(args)
}

func (s *Scope) destroyAll(args []interface{}) error {
	if err := s.Validate(); err != nil {
		return err
	}

	cs := s.createState
	if cs == nil || len(cs.Order) == 0 {
		return nil
	}

	mapperArgs, err := s.mapperArgs(args)
	if err != nil {
		return err
	}

	var finalInputs []argmapper.Value
	for i := 0; i < len(cs.Order); i++ {
		b := s.Bean(cs.Order[i])
		if b == nil {
			return fmt.Errorf(
				"destroy failed: missing bean definition %q", cs.Order[i])
		}

		// Everything created after this bean is destroyed before it.
		var deps []string
		if next := i + 1; next < len(cs.Order) {
			deps = cs.Order[next:]
		}

		f, err := b.mapperForDestroy(deps)
		if err != nil {
			return err
		}
		mapperArgs = append(mapperArgs, argmapper.ConverterFunc(f))
		if st := b.State(); st != nil {
			mapperArgs = append(mapperArgs, argmapper.Typed(st))
		}

		finalInputs = append(finalInputs, markerValue(b.name))
	}

	finalFunc, err := finalFunc(finalInputs)
	if err != nil {
		return err
	}

	result := finalFunc.Call(mapperArgs...)
	if result.Err() == nil {
		s.createState = nil
	}

	return result.Err()
}

func (s *Scope) mapperArgs(args []interface{}) ([]argmapper.Arg, error) {
	result := []argmapper.Arg{
		argmapper.Logger(s.logger),
	}

	for _, raw := range s.valueProviders {
		f, err := argmapper.NewFunc(raw, argmapper.FuncOnce())
		if err != nil {
			return nil, err
		}

		result = append(result, argmapper.ConverterFunc(f))
	}

	for _, v := range s.inherited() {
		result = append(result, argmapper.Typed(v))
	}

	for _, v := range s.values {
		result = append(result, argmapper.Typed(v))
	}

	for _, arg := range args {
		result = append(result, argmapper.Typed(arg))
	}

	return result, nil
}

// inherited returns the values and bean states visible from the parent
// chain, nearest parent last.
func (s *Scope) inherited() []interface{} {
	var chain []*Scope
	for p := s.parent; p != nil; p = p.parent {
		chain = append([]*Scope{p}, chain...)
	}

	var result []interface{}
	for _, p := range chain {
		result = append(result, p.values...)
		for _, b := range p.Beans() {
			if st := b.State(); st != nil {
				result = append(result, st)
			}
		}
	}

	return result
}

func finalFunc(inputs []argmapper.Value) (*argmapper.Func, error) {
	inputSet, err := argmapper.NewValueSet(inputs)
	if err != nil {
		return nil, err
	}

	return argmapper.BuildFunc(
		inputSet, nil,
		func(in, out *argmapper.ValueSet) error {
			// Exists only so argmapper calls every bean function.
			return nil
		},
	)
}

// StateOf returns the state of the first bean, in registration order, whose
// state is a T. The parent chain is searched when s has no match.
func StateOf[T any](s *Scope) (T, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		for _, b := range cur.Beans() {
			if v, ok := b.State().(T); ok {
				return v, true
			}
		}

		for _, raw := range cur.values {
			if v, ok := raw.(T); ok {
				return v, true
			}
		}
	}

	var zero T
	return zero, false
}

// Option is used to configure New.
type Option func(*Scope)

// WithLogger specifies the logger to use. If this is not set then this
// will use the default hclog logger.
func WithLogger(l hclog.Logger) Option {
	return func(s *Scope) { s.logger = l }
}

// WithParent sets the parent scope.
func WithParent(p *Scope) Option {
	return func(s *Scope) { s.parent = p }
}

// WithBean registers a bean. Beans keep the order they were registered in.
// A bean registered twice under the same name replaces the first one.
func WithBean(b *Bean) Option {
	return func(s *Scope) {
		name := b.name
		if _, ok := s.beans[name]; !ok {
			s.order = append(s.order, name)
		}

		s.beans[name] = b
	}
}

// WithValue makes v available to every bean of the scope and of its
// children. Values are matched by their concrete type.
func WithValue(v interface{}) Option {
	return func(s *Scope) {
		if v != nil {
			s.values = append(s.values, v)
		}
	}
}

// WithValueProvider specifies a function that can provide values for the
// arguments of bean lifecycle functions. The provider is called at most
// once per Refresh or Close, and only if a bean depends on what it returns.
func WithValueProvider(f interface{}) Option {
	return func(s *Scope) {
		s.valueProviders = append(s.valueProviders, f)
	}
}
