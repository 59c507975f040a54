package scope

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopeRefresh(t *testing.T) {
	t.Run("with no beans", func(t *testing.T) {
		s := New()
		require.NoError(t, s.Refresh(int(42)))
	})

	t.Run("with two non-dependent beans", func(t *testing.T) {
		require := require.New(t)

		var calledA, calledB int
		s := New(
			WithBean(NewBean(
				WithName("A"),
				WithCreate(func(v int) error {
					calledA = v
					return nil
				}),
			)),

			WithBean(NewBean(
				WithName("B"),
				WithCreate(func(v int) error {
					calledB = v
					return nil
				}),
			)),
		)

		require.NoError(s.Refresh(int(42)))
		require.Equal(42, calledA)
		require.Equal(42, calledB)
	})

	t.Run("with two dependent beans", func(t *testing.T) {
		require := require.New(t)

		var calledB int
		s := New(
			WithBean(NewBean(
				WithName("B"),
				WithCreate(func(st *testState) error {
					calledB = st.Value
					return nil
				}),
			)),

			WithBean(NewBean(
				WithName("A"),
				WithState(&testState{}),
				WithCreate(func(st *testState, v int) error {
					st.Value = v
					return nil
				}),
			)),
		)

		require.NoError(s.Refresh(int(42)))
		require.Equal(42, calledB)
		require.Equal([]string{"A", "B"}, s.Created())

		st, ok := StateOf[*testState](s)
		require.True(ok)
		require.Equal(42, st.Value)
	})

	t.Run("rollback on error", func(t *testing.T) {
		require := require.New(t)

		var destroyOrder []string
		s := New(
			WithBean(NewBean(
				WithName("A"),
				WithState(&testState{}),
				WithCreate(func(st *testState, v int) error {
					st.Value = v
					return nil
				}),
				WithDestroy(func() error {
					destroyOrder = append(destroyOrder, "A")
					return nil
				}),
			)),

			WithBean(NewBean(
				WithName("B"),
				WithState(&otherState{}),
				WithCreate(func(st *testState) error {
					return errors.New("whelp")
				}),
				WithDestroy(func() error {
					destroyOrder = append(destroyOrder, "B")
					return nil
				}),
			)),

			WithBean(NewBean(
				WithName("C"),
				WithCreate(func(st *otherState) error {
					return nil
				}),
				WithDestroy(func() error {
					destroyOrder = append(destroyOrder, "C")
					return nil
				}),
			)),
		)

		err := s.Refresh(int(42))
		require.Error(err)
		require.Equal("whelp", err.Error())
		require.Equal([]string{"B", "A"}, destroyOrder)
		require.Empty(s.Created())
	})

	t.Run("invalid bean", func(t *testing.T) {
		s := New(WithBean(NewBean(WithName("A"))))

		err := s.Refresh()
		require.Error(t, err)
		require.Contains(t, err.Error(), "A: creation function must be set")
		require.NotContains(t, err.Error(), "A:  ")
	})

	t.Run("values and parent", func(t *testing.T) {
		require := require.New(t)

		parent := New(
			WithValue(&testConfig{Name: "parent"}),
			WithBean(NewBean(
				WithName("shared"),
				WithState(&testState{}),
				WithCreate(func(st *testState) error {
					st.Value = 7
					return nil
				}),
			)),
		)
		require.NoError(parent.Refresh())

		var gotName string
		var gotValue int
		child := New(
			WithParent(parent),
			WithBean(NewBean(
				WithName("child"),
				WithCreate(func(c *testConfig, st *testState) error {
					gotName = c.Name
					gotValue = st.Value
					return nil
				}),
			)),
		)
		require.NoError(child.Refresh())
		require.Equal("parent", gotName)
		require.Equal(7, gotValue)

		// Closing the child leaves the parent untouched.
		require.NoError(child.Close())
		require.NotNil(parent.Bean("shared").State())
		require.Equal(child.Parent(), parent)
	})

	t.Run("value provider", func(t *testing.T) {
		require := require.New(t)

		calls := 0
		var got string
		s := New(
			WithValueProvider(func(v int) *testConfig {
				calls++
				return &testConfig{Name: "provided"}
			}),
			WithBean(NewBean(
				WithName("A"),
				WithCreate(func(c *testConfig) error {
					got = c.Name
					return nil
				}),
			)),
		)

		require.NoError(s.Refresh(int(1)))
		require.Equal("provided", got)
		require.Equal(1, calls)
	})
}

func TestScopeClose(t *testing.T) {
	require := require.New(t)

	var destroyOrder []string
	var destroyState int
	s := New(
		WithBean(NewBean(
			WithName("A"),
			WithState(&testState{}),
			WithCreate(func(st *testState, v int) error {
				st.Value = v
				return nil
			}),
			WithDestroy(func(st *testState) error {
				destroyOrder = append(destroyOrder, "A")
				destroyState = st.Value
				return nil
			}),
		)),

		WithBean(NewBean(
			WithName("B"),
			WithCreate(func(st *testState) error {
				return nil
			}),
			WithDestroy(func() error {
				destroyOrder = append(destroyOrder, "B")
				return nil
			}),
		)),
	)

	require.NoError(s.Refresh(int(42)))
	require.NoError(s.Close())
	require.Equal([]string{"B", "A"}, destroyOrder)
	require.Equal(42, destroyState)
	require.Nil(s.Bean("A").State())
	require.True(s.Closed())

	// Second close does nothing.
	require.NoError(s.Close())
	require.Equal([]string{"B", "A"}, destroyOrder)

	require.ErrorIs(s.Refresh(int(1)), ErrClosed)
}

func TestScopeClose_neverRefreshed(t *testing.T) {
	called := false
	s := New(
		WithBean(NewBean(
			WithName("A"),
			WithCreate(func() error { return nil }),
			WithDestroy(func() error {
				called = true
				return nil
			}),
		)),
	)

	require.NoError(t, s.Close())
	require.False(t, called)
}

type testState struct {
	Value int
}

type otherState struct{}

type testConfig struct {
	Name string
}
