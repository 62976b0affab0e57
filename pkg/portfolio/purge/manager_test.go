package purge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tendant/portfolio-content/pkg/portfolio"
)

func TestManager(t *testing.T) {
	built := 0
	m := NewManager(func() (*Protocol, error) {
		built++
		return New(portfolio.DefaultRegistry(), &mockAuth{}, &mockInvoker{})
	})

	a, err := m.For(&portfolio.Session{ID: "a"})
	require.NoError(t, err)
	again, err := m.For(&portfolio.Session{ID: "a"})
	require.NoError(t, err)
	assert.Same(t, a, again)

	b, err := m.For(&portfolio.Session{ID: "b"})
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, built)

	// sessions are independent
	require.NoError(t, a.Select([]string{"projects"}))
	assert.Empty(t, b.Status().SelectedGroupKeys)

	assert.True(t, m.Drop("a"))
	assert.False(t, m.Drop("a"))
	assert.Equal(t, 1, m.Len())

	_, err = m.For(nil)
	assert.ErrorIs(t, err, portfolio.ErrNotAuthenticated)
}

func TestManager_FactoryError(t *testing.T) {
	m := NewManager(func() (*Protocol, error) { return nil, errors.New("no invoker") })
	_, err := m.For(&portfolio.Session{ID: "a"})
	assert.Error(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestManager_SweepsIdleProtocols(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)}
	m := NewManager(func() (*Protocol, error) {
		return New(portfolio.DefaultRegistry(), &mockAuth{}, &mockInvoker{})
	}, WithIdleTimeout(time.Hour), WithManagerClock(clock.Now))

	_, err := m.For(&portfolio.Session{ID: "expired"})
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	active, err := m.For(&portfolio.Session{ID: "active"})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	clock.Advance(45 * time.Minute)
	again, err := m.For(&portfolio.Session{ID: "active"})
	require.NoError(t, err)
	assert.Same(t, active, again)
	assert.Equal(t, 1, m.Len(), "session unused for over an hour is forgotten")
}

func TestManager_DroppedWhileExecutingIsSweptAfterwards(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.invoker.On("Invoke", mock.Anything, []string{"projects"}).
		Run(func(mock.Arguments) { <-release }).
		Return("done", nil)

	clock := &fakeClock{now: time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)}
	built := 0
	m := NewManager(func() (*Protocol, error) {
		built++
		if built == 1 {
			return h.p, nil
		}
		return New(portfolio.DefaultRegistry(), &mockAuth{}, &mockInvoker{})
	}, WithManagerClock(clock.Now))

	p, err := m.For(session)
	require.NoError(t, err)
	h.armed(t, "projects")
	h.clock.Advance(DefaultCountdown)

	confirmed := make(chan error, 1)
	go func() {
		_, err := p.Confirm(context.Background())
		confirmed <- err
	}()
	require.Eventually(t, func() bool { return p.State() == StateExecuting }, 5*time.Second, 5*time.Millisecond)

	assert.False(t, m.Drop(session.ID), "executing run is not dropped immediately")
	_, err = m.For(&portfolio.Session{ID: "other"})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	close(release)
	require.NoError(t, <-confirmed)

	_, err = m.For(&portfolio.Session{ID: "other"})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len(), "finished run of a dropped session is swept")
}
