package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dothash/huddle/internal/protocol"
)

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry(10)

	users, err := r.Register("h1", "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, users)

	users, err = r.Register("h2", "bob")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alice", "bob"}, users)

	handle, ok := r.Lookup("alice")
	require.True(t, ok)
	require.Equal(t, "h1", handle)

	name, ok := r.Username("h2")
	require.True(t, ok)
	require.Equal(t, "bob", name)
}

func TestRegistryRejectsInvalidNames(t *testing.T) {
	r := NewRegistry(10)

	_, err := r.Register("h1", "")
	require.ErrorIs(t, err, ErrInvalidUsername)

	_, err = r.Register("h1", "   ")
	require.ErrorIs(t, err, ErrInvalidUsername)
}

func TestRegistryTrimsUsernames(t *testing.T) {
	r := NewRegistry(10)

	users, err := r.Register("h1", "  alice  ")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, users)

	_, ok := r.Lookup("alice")
	require.True(t, ok)
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := NewRegistry(10)

	_, err := r.Register("h1", "alice")
	require.NoError(t, err)

	_, err = r.Register("h2", "alice")
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegistryRejectsSecondRegistration(t *testing.T) {
	r := NewRegistry(10)

	_, err := r.Register("h1", "alice")
	require.NoError(t, err)

	_, err = r.Register("h1", "alice2")
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	// The original binding is untouched.
	name, ok := r.Username("h1")
	require.True(t, ok)
	require.Equal(t, "alice", name)
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry(10)

	_, err := r.Register("h1", "alice")
	require.NoError(t, err)

	name, users, ok := r.Unregister("h1")
	require.True(t, ok)
	require.Equal(t, "alice", name)
	require.Empty(t, users)

	_, _, ok = r.Unregister("h1")
	require.False(t, ok)

	// The name is free again.
	_, err = r.Register("h2", "alice")
	require.NoError(t, err)
}

func TestRegistryConcurrentClaims(t *testing.T) {
	r := NewRegistry(10)

	const attempts = 32
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Register(fmt.Sprintf("h%d", i), "alice")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var succeeded int
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrUsernameTaken)
		}
	}
	require.Equal(t, 1, succeeded)
}

func TestRegistryHistoryBound(t *testing.T) {
	r := NewRegistry(3)

	for i := 0; i < 5; i++ {
		r.AppendHistory(protocol.Message{Username: "alice", Message: fmt.Sprintf("msg-%d", i)})
	}

	history := r.History()
	require.Len(t, history, 3)
	require.Equal(t, "msg-2", history[0].Message)
	require.Equal(t, "msg-4", history[2].Message)
}

func TestRegistryHistoryReturnsCopy(t *testing.T) {
	r := NewRegistry(10)
	r.AppendHistory(protocol.Message{Username: "alice", Message: "hi"})

	history := r.History()
	history[0].Message = "mutated"

	require.Equal(t, "hi", r.History()[0].Message)
}
