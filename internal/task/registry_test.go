package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	send := noopTask("emails.send")
	reg.MustRegister(send, noopTask("emails.bounce"))

	got, err := reg.Resolve("emails.send")
	require.NoError(t, err)
	assert.Same(t, send, got)
	assert.Equal(t, []string{"emails.bounce", "emails.send"}, reg.Names())
}

func TestRegistry_RegisterRejectsInvalid(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()

	err := reg.Register(noopTask("dup"))
	require.NoError(t, err)
	assert.ErrorIs(t, reg.Register(noopTask("dup")), ErrDuplicateTask)

	assert.ErrorIs(t, reg.Register(&Task{Name: "no.body", QueueName: "default"}), ErrInvalidTask)
	assert.ErrorIs(t, reg.Register(noopTask("")), ErrInvalidTask)
	assert.ErrorIs(t, reg.Register(nil), ErrInvalidTask)

	assert.Panics(t, func() { reg.MustRegister(noopTask("dup")) })
}

func TestRegistry_ResolveFailures(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	// Entries that bypassed Register.
	reg.tasks["not.a.task"] = &Task{Name: "not.a.task", QueueName: "default"}
	reg.tasks["alias"] = noopTask("original")
	reg.tasks["nil"] = nil

	_, err := reg.Resolve("not.a.path")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	for _, name := range []string{"not.a.task", "alias", "nil"} {
		_, err := reg.Resolve(name)
		assert.ErrorIs(t, err, ErrNotATask, name)
		assert.NotErrorIs(t, err, ErrTaskNotFound, name)
	}
}
