package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := NotFound("node %s", "n1")
		assert.Equal(t, "not_found: node n1", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("dial tcp: refused")
		err := StoreFailure(cause, "writing node record")
		assert.Contains(t, err.Error(), "store_failure")
		assert.Contains(t, err.Error(), "dial tcp: refused")
	})
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInvalidState, KindOf(InvalidState("mission is completed")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := Unavailable("node n1 not connected")
	outer := fmt.Errorf("dispatching task t1: %w", inner)

	assert.True(t, IsKind(outer, KindUnavailable))
	assert.False(t, IsKind(outer, KindNotFound))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Internal(cause, "invariant broken")
	assert.True(t, errors.Is(err, cause))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("entry %s", "e1")))
	assert.False(t, IsNotFound(Conflict("slot taken")))
	assert.False(t, IsNotFound(nil))
}
