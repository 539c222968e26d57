package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsSurviveWrapping(t *testing.T) {
	err := DataConsistency(42, 160, "drone", "no snapshot")
	wrapped := Wrapf(err, "extract match %d", 42)

	assert.True(t, IsDataConsistency(wrapped))
	assert.False(t, IsConfig(wrapped))
	assert.False(t, IsTransient(wrapped))
	assert.Contains(t, wrapped.Error(), "extract match 42")
}

func TestDataConsistencyDetail(t *testing.T) {
	err := DataConsistency(7, 32, "zergling", "key missing from start vector")
	details := FlattenDetails(err)
	assert.Contains(t, details, "match_id=7")
	assert.Contains(t, details, "tick=32")
	assert.Contains(t, details, "key=zergling")
}

func TestTransientNil(t *testing.T) {
	assert.NoError(t, Transient(nil))
	assert.True(t, IsTransient(Transient(New("conn reset"))))
}

func TestConfig(t *testing.T) {
	err := Config("invalid reducer %q", "median")
	assert.True(t, IsConfig(err))
	assert.Equal(t, `invalid reducer "median"`, err.Error())
}

func TestInconsistentGainsCoordinates(t *testing.T) {
	err := Inconsistent("drone", "key %q missing from start vector", "drone")
	err = WithDetailf(err, "match_id=%d tick=%d", 3, 480)

	assert.True(t, IsDataConsistency(err))
	details := FlattenDetails(err)
	assert.Contains(t, details, "key=drone")
	assert.Contains(t, details, "match_id=3 tick=480")
}
