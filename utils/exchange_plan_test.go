package utils

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangePlanPickPlace(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	ep, err := NewExchangePlan(1, 3, []int{2, 0, 2, 1, 0})
	require.NoError(t, err)
	require.NoError(t, ep.Verify())

	assert.Equal(t, []int{1, 4}, ep.GetPickIndices(0))
	assert.Equal(t, []string{"a", "c"}, Pick(ep, items, 2))
	assert.Equal(t, []int{2, 1, 2}, ep.SendCounts)
	assert.Nil(t, ep.GetPickIndices(3))

	require.NoError(t, ep.SetRecvCounts([]int{1, 0, 2}))
	assert.Equal(t, 3, ep.TotalRecv())
	buf := make([]string, ep.TotalRecv())
	require.NoError(t, Place(ep, buf, []string{"x"}, 0))
	require.NoError(t, Place(ep, buf, []string{"y", "z"}, 2))
	assert.Equal(t, []string{"x", "y", "z"}, buf)
	assert.Error(t, Place(ep, buf, []string{"y"}, 2))
	require.NoError(t, ep.Verify())
}

func TestExchangePlanValidation(t *testing.T) {
	_, err := NewExchangePlan(3, 3, nil)
	assert.Error(t, err)
	_, err = NewExchangePlan(0, 2, []int{0, 2})
	assert.Error(t, err)

	ep, err := NewExchangePlan(0, 2, []int{0, 1, 1})
	require.NoError(t, err)
	assert.Error(t, ep.SetRecvCounts([]int{1}))
	assert.Error(t, ep.SetRecvCounts([]int{1, -2}))

	ep.PickIndices[1] = append(ep.PickIndices[1], 0)
	ep.SendCounts[1]++
	if err := ep.Verify(); err == nil {
		t.Fatalf("expected duplicate pick to be reported")
	}
}

func TestNewLogger(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, NewLogger("debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogger("chatty").GetLevel())
}
