package stepplan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpand_StartsAtStartAndEndsAtOrPastEnd(t *testing.T) {
	steps, err := Expand(Plan{Start: 1, End: 100, Factor: 2})
	require.NoError(t, err)
	require.Equal(t, 1, steps[0])
	require.GreaterOrEqual(t, steps[len(steps)-1], 100)
}

func TestExpand_StrictlyIncreasing(t *testing.T) {
	steps, err := Expand(Plan{Start: 1, End: 50, Factor: 1.1})
	require.NoError(t, err)
	for i := 1; i < len(steps); i++ {
		require.Greater(t, steps[i], steps[i-1])
	}
}

func TestExpand_SingleStepWhenStartAlreadyAtOrPastEnd(t *testing.T) {
	steps, err := Expand(Plan{Start: 10, End: 10, Factor: 2})
	require.NoError(t, err)
	require.Equal(t, []int{10}, steps)
}

func TestExpand_SmallFactorStillAdvancesByAtLeastOne(t *testing.T) {
	steps, err := Expand(Plan{Start: 1, End: 5, Factor: 1.01})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4, 5}, steps)
}

func TestValidate_RejectsBadInputs(t *testing.T) {
	require.Error(t, Plan{Start: 0, End: 10, Factor: 2}.Validate())
	require.Error(t, Plan{Start: 10, End: 1, Factor: 2}.Validate())
	require.Error(t, Plan{Start: 1, End: 10, Factor: 1}.Validate())
}
