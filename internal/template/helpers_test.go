package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/catflap/catflap/internal/errors"
	"github.com/catflap/catflap/internal/snapshot"
)

const testHash = "34aa973cd4c4daa4f61eeb2bdbad27316534016f"

var testTime = time.Date(2024, time.March, 9, 14, 5, 7, 0, time.UTC)

// testSnapshot returns a match group with three recorded matches.
func testSnapshot(t *testing.T) *snapshot.Snapshot {
	t.Helper()

	id, err := snapshot.ParseHash(testHash)
	require.NoError(t, err)

	steps1 := make([]snapshot.Step, 2)
	steps1[0].Path = snapshot.Path{Dir: "some/step/path"}
	steps1[1].Name = "the_step_name"

	steps2 := make([]snapshot.Step, 8)
	steps2[6].Description = "Step description"

	return &snapshot.Snapshot{
		Time:      testTime,
		State:     "Waiting",
		PrevState: "Initial",
		Group: snapshot.MatchGroup{
			Matches: []snapshot.Match{
				{Path: snapshot.Path{Dir: "/some/path/omg1/"}, Success: true, Steps: steps1},
				{Path: snapshot.Path{Dir: "/some/path/omg2/"}, Description: "prey found", Steps: steps2, ID: id, Time: testTime},
				{Path: snapshot.Path{Dir: "/some/path/omg3/"}, Direction: snapshot.DirectionIn, Result: 0.8},
			},
			Success:       true,
			SuccessCount:  3,
			FinalDecision: true,
			Direction:     snapshot.DirectionIn,
			Description:   "hej",
			ID:            id,
			StartTime:     testTime,
			EndTime:       testTime.Add(3 * time.Second),
			ObstructPath:  snapshot.Path{Filename: "obstructify"},
		},
		Settings: snapshot.Settings{
			Matcher:           "haar",
			MatchTime:         13,
			Threshold:         0.8,
			OkMatchesNeeded:   4,
			NoFinalDecision:   true,
			Cascade:           "catcierge.xml",
			InDirection:       "right",
			MinWidth:          80,
			MinHeight:         80,
			PreyMethod:        "adaptive",
			PreySteps:         2,
			LockoutMethod:     2,
			LockoutTime:       23,
			LockoutError:      20,
			LockoutErrorDelay: 2.44,
			Snouts:            []string{"snouts/snout1.png", "snouts/snout2.png"},
		},
		Build: snapshot.Build{
			Version: "0.6.2",
			GitHash: "8d5e52f0a31c1b7d6ac0ac1a3e1f0c2d7e1b9a44",
		},
	}
}

// render renders text against snap with a fresh engine.
func render(t *testing.T, snap *snapshot.Snapshot, text string) (string, error) {
	t.Helper()
	return New().Render(snap, "test", text)
}

// requireCode fails the test unless err carries code.
func requireCode(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, errors.IsErrorCode(err, code), "want %s, got %v", code, err)
}
