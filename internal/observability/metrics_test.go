package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordExerciseLogged(t *testing.T) {
	before := testutil.ToFloat64(exercisesLoggedCounter)
	ts := time.Date(2024, time.March, 3, 12, 0, 0, 0, time.UTC)

	RecordExerciseLogged(ts)

	require.InDelta(t, before+1, testutil.ToFloat64(exercisesLoggedCounter), 0.0001)
	require.InDelta(t, float64(ts.Unix()), testutil.ToFloat64(exerciseLoggedGauge), 0.0001)
}

func TestRecordUserCreated(t *testing.T) {
	before := testutil.ToFloat64(usersCreatedCounter)
	RecordUserCreated()
	require.InDelta(t, before+1, testutil.ToFloat64(usersCreatedCounter), 0.0001)
}

func TestObserveRequestRecordsSample(t *testing.T) {
	ObserveRequest("", "GET", 404, 5*time.Millisecond)
	require.GreaterOrEqual(t, testutil.CollectAndCount(requestDuration, "exercise_tracker_http_request_duration_seconds"), 1)
}
