package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestToDomainFallsBackToDisplayDate(t *testing.T) {
	performed := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	doc := userDocument{
		ID:       "u1",
		Username: "alice",
		Count:    2,
		Log: []entryDocument{
			{Description: "run", Duration: 30, Date: "Sunday, Jan 1, 2023", PerformedOn: performed},
			{Description: "legacy", Duration: 10, Date: "Monday, Jan 2, 2023"},
		},
	}

	user := doc.toDomain()

	require.Equal(t, 2, user.Count)
	require.Len(t, user.Log, 2)
	require.True(t, performed.Equal(user.Log[0].Date))
	require.Equal(t, time.Date(2023, time.January, 2, 0, 0, 0, 0, time.UTC), user.Log[1].Date)
	require.Equal(t, "Monday, Jan 2, 2023", user.Log[1].DisplayDate)
}
