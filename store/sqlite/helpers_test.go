package sqlite_test

import "time"

func fixedNow() time.Time {
	return time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
}
