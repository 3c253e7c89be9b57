package discord

import (
	"strconv"
	"time"
)

// discordEpoch is the first millisecond of 2015 in Unix milliseconds.
const discordEpoch = 1420070400000

// SnowflakeTime extracts the creation time encoded in a snowflake id.
func SnowflakeTime(id string) (time.Time, bool) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(n>>22) + discordEpoch).UTC(), true
}

// SnowflakeAt returns the smallest snowflake that could be created at t.
func SnowflakeAt(t time.Time) uint64 {
	ms := t.UnixMilli() - discordEpoch
	if ms <= 0 {
		return 0
	}
	return uint64(ms) << 22
}

func parseSnowflake(id string) uint64 {
	n, _ := strconv.ParseUint(id, 10, 64)
	return n
}
