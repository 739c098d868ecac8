package discord

import (
	"fmt"
	"strconv"
	"time"
)

// discordEpochMillis is the backend's custom epoch (2015-01-01T00:00:00Z
// in Unix milliseconds), the same constant the C original's
// lib/discord/discord.h uses for id_to_ctime.
const discordEpochMillis = 1420070400000

// Timestamp derives the second-granularity creation time encoded in a
// snowflake id string: ((id>>22)+epoch)/1000 (spec.md §3).
func Timestamp(id string) (time.Time, error) {
	v, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("discord: invalid snowflake %q: %w", id, err)
	}
	seconds := ((v >> 22) + discordEpochMillis) / 1000
	return time.Unix(int64(seconds), 0), nil
}
