package discord

import "testing"

func TestTimestamp(t *testing.T) {
	// 175928847299117063 is the well-known Discord docs example snowflake,
	// whose timestamp is 2016-04-30T11:18:25.796Z.
	ts, err := Timestamp("175928847299117063")
	if err != nil {
		t.Fatal(err)
	}
	if got := ts.Unix(); got != 1462015105 {
		t.Fatalf("Timestamp = %d, want 1462015105", got)
	}
}

func TestTimestampInvalid(t *testing.T) {
	if _, err := Timestamp("not-a-number"); err == nil {
		t.Fatal("expected error for non-numeric snowflake")
	}
}
