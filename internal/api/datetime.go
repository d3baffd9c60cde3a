/**
 * @description
 * Wire-format date/time parsing for admin event payloads. Clients send a
 * "DD-MM-YYYY" date plus "HH:mm" times in the platform's local zone (IST);
 * this file converts them to UTC instants exactly once, at the boundary.
 * Nothing past this point ever sees the wire format.
 */

package api

import (
	"fmt"
	"time"
)

const (
	wireDateLayout = "02-01-2006"
	wireTimeLayout = "15:04"
)

// eventZone is the zone admin clients author schedules in.
var eventZone = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}()

// parseEventWindow converts a wire date and start/end clock times into UTC
// instants. The end must land after the start on the same date.
func parseEventWindow(date, startTime, endTime string) (start, end time.Time, err error) {
	day, err := time.ParseInLocation(wireDateLayout, date, eventZone)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q, expected DD-MM-YYYY", date)
	}

	startClock, err := time.Parse(wireTimeLayout, startTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid startTime %q, expected HH:mm", startTime)
	}
	endClock, err := time.Parse(wireTimeLayout, endTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid endTime %q, expected HH:mm", endTime)
	}

	start = time.Date(day.Year(), day.Month(), day.Day(), startClock.Hour(), startClock.Minute(), 0, 0, eventZone).UTC()
	end = time.Date(day.Year(), day.Month(), day.Day(), endClock.Hour(), endClock.Minute(), 0, 0, eventZone).UTC()
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("endTime must be after startTime")
	}
	return start, end, nil
}
