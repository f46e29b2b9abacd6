// Package calendar validates calendar-day keys and maps them to parcel ids.
package calendar

import "fmt"

// Every day that exists in some year is a valid slot, including February 29.
var daysInMonth = [12]int{31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// IsValidDate reports whether (month, day) names a real calendar day.
func IsValidDate(month, day int) bool {
	if month < 1 || month > 12 {
		return false
	}
	return day >= 1 && day <= daysInMonth[month-1]
}

// DayID maps a (month, day) key to its stable parcel id, 100*month + day.
// The key must already be valid.
func DayID(month, day int) int {
	return 100*month + day
}

// SplitID is the inverse of DayID. It returns an error if id does not name a
// valid calendar day.
func SplitID(id int) (month, day int, err error) {
	month, day = id/100, id%100
	if !IsValidDate(month, day) {
		return 0, 0, fmt.Errorf("id %d is not a calendar day", id)
	}
	return month, day, nil
}

// All returns every valid day id in calendar order.
func All() []int {
	ids := make([]int, 0, 366)
	for m := 1; m <= 12; m++ {
		for d := 1; d <= daysInMonth[m-1]; d++ {
			ids = append(ids, DayID(m, d))
		}
	}
	return ids
}
