package market

import "time"

// Session describes the exchange trading window. Minutes are counted from
// midnight in Location. The pre-open window runs from PreOpenMinute to
// OpenMinute and is recognized but never counted as open.
type Session struct {
	Location      *time.Location
	PreOpenMinute int
	OpenMinute    int
	CloseMinute   int
}

// DefaultSession returns the NSE equity session: pre-open 09:00-09:15,
// open 09:15-15:30 IST.
func DefaultSession() Session {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*3600+1800)
	}
	return Session{
		Location:      loc,
		PreOpenMinute: 9 * 60,
		OpenMinute:    9*60 + 15,
		CloseMinute:   15*60 + 30,
	}
}

// IsOpen reports whether the session is open at t. Weekends are always closed.
func (s Session) IsOpen(t time.Time) bool {
	local := t.In(s.Location)
	if !isWeekday(local.Weekday()) {
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	return minute >= s.OpenMinute && minute < s.CloseMinute
}

// IsPreOpen reports whether t falls in the pre-open sub-window.
func (s Session) IsPreOpen(t time.Time) bool {
	local := t.In(s.Location)
	if !isWeekday(local.Weekday()) {
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	return minute >= s.PreOpenMinute && minute < s.OpenMinute
}

func isWeekday(day time.Weekday) bool {
	return day != time.Saturday && day != time.Sunday
}
