package delivery

import "time"

// MaxTrys bounds retry attempts per delivery event. With the doubling wait
// below this spans roughly two days before an event is abandoned.
const MaxTrys = 12

// Eligible reports whether a delivery event is due for an attempt. Untried
// events are always eligible; after that the wait doubles with every failed
// attempt (2^trys minutes) until MaxTrys is reached.
func Eligible(trys int, lastTry, now time.Time) bool {
	if trys == 0 {
		return true
	}
	if trys >= MaxTrys {
		return false
	}
	wait := time.Duration(1<<uint(trys)) * time.Minute
	return now.Sub(lastTry) >= wait
}
