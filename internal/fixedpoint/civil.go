package fixedpoint

// SecondsPerDay is the UTC day length used for guard buckets.
const SecondsPerDay = 86_400

// DayIndex returns the UTC day bucket for a unix timestamp, using Euclidean
// division so pre-epoch timestamps land in the correct day.
func DayIndex(ts int64) int64 {
	d := ts / SecondsPerDay
	if ts%SecondsPerDay < 0 {
		d--
	}
	return d
}

// MonthIndex returns year*12 + (month-1) for a unix timestamp, monotonic
// across year boundaries. Timestamp 0 maps to 1970*12.
func MonthIndex(ts int64) int64 {
	year, month := civilFromDays(DayIndex(ts))
	return year*12 + month - 1
}

// civilFromDays converts days-since-epoch to (year, month) using the
// Howard Hinnant civil-from-days transform. Correct for negative inputs.
func civilFromDays(days int64) (year, month int64) {
	z := days + 719_468
	var era int64
	if z >= 0 {
		era = z / 146_097
	} else {
		era = (z - 146_096) / 146_097
	}
	doe := z - era*146_097                                  // [0, 146096]
	yoe := (doe - doe/1460 + doe/36_524 - doe/146_096) / 365 // [0, 399]
	y := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153 // [0, 11]
	if mp < 10 {
		month = mp + 3
	} else {
		month = mp - 9
	}
	year = y
	if month <= 2 {
		year++
	}
	return year, month
}
