package wire

import "time"

// DateTime is the packed u64 timestamp format used throughout the protocol:
// second in the low 6 bits, then minute (6), hour (5), day (5), month (4),
// and year in the high bits. See SPEC_FULL.md's "Open Question decisions"
// for why this particular bit layout was chosen over the alternatives
// visible in different reverse-engineering efforts.
type DateTime uint64

const (
	dtSecondBits = 6
	dtMinuteBits = 6
	dtHourBits   = 5
	dtDayBits    = 5
	dtMonthBits  = 4

	dtSecondShift = 0
	dtMinuteShift = dtSecondShift + dtSecondBits
	dtHourShift   = dtMinuteShift + dtMinuteBits
	dtDayShift    = dtHourShift + dtHourBits
	dtMonthShift  = dtDayShift + dtDayBits
	dtYearShift   = dtMonthShift + dtMonthBits
)

// NewDateTime packs the given fields into a DateTime.
func NewDateTime(year, month, day, hour, minute, second int) DateTime {
	return DateTime(
		uint64(second&0x3F)<<dtSecondShift |
			uint64(minute&0x3F)<<dtMinuteShift |
			uint64(hour&0x1F)<<dtHourShift |
			uint64(day&0x1F)<<dtDayShift |
			uint64(month&0xF)<<dtMonthShift |
			uint64(year)<<dtYearShift,
	)
}

// FromTime packs a time.Time (in UTC) into a DateTime.
func FromTime(t time.Time) DateTime {
	t = t.UTC()
	return NewDateTime(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}

// Second returns the packed second field.
func (d DateTime) Second() int { return int(d>>dtSecondShift) & 0x3F }

// Minute returns the packed minute field.
func (d DateTime) Minute() int { return int(d>>dtMinuteShift) & 0x3F }

// Hour returns the packed hour field.
func (d DateTime) Hour() int { return int(d>>dtHourShift) & 0x1F }

// Day returns the packed day-of-month field.
func (d DateTime) Day() int { return int(d>>dtDayShift) & 0x1F }

// Month returns the packed month field.
func (d DateTime) Month() int { return int(d>>dtMonthShift) & 0xF }

// Year returns the packed year field.
func (d DateTime) Year() int { return int(d >> dtYearShift) }

// Time converts the DateTime back into a time.Time in UTC.
func (d DateTime) Time() time.Time {
	return time.Date(d.Year(), time.Month(d.Month()), d.Day(), d.Hour(), d.Minute(), d.Second(), 0, time.UTC)
}

// ReadDateTime reads a packed DateTime (a plain u64).
func (r *Reader) ReadDateTime() (DateTime, error) {
	v, err := r.Uint64()
	return DateTime(v), err
}

// WriteDateTime appends a packed DateTime.
func (w *Writer) WriteDateTime(d DateTime) {
	w.Uint64(uint64(d))
}
