package models

import (
	"time"
)

// Member is one guild member's duty state together with their punch history.
// OnDuty is kept in lock-step with "the last interval has no punch-out" so
// the common duty check never scans the history.
type Member struct {
	ID      string `gorm:"column:id;primaryKey"`
	GuildID string `gorm:"column:guild_id;index"`
	OnDuty  bool   `gorm:"column:on_duty;not null"`

	// Relationships
	Times []Time `gorm:"foreignKey:MemberID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for GORM
func (Member) TableName() string {
	return "member"
}

// OpenTime returns the member's currently open interval, or nil when the
// member is punched out. Scans from the end; the open interval is always the
// most recently appended one.
func (m *Member) OpenTime() *Time {
	for i := len(m.Times) - 1; i >= 0; i-- {
		if m.Times[i].PunchOut == nil {
			return &m.Times[i]
		}
	}
	return nil
}

// TimesSince returns the intervals whose punch-in falls within the last
// `days` days, in punch-in order.
func (m *Member) TimesSince(days int) []Time {
	cutoff := float64(time.Now().AddDate(0, 0, -days).Unix())

	var out []Time
	for _, t := range m.Times {
		if t.PunchIn >= cutoff {
			out = append(out, t)
		}
	}
	return out
}

// TotalOnDuty sums the member's duty time over the last `days` days. Open
// intervals count up to now.
func (m *Member) TotalOnDuty(days int) time.Duration {
	var total time.Duration
	for _, t := range m.TimesSince(days) {
		total += t.Duration()
	}
	return total
}

// Time is one duty interval. PunchOut is nil while the interval is open.
// Timestamps are Unix epoch seconds.
type Time struct {
	ID       uint     `gorm:"column:id;primaryKey;autoIncrement"`
	MemberID string   `gorm:"column:member_id;index"`
	PunchIn  float64  `gorm:"column:punch_in;not null"`
	PunchOut *float64 `gorm:"column:punch_out"`
}

// TableName specifies the table name for GORM
func (Time) TableName() string {
	return "time"
}

// Open reports whether the interval has no punch-out yet.
func (t *Time) Open() bool {
	return t.PunchOut == nil
}

// Duration returns the interval's length. For an open interval the current
// time stands in for the punch-out.
func (t *Time) Duration() time.Duration {
	in := time.Unix(int64(t.PunchIn), 0)
	out := time.Now()
	if t.PunchOut != nil {
		out = time.Unix(int64(*t.PunchOut), 0)
	}
	if out.Before(in) {
		return 0
	}
	return out.Sub(in)
}
