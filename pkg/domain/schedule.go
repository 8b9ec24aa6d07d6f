package domain

import (
	"sort"
	"strings"
	"time"
)

// ScheduleState is the lifecycle position of a post derived from its stored
// scheduleDate and isCanceled fields.
type ScheduleState string

const (
	StateDraft     ScheduleState = "draft"
	StateScheduled ScheduleState = "scheduled"
	StateCanceled  ScheduleState = "canceled"
)

// State derives the lifecycle state of p.
//
//	Draft     no scheduleDate
//	Scheduled scheduleDate set, not canceled
//	Canceled  isCanceled, scheduleDate kept for history
func (p Post) State() ScheduleState {
	switch {
	case p.ScheduleDate == nil:
		return StateDraft
	case p.IsCanceled:
		return StateCanceled
	default:
		return StateScheduled
	}
}

// IsUnscheduled reports whether p renders as "Unscheduled": no date, or canceled.
func IsUnscheduled(p Post) bool {
	return p.ScheduleDate == nil || p.IsCanceled
}

// PostEdit carries the content fields of a post. Nil fields are left as is.
type PostEdit struct {
	Content  *string
	Topic    *string
	Industry *string
	Tone     *string
	Platform *Platform
}

// Empty reports whether the edit changes nothing.
func (e PostEdit) Empty() bool {
	return e.Content == nil && e.Topic == nil && e.Industry == nil && e.Tone == nil && e.Platform == nil
}

// EditPost applies content changes. Schedule fields are never touched.
func EditPost(p Post, e PostEdit, now time.Time) (Post, error) {
	if e.Content != nil {
		if strings.TrimSpace(*e.Content) == "" {
			return p, Validationf("content must not be empty")
		}
		p.Content = *e.Content
	}
	if e.Topic != nil {
		if strings.TrimSpace(*e.Topic) == "" {
			return p, Validationf("topic must not be empty")
		}
		p.Topic = strings.TrimSpace(*e.Topic)
	}
	if e.Industry != nil {
		p.Industry = strings.TrimSpace(*e.Industry)
	}
	if e.Tone != nil {
		p.Tone = strings.TrimSpace(*e.Tone)
	}
	if e.Platform != nil {
		p.Platform = *e.Platform
	}
	p.UpdatedAt = now
	return p, nil
}

// SchedulePost moves a Draft or Canceled post to Scheduled. A post that is
// already scheduled must go through ReschedulePost.
func SchedulePost(p Post, date, now time.Time) (Post, error) {
	if date.IsZero() {
		return p, Validationf("scheduleDate required")
	}
	if p.State() == StateScheduled {
		return p, Validationf("post is already scheduled")
	}
	return setSchedule(p, date, now), nil
}

// ReschedulePost sets a new date from any state and clears the cancel flag.
func ReschedulePost(p Post, date, now time.Time) (Post, error) {
	if date.IsZero() {
		return p, Validationf("scheduleDate required")
	}
	return setSchedule(p, date, now), nil
}

// CancelPost flags a scheduled post as canceled and keeps its date.
// Canceling an already canceled post is a no-op.
func CancelPost(p Post, now time.Time) (Post, error) {
	switch p.State() {
	case StateDraft:
		return p, Validationf("post is not scheduled")
	case StateCanceled:
		return p, nil
	}
	p.IsCanceled = true
	p.UpdatedAt = now
	return p, nil
}

func setSchedule(p Post, date, now time.Time) Post {
	d := date.UTC()
	p.ScheduleDate = &d
	p.IsCanceled = false
	p.UpdatedAt = now
	return p
}

// PostPatch is the wire-level partial update accepted by the update endpoint.
type PostPatch struct {
	PostEdit
	ScheduleDate *time.Time
	IsCanceled   *bool
}

// ApplyPatch routes a partial update through the explicit transitions.
// A patch that cancels and sets a date at once is rejected.
func ApplyPatch(p Post, patch PostPatch, now time.Time) (Post, error) {
	cancel := patch.IsCanceled != nil && *patch.IsCanceled
	if cancel && patch.ScheduleDate != nil {
		return p, Validationf("isCanceled and scheduleDate cannot be set together")
	}
	var err error
	if !patch.PostEdit.Empty() {
		if p, err = EditPost(p, patch.PostEdit, now); err != nil {
			return p, err
		}
	}
	switch {
	case cancel:
		return CancelPost(p, now)
	case patch.ScheduleDate != nil:
		return ReschedulePost(p, *patch.ScheduleDate, now)
	case patch.IsCanceled != nil && p.State() == StateCanceled:
		// isCanceled=false alone revives the retained date.
		return ReschedulePost(p, *p.ScheduleDate, now)
	}
	return p, nil
}

// SameDay compares the calendar dates of a and b in loc, ignoring time of day.
func SameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// OnCalendarDay reports whether p is plotted on the calendar cell for day.
func OnCalendarDay(p Post, day time.Time, loc *time.Location) bool {
	if p.State() != StateScheduled {
		return false
	}
	return SameDay(*p.ScheduleDate, day, loc)
}

// CalendarDay groups the scheduled posts that fall on one date.
type CalendarDay struct {
	Date  string `json:"date"`
	Posts []Post `json:"posts"`
}

// BuildCalendar plots scheduled posts between from and to (inclusive, by date)
// into per-day buckets in loc. Days without posts are omitted.
func BuildCalendar(posts []Post, from, to time.Time, loc *time.Location) []CalendarDay {
	if loc == nil {
		loc = time.UTC
	}
	start := StartOfDay(from, loc)
	end := StartOfDay(to, loc)
	buckets := make(map[string][]Post)
	for _, p := range posts {
		if p.State() != StateScheduled {
			continue
		}
		day := StartOfDay(*p.ScheduleDate, loc)
		if day.Before(start) || day.After(end) {
			continue
		}
		key := day.Format(time.DateOnly)
		buckets[key] = append(buckets[key], p)
	}
	days := make([]CalendarDay, 0, len(buckets))
	for key, items := range buckets {
		sort.Slice(items, func(i, j int) bool {
			return items[i].ScheduleDate.Before(*items[j].ScheduleDate)
		})
		days = append(days, CalendarDay{Date: key, Posts: items})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}

// StartOfDay returns midnight of t's calendar date in loc. A nil loc means UTC.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
