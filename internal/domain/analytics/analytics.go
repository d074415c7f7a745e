// Package analytics computes dashboard aggregates over user events.
//
// The functions here are pure and operate on event slices. Stores that can
// push aggregation down to their engine still share Range, FillDays and the
// result types so every backend answers with the same shapes.
package analytics

import (
	"errors"
	"sort"
	"time"

	"github.com/okian/dashboard-api/internal/domain/model"
)

// DateLayout formats the day buckets of a daily series.
const DateLayout = "2006-01-02"

// MaxDailyRange bounds the number of buckets a daily series may contain.
const MaxDailyRange = 366

// Range errors.
var (
	ErrInvertedRange  = errors.New("from must not be after to")
	ErrRangeTooLarge  = errors.New("range exceeds the maximum number of days")
	ErrEmptyRangeEdge = errors.New("range bounds must be set")
)

// Range is a closed time interval [From, To].
type Range struct {
	From time.Time
	To   time.Time
}

// Validate checks that both bounds are set and ordered.
func (r Range) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return ErrEmptyRangeEdge
	}
	if r.From.After(r.To) {
		return ErrInvertedRange
	}
	return nil
}

// Contains reports whether t lies inside the range, bounds included.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// Days returns the number of UTC calendar days the range touches.
func (r Range) Days() int {
	from := truncateDay(r.From)
	to := truncateDay(r.To)
	return int(to.Sub(from).Hours()/24) + 1
}

// Stats is the period summary shown on a deployment dashboard.
type Stats struct {
	UniqueSignins        int64 `json:"unique_signins"`
	Signups              int64 `json:"signups"`
	OrganizationsCreated int64 `json:"organizations_created"`
	WorkspacesCreated    int64 `json:"workspaces_created"`
	TotalSignups         int64 `json:"total_signups"`
}

// RecentSignup describes one signup in the recent-signups feed.
type RecentSignup struct {
	Name   string    `json:"name,omitempty"`
	Email  string    `json:"email,omitempty"`
	Method string    `json:"method,omitempty"`
	Date   time.Time `json:"date"`
}

// DailyCount is one bucket of a daily series.
type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// Aggregate computes Stats for events of a single deployment. Period counters
// use r; TotalSignups counts distinct users over every event given.
func Aggregate(events []model.UserEvent, r Range) Stats {
	var st Stats
	signedIn := make(map[int64]struct{})
	signedUp := make(map[int64]struct{})

	for i := range events {
		e := &events[i]
		if e.Type == model.EventSignup && e.UserID != nil {
			signedUp[*e.UserID] = struct{}{}
		}
		if !r.Contains(e.Timestamp) {
			continue
		}
		switch e.Type {
		case model.EventSignin:
			if e.UserID != nil {
				signedIn[*e.UserID] = struct{}{}
			}
		case model.EventSignup:
			st.Signups++
		case model.EventOrganizationCreated:
			st.OrganizationsCreated++
		case model.EventWorkspaceCreated:
			st.WorkspacesCreated++
		}
	}

	st.UniqueSignins = int64(len(signedIn))
	st.TotalSignups = int64(len(signedUp))
	return st
}

// RecentSignups returns up to limit signups, newest first.
func RecentSignups(events []model.UserEvent, limit int) []RecentSignup {
	if limit <= 0 {
		return []RecentSignup{}
	}
	signups := make([]model.UserEvent, 0, len(events))
	for i := range events {
		if events[i].Type == model.EventSignup {
			signups = append(signups, events[i])
		}
	}
	sort.SliceStable(signups, func(i, j int) bool {
		return signups[i].Timestamp.After(signups[j].Timestamp)
	})
	if len(signups) > limit {
		signups = signups[:limit]
	}

	out := make([]RecentSignup, len(signups))
	for i := range signups {
		out[i] = ToRecentSignup(signups[i])
	}
	return out
}

// ToRecentSignup projects a signup event onto the feed shape.
func ToRecentSignup(e model.UserEvent) RecentSignup { //nolint:gocritic // value semantics
	return RecentSignup{
		Name:   e.UserName,
		Email:  e.UserEmail,
		Method: e.AuthMethod,
		Date:   e.Timestamp.UTC(),
	}
}

// DailyCounts buckets events of type t inside r by UTC day.
func DailyCounts(events []model.UserEvent, t model.EventType, r Range) []DailyCount {
	sparse := make(map[string]int64)
	for i := range events {
		e := &events[i]
		if e.Type != t || !r.Contains(e.Timestamp) {
			continue
		}
		sparse[e.Timestamp.UTC().Format(DateLayout)]++
	}
	return FillDays(r, sparse)
}

// FillDays expands sparse per-day counts into one bucket per day of r.
func FillDays(r Range, sparse map[string]int64) []DailyCount {
	days := r.Days()
	if days <= 0 {
		return []DailyCount{}
	}
	out := make([]DailyCount, 0, days)
	day := truncateDay(r.From)
	for i := 0; i < days; i++ {
		key := day.Format(DateLayout)
		out = append(out, DailyCount{Date: key, Count: sparse[key]})
		day = day.AddDate(0, 0, 1)
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
