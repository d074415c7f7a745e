package repository_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/dashboard-api/internal/adapters/repository"
	"github.com/okian/dashboard-api/internal/domain/analytics"
	"github.com/okian/dashboard-api/internal/domain/model"
)

var base = time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)

func event(deployment int64, typ model.EventType, user int64, at time.Time) model.UserEvent {
	e := model.UserEvent{
		EventID:      uuid.NewString(),
		DeploymentID: deployment,
		Type:         typ,
		Timestamp:    at,
	}
	if user > 0 {
		e.UserID = model.Int64(user)
	}
	return e
}

// storeContract runs the behaviour every backend must share. deployment
// must be unused in s.
func storeContract(s repository.Store, deployment int64) {
	ctx := context.Background()

	signup := event(deployment, model.EventSignup, 1, base.Add(time.Hour))
	signup.UserName, signup.UserEmail, signup.AuthMethod = "Ada", "ada@example.com", "github"
	events := []model.UserEvent{
		signup,
		event(deployment, model.EventSignup, 2, base.AddDate(0, 0, 1).Add(2*time.Hour)),
		event(deployment, model.EventSignup, 0, base.AddDate(0, 0, -30)),
		event(deployment, model.EventSignin, 1, base.Add(3*time.Hour)),
		event(deployment, model.EventSignin, 1, base.Add(4*time.Hour)),
		event(deployment, model.EventSignin, 2, base.AddDate(0, 0, 1)),
		event(deployment, model.EventOrganizationCreated, 1, base.Add(5*time.Hour)),
		event(deployment, model.EventWorkspaceCreated, 1, base.Add(6*time.Hour)),
		event(deployment, model.EventWorkspaceCreated, 2, base.AddDate(0, 0, 9)),
	}
	for _, e := range events {
		created, err := s.Record(ctx, e)
		So(err, ShouldBeNil)
		So(created, ShouldBeTrue)
	}

	Convey("Then re-recording an id reports a duplicate", func() {
		created, err := s.Record(ctx, events[0])
		So(err, ShouldBeNil)
		So(created, ShouldBeFalse)
	})

	Convey("Then stats honor the inclusive range", func() {
		r := analytics.Range{From: base, To: base.AddDate(0, 0, 1)}
		st, err := s.Stats(ctx, deployment, r)
		So(err, ShouldBeNil)
		So(st, ShouldResemble, analytics.Stats{
			UniqueSignins:        2,
			Signups:              1,
			OrganizationsCreated: 1,
			WorkspacesCreated:    1,
			TotalSignups:         2,
		})
	})

	Convey("Then an unknown deployment has zero stats", func() {
		st, err := s.Stats(ctx, deployment+1, analytics.Range{From: base, To: base.AddDate(0, 0, 1)})
		So(err, ShouldBeNil)
		So(st, ShouldResemble, analytics.Stats{})
	})

	Convey("Then recent signups are newest first", func() {
		out, err := s.RecentSignups(ctx, deployment, 2)
		So(err, ShouldBeNil)
		So(len(out), ShouldEqual, 2)
		So(out[0].Date.Equal(base.AddDate(0, 0, 1).Add(2*time.Hour)), ShouldBeTrue)
		So(out[1].Name, ShouldEqual, "Ada")
		So(out[1].Email, ShouldEqual, "ada@example.com")
		So(out[1].Method, ShouldEqual, "github")
	})

	Convey("Then a non-positive limit is rejected", func() {
		_, err := s.RecentSignups(ctx, deployment, 0)
		So(err, ShouldEqual, repository.ErrInvalidLimit)
	})

	Convey("Then daily counts are zero-filled", func() {
		r := analytics.Range{From: base, To: base.AddDate(0, 0, 2)}
		out, err := s.DailyCounts(ctx, deployment, model.EventSignup, r)
		So(err, ShouldBeNil)
		So(out, ShouldResemble, []analytics.DailyCount{
			{Date: "2026-04-10", Count: 1},
			{Date: "2026-04-11", Count: 1},
			{Date: "2026-04-12", Count: 0},
		})
	})

	Convey("Then the total count includes every event", func() {
		n, err := s.Count(ctx)
		So(err, ShouldBeNil)
		So(n, ShouldBeGreaterThanOrEqualTo, len(events))
	})
}
