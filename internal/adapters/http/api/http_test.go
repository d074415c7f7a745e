package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/dashboard-api/internal/adapters/http/api"
	service "github.com/okian/dashboard-api/internal/app"
	"github.com/okian/dashboard-api/internal/domain/analytics"
	"github.com/okian/dashboard-api/internal/domain/model"
	"github.com/okian/dashboard-api/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

// mockDeps records the calls it receives and answers with canned values.
type mockDeps struct {
	submitted []model.UserEvent
	submitRes service.SubmitResult
	submitErr error

	statsDeployment int64
	statsRange      analytics.Range
	stats           analytics.Stats
	queryErr        error

	recentLimit int
	dailyType   model.EventType
}

func (m *mockDeps) Submit(_ context.Context, e model.UserEvent) (service.SubmitResult, error) { //nolint:gocritic // test double
	if m.submitErr != nil {
		return service.SubmitResult{}, m.submitErr
	}
	m.submitted = append(m.submitted, e)
	res := m.submitRes
	if res.EventID == "" {
		res.EventID = e.EventID
	}
	return res, nil
}

func (m *mockDeps) ResolveRange(from, to time.Time) (analytics.Range, error) {
	if to.IsZero() {
		to = now
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	r := analytics.Range{From: from, To: to}
	if err := r.Validate(); err != nil {
		return analytics.Range{}, fmt.Errorf("%w: %w", service.ErrInvalidQuery, err)
	}
	return r, nil
}

func (m *mockDeps) Stats(_ context.Context, deploymentID int64, r analytics.Range) (analytics.Stats, error) {
	m.statsDeployment = deploymentID
	m.statsRange = r
	return m.stats, m.queryErr
}

func (m *mockDeps) RecentSignups(_ context.Context, _ int64, limit int) ([]analytics.RecentSignup, error) {
	m.recentLimit = limit
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return []analytics.RecentSignup{{Name: "Ada", Email: "ada@example.com", Method: "github", Date: now}}, nil
}

func (m *mockDeps) DailyCounts(_ context.Context, _ int64, t model.EventType, r analytics.Range) ([]analytics.DailyCount, error) {
	m.dailyType = t
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return analytics.FillDays(r, nil), nil
}

type mockStatus struct{}

func (mockStatus) Status(context.Context) service.Status {
	return service.Status{Started: true, WorkerCount: 4, QueueCapacity: 16}
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(rec.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestRouting(t *testing.T) {
	Convey("Given the API router", t, func() {
		h := api.NewServer(&mockDeps{}, mockStatus{}).Handler()

		Convey("GET /health returns ok", func() {
			rec := do(h, http.MethodGet, "/health", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(rec.Body.String()), ShouldEqual, `{"status":"ok"}`)
			So(rec.Header().Get("Content-Type"), ShouldStartWith, "application/json")
		})

		Convey("HEAD /health is served like GET", func() {
			rec := do(h, http.MethodHead, "/health", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Type"), ShouldStartWith, "application/json")
		})

		Convey("An unknown path returns 404 with a JSON error", func() {
			rec := do(h, http.MethodGet, "/nope", "")
			So(rec.Code, ShouldEqual, http.StatusNotFound)
			So(decodeBody(rec)["code"], ShouldEqual, "not_found")
		})

		Convey("A wrong method returns 405", func() {
			rec := do(h, http.MethodPost, "/health", "")
			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(decodeBody(rec)["code"], ShouldEqual, "method_not_allowed")

			rec = do(h, http.MethodDelete, "/deployments/1/analytics/stats", "")
			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("GET /stats reports service status", func() {
			rec := do(h, http.MethodGet, "/stats", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			body := decodeBody(rec)
			So(body["started"], ShouldBeTrue)
			So(body["worker_count"], ShouldEqual, 4.0)
		})

		Convey("GET /metrics exposes the registry", func() {
			do(h, http.MethodGet, "/health", "")
			rec := do(h, http.MethodGet, "/metrics", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "http_requests_total")
		})
	})
}

func TestPostEvent(t *testing.T) {
	Convey("Given the events endpoint", t, func() {
		deps := &mockDeps{}
		h := api.NewServer(deps, mockStatus{}, api.WithMaxBodyBytes(512)).Handler()
		valid := `{"event_id":"e1","deployment_id":7,"user_id":3,"event_type":"SignUp",` +
			`"user_name":" Ada ","auth_method":"GitHub","timestamp":"2026-06-01T10:00:00Z"}`

		Convey("A valid event is accepted", func() {
			rec := do(h, http.MethodPost, "/events", valid)
			So(rec.Code, ShouldEqual, http.StatusAccepted)
			body := decodeBody(rec)
			So(body["status"], ShouldEqual, "accepted")
			So(body["event_id"], ShouldEqual, "e1")
			So(body["duplicate"], ShouldBeFalse)

			So(deps.submitted, ShouldHaveLength, 1)
			e := deps.submitted[0]
			So(e.Type, ShouldEqual, model.EventSignup)
			So(e.UserName, ShouldEqual, "Ada")
			So(e.AuthMethod, ShouldEqual, "github")
			So(*e.UserID, ShouldEqual, int64(3))
			So(e.Timestamp.Equal(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)), ShouldBeTrue)
		})

		Convey("A duplicate is answered with 200", func() {
			deps.submitRes = service.SubmitResult{Duplicate: true}
			rec := do(h, http.MethodPost, "/events", valid)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(rec)["duplicate"], ShouldBeTrue)
		})

		Convey("Malformed input returns 400", func() {
			for _, body := range []string{
				`{"deployment_id":`,
				`{"deployment_id":7,"event_type":"signup","extra":1}`,
				`{"deployment_id":7,"event_type":"logout"}`,
				`{"deployment_id":"seven","event_type":"signup"}`,
				`{"deployment_id":7,"event_type":"signup","timestamp":"yesterday"}`,
				`{"deployment_id":7,"event_type":"signup"} {}`,
				``,
			} {
				rec := do(h, http.MethodPost, "/events", body)
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeBody(rec)["code"], ShouldEqual, "bad_request")
			}
			So(deps.submitted, ShouldBeEmpty)
		})

		Convey("A validation failure from the service returns 400", func() {
			deps.submitErr = fmt.Errorf("%w: %w", service.ErrInvalidEvent, model.ErrInvalidDeployment)
			rec := do(h, http.MethodPost, "/events", `{"event_type":"signup"}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeBody(rec)["message"], ShouldContainSubstring, "deployment_id")
		})

		Convey("An oversized body returns 413", func() {
			big := `{"event_type":"signup","user_name":"` + strings.Repeat("x", 1024) + `"}`
			rec := do(h, http.MethodPost, "/events", big)
			So(rec.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
			So(decodeBody(rec)["code"], ShouldEqual, "payload_too_large")
		})

		Convey("A full queue returns 429", func() {
			deps.submitErr = fmt.Errorf("%w: queue full", service.ErrBackpressure)
			rec := do(h, http.MethodPost, "/events", valid)
			So(rec.Code, ShouldEqual, http.StatusTooManyRequests)
			So(decodeBody(rec)["code"], ShouldEqual, "backpressure")
		})

		Convey("An unstarted service returns 503", func() {
			deps.submitErr = service.ErrNotStarted
			rec := do(h, http.MethodPost, "/events", valid)
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestAnalyticsEndpoints(t *testing.T) {
	Convey("Given the analytics endpoints", t, func() {
		deps := &mockDeps{stats: analytics.Stats{Signups: 3, TotalSignups: 9}}
		h := api.NewServer(deps, mockStatus{}, api.WithMaxRecentSignupsLimit(20)).Handler()

		Convey("Stats uses the deployment and the query range", func() {
			rec := do(h, http.MethodGet, "/deployments/42/analytics/stats?from=2026-06-01T00:00:00Z&to=2026-06-10T00:00:00Z", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.statsDeployment, ShouldEqual, int64(42))
			So(deps.statsRange.From.Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
			body := decodeBody(rec)
			So(body["signups"], ShouldEqual, 3.0)
			So(body["total_signups"], ShouldEqual, 9.0)
		})

		Convey("Stats accepts bare dates and defaults absent bounds", func() {
			rec := do(h, http.MethodGet, "/deployments/42/analytics/stats?from=2026-06-01", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.statsRange.To.Equal(now), ShouldBeTrue)
		})

		Convey("A bare to date covers the whole day", func() {
			rec := do(h, http.MethodGet, "/deployments/42/analytics/stats?from=2026-06-01&to=2026-06-03", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.statsRange.From.Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
			So(deps.statsRange.To.Equal(time.Date(2026, 6, 3, 23, 59, 59, 999999999, time.UTC)), ShouldBeTrue)

			rec = do(h, http.MethodGet, "/deployments/42/analytics/daily?from=2026-06-01&to=2026-06-03", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			var body struct {
				Days []analytics.DailyCount `json:"days"`
			}
			So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
			So(body.Days, ShouldHaveLength, 3)
			So(body.Days[2].Date, ShouldEqual, "2026-06-03")
		})

		Convey("Bad parameters return 400", func() {
			for _, target := range []string{
				"/deployments/0/analytics/stats",
				"/deployments/-3/analytics/stats",
				"/deployments/abc/analytics/stats",
				"/deployments/+7/analytics/stats",
				"/deployments/7.0/analytics/stats",
				"/deployments/1/analytics/stats?from=soon",
				"/deployments/1/analytics/stats?from=2026-06-10T00:00:00Z&to=2026-06-01T00:00:00Z",
				"/deployments/1/analytics/recent-signups?limit=0",
				"/deployments/1/analytics/recent-signups?limit=21",
				"/deployments/1/analytics/recent-signups?limit=ten",
				"/deployments/1/analytics/daily?event_type=logout",
			} {
				rec := do(h, http.MethodGet, target, "")
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("Recent signups default the limit", func() {
			rec := do(h, http.MethodGet, "/deployments/1/analytics/recent-signups", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.recentLimit, ShouldEqual, 10)

			var body struct {
				Signups []analytics.RecentSignup `json:"signups"`
			}
			So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
			So(body.Signups, ShouldHaveLength, 1)
			So(body.Signups[0].Email, ShouldEqual, "ada@example.com")

			do(h, http.MethodGet, "/deployments/1/analytics/recent-signups?limit=20", "")
			So(deps.recentLimit, ShouldEqual, 20)
		})

		Convey("Daily returns a zero-filled series", func() {
			rec := do(h, http.MethodGet, "/deployments/1/analytics/daily?event_type=signin&from=2026-06-01T00:00:00Z&to=2026-06-03T23:00:00Z", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.dailyType, ShouldEqual, model.EventSignin)

			var body struct {
				EventType string                 `json:"event_type"`
				Days      []analytics.DailyCount `json:"days"`
			}
			So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
			So(body.EventType, ShouldEqual, "signin")
			So(body.Days, ShouldHaveLength, 3)
			So(body.Days[0].Date, ShouldEqual, "2026-06-01")
		})

		Convey("Daily defaults to signups", func() {
			rec := do(h, http.MethodGet, "/deployments/1/analytics/daily", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.dailyType, ShouldEqual, model.EventSignup)
		})

		Convey("Store failures return 500 without details", func() {
			deps.queryErr = errors.New("connection reset by peer")
			rec := do(h, http.MethodGet, "/deployments/1/analytics/stats", "")
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
			body := decodeBody(rec)
			So(body["code"], ShouldEqual, "internal_error")
			So(body["message"], ShouldNotContainSubstring, "connection reset")
		})
	})
}

func TestMiddleware(t *testing.T) {
	Convey("Given the middleware chain", t, func() {
		panicky := func(r chi.Router) {
			r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
			r.Get("/half", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusAccepted)
				panic("after header")
			})
		}
		h := api.NewServer(&mockDeps{}, mockStatus{},
			api.WithCORSOrigins([]string{"https://dash.example.com"}),
			api.WithMount(panicky),
		).Handler()

		Convey("A panicking handler is answered with 500", func() {
			rec := do(h, http.MethodGet, "/boom", "")
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
			So(decodeBody(rec)["code"], ShouldEqual, "internal_error")
		})

		Convey("A panic is logged with the request id", func() {
			var buf bytes.Buffer
			So(logger.Init(logger.WithWriter(&buf), logger.WithFormat("json")), ShouldBeNil)
			l := logger.Get()
			So(logger.Init(), ShouldBeNil)

			logged := api.NewServer(&mockDeps{}, mockStatus{}, api.WithLogger(l), api.WithMount(panicky)).Handler()
			rec := do(logged, http.MethodGet, "/boom", "")
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
			So(buf.String(), ShouldContainSubstring, "panic in handler")
			So(buf.String(), ShouldContainSubstring, `"request_id":"`)
			So(buf.String(), ShouldNotContainSubstring, `"request_id":""`)
		})

		Convey("A panic after the status was written keeps that status", func() {
			rec := do(h, http.MethodGet, "/half", "")
			So(rec.Code, ShouldEqual, http.StatusAccepted)
			So(rec.Body.Len(), ShouldEqual, 0)
		})

		Convey("An allowed origin receives CORS headers", func() {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("Origin", "https://dash.example.com")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "https://dash.example.com")
		})

		Convey("Another origin receives none", func() {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("Origin", "https://evil.example.com")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			So(rec.Header().Get("Access-Control-Allow-Origin"), ShouldBeEmpty)
		})

		Convey("A preflight request is answered with 204", func() {
			req := httptest.NewRequest(http.MethodOptions, "/events", nil)
			req.Header.Set("Origin", "https://dash.example.com")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusNoContent)
			So(rec.Header().Get("Access-Control-Allow-Methods"), ShouldContainSubstring, "POST")
		})

		Convey("A plain OPTIONS request still returns 405", func() {
			rec := do(h, http.MethodOptions, "/health", "")
			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestEndToEnd(t *testing.T) {
	Convey("Given the API backed by a running service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(2), service.WithQueueSize(16))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { So(svc.Stop(ctx), ShouldBeNil) }()

		srv := httptest.NewServer(api.NewServer(svc, svc).Handler())
		defer srv.Close()

		post := func(body string) int {
			resp, err := http.Post(srv.URL+"/events", "application/json", strings.NewReader(body))
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			return resp.StatusCode
		}

		ts := svc.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
		So(post(`{"event_id":"a","deployment_id":5,"user_id":1,"event_type":"signup","user_email":"a@x.io","timestamp":"`+ts+`"}`), ShouldEqual, http.StatusAccepted)
		So(post(`{"event_id":"b","deployment_id":5,"user_id":1,"event_type":"signin","timestamp":"`+ts+`"}`), ShouldEqual, http.StatusAccepted)

		var st analytics.Stats
		deadline := time.Now().Add(time.Second)
		for {
			resp, err := http.Get(srv.URL + "/deployments/5/analytics/stats")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(json.NewDecoder(resp.Body).Decode(&st), ShouldBeNil)
			resp.Body.Close()
			if (st.Signups == 1 && st.UniqueSignins == 1) || time.Now().After(deadline) {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		So(st.Signups, ShouldEqual, int64(1))
		So(st.UniqueSignins, ShouldEqual, int64(1))
		So(st.TotalSignups, ShouldEqual, int64(1))
		So(post(`{"event_id":"a","deployment_id":5,"user_id":1,"event_type":"signup","timestamp":"`+ts+`"}`), ShouldEqual, http.StatusOK)

		Convey("Date-only ranges include events on the last day", func() {
			for i, day := range []string{"2026-01-01", "2026-01-02", "2026-01-03"} {
				body := fmt.Sprintf(`{"event_id":"d%d","deployment_id":7,"user_id":%d,"event_type":"signup","timestamp":"%sT10:00:00Z"}`, i, i+1, day)
				So(post(body), ShouldEqual, http.StatusAccepted)
			}

			var daily struct {
				Days []analytics.DailyCount `json:"days"`
			}
			deadline := time.Now().Add(time.Second)
			for {
				resp, err := http.Get(srv.URL + "/deployments/7/analytics/daily?from=2026-01-01&to=2026-01-03")
				So(err, ShouldBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(json.NewDecoder(resp.Body).Decode(&daily), ShouldBeNil)
				resp.Body.Close()
				if (len(daily.Days) == 3 && daily.Days[2].Count == 1) || time.Now().After(deadline) {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}
			So(daily.Days, ShouldHaveLength, 3)
			So(daily.Days[2].Date, ShouldEqual, "2026-01-03")
			So(daily.Days[2].Count, ShouldEqual, int64(1))

			resp, err := http.Get(srv.URL + "/deployments/7/analytics/stats?from=2026-01-01&to=2026-01-03")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			var stats analytics.Stats
			So(json.NewDecoder(resp.Body).Decode(&stats), ShouldBeNil)
			So(stats.Signups, ShouldEqual, int64(3))
		})
	})
}
