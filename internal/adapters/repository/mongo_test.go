package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/dashboard-api/internal/adapters/repository"
)

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("DASHBOARD_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("DASHBOARD_TEST_MONGO_URI not set")
	}

	Convey("Given a mongo store", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		s, err := repository.NewMongoStore(ctx, uri, "dashboard_test")
		So(err, ShouldBeNil)
		Reset(func() {
			_ = s.Close()
			cancel()
		})

		Convey("When events are recorded", func() {
			storeContract(s, time.Now().UnixNano()%1_000_000_000_000)
		})
	})
}
