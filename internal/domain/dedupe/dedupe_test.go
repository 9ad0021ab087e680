package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/heatscore/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))

		Convey("When a submission id is new", func() {
			seen := d.SeenAndRecord(ctx, "sub-1", "fp")

			Convey("Then it is recorded", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And Seen does not record anything new", func() {
				So(d.Seen(ctx, "sub-1", "fp"), ShouldBeTrue)
				So(d.Seen(ctx, "sub-2", "fp"), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And a replay is detected", func() {
				So(d.SeenAndRecord(ctx, "sub-1", "fp"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And the same id with another payload is new", func() {
				So(d.Seen(ctx, "sub-1", "other"), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, "sub-1", "other"), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)

				Convey("Then the latest payload replaces the earlier one", func() {
					So(d.Seen(ctx, "sub-1", "other"), ShouldBeTrue)
					So(d.Seen(ctx, "sub-1", "fp"), ShouldBeFalse)
				})
			})
		})

		Convey("When the deduper is at capacity", func() {
			for i := 1; i <= 3; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("sub-%d", i), "fp")
			}
			d.SeenAndRecord(ctx, "sub-4", "fp")

			Convey("Then the oldest id is evicted", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "sub-4", "fp"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "sub-3", "fp"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "sub-1", "fp"), ShouldBeFalse)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))

		Convey("When many ids are recorded", func() {
			for i := 0; i < 1000; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("sub-%d", i), "fp")
			}

			Convey("Then none are evicted", func() {
				So(d.Size(), ShouldEqual, 1000)
				So(d.SeenAndRecord(ctx, "sub-0", "fp"), ShouldBeTrue)
			})
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given a deduper with concurrent access", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()

		Convey("When several goroutines replay the same ids", func() {
			var (
				wg    sync.WaitGroup
				mu    sync.Mutex
				fresh int
			)
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						if !d.SeenAndRecord(ctx, fmt.Sprintf("sub-%d", i), "fp") {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each id is new exactly once", func() {
				So(fresh, ShouldEqual, 100)
				So(d.Size(), ShouldEqual, 100)
			})
		})
	})
}
