package types_test

import (
	"encoding/json"
	"testing"

	types "github.com/okian/heatscore/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStandingJSON(t *testing.T) {
	Convey("Given standings with a ranked and an unranked athlete", t, func() {
		best := 82.0
		s := types.Standings{
			Ranked:   []types.Standing{{Rank: 1, BibNum: 12, AthleteID: 42, Name: "Kaya Turski", Best: &best}},
			Unranked: []types.Standing{{BibNum: 7, AthleteID: 9, Name: "Eileen Gu"}},
		}

		Convey("When encoding to JSON", func() {
			raw, err := json.Marshal(s)
			So(err, ShouldBeNil)

			var decoded map[string][]map[string]any
			So(json.Unmarshal(raw, &decoded), ShouldBeNil)

			Convey("Then the unranked best is null and carries no rank", func() {
				un := decoded["unranked"][0]
				v, present := un["best"]
				So(present, ShouldBeTrue)
				So(v, ShouldBeNil)
				_, hasRank := un["rank"]
				So(hasRank, ShouldBeFalse)
			})

			Convey("And the ranked line keeps its score", func() {
				So(decoded["ranked"][0]["best"], ShouldEqual, 82.0)
				So(decoded["ranked"][0]["rank"], ShouldEqual, 1.0)
			})
		})
	})
}

func TestSubmitResponseJSON(t *testing.T) {
	Convey("Given submit acknowledgements", t, func() {
		Convey("Then duplicate is only present on replays", func() {
			first, _ := json.Marshal(types.SubmitResponse{Success: true})
			replay, _ := json.Marshal(types.SubmitResponse{Success: true, Duplicate: true})
			So(string(first), ShouldEqual, `{"success":true}`)
			So(string(replay), ShouldEqual, `{"success":true,"duplicate":true}`)
		})
	})
}
