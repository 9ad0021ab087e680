package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/heatscore/internal/adapters/http/client"
	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func respond(status int, body any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

var sample = model.ScoreSubmission{SubmissionID: "sub-1", RoundHeatID: 11, RunNum: 1, PersonnelID: 100, AthleteID: 1, Bib: 1, Score: 77}

func TestClient_Submit(t *testing.T) {
	Convey("Given a scoring server", t, func() {
		ctx := context.Background()

		Convey("When the score is accepted", func() {
			var got model.ScoreSubmission
			var auth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				auth = r.Header.Get("Authorization")
				_ = json.NewDecoder(r.Body).Decode(&got)
				respond(http.StatusOK, types.SubmitResponse{Success: true})(w, r)
			}))
			defer srv.Close()

			c := client.New(srv.URL+"/", client.WithToken("tok"))
			dup, err := c.Submit(ctx, sample)

			Convey("Then the body and bearer token are sent", func() {
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)
				So(got, ShouldResemble, sample)
				So(auth, ShouldEqual, "Bearer tok")
			})
		})

		Convey("When the server reports a replay", func() {
			srv := httptest.NewServer(respond(http.StatusOK, types.SubmitResponse{Success: true, Duplicate: true}))
			defer srv.Close()
			dup, err := client.New(srv.URL).Submit(ctx, sample)

			Convey("Then the duplicate flag is returned", func() {
				So(err, ShouldBeNil)
				So(dup, ShouldBeTrue)
			})
		})

		cases := []struct {
			name      string
			status    int
			msg       string
			kind      error
			permanent bool
		}{
			{"missing run record", http.StatusNotFound, "Run result not found", model.ErrRunResultNotFound, true},
			{"ambiguous run record", http.StatusConflict, "Ambiguous run result", model.ErrAmbiguousRunResult, true},
			{"validation", http.StatusBadRequest, "invalid submission: score 120 outside [0, 100]", model.ErrInvalidSubmission, true},
			{"wrong route", http.StatusNotFound, "404 page not found", client.ErrRequest, false},
			{"expired session", http.StatusUnauthorized, "Panel session required", model.ErrUnauthorized, false},
			{"foreign heat", http.StatusForbidden, "Panel session does not cover this score", model.ErrForbidden, false},
			{"database down", http.StatusInternalServerError, "Server error", client.ErrServer, false},
		}
		for _, tc := range cases {
			Convey("When the server answers "+tc.name, func() {
				srv := httptest.NewServer(respond(tc.status, types.ErrorResponse{Error: tc.msg}))
				defer srv.Close()
				_, err := client.New(srv.URL).Submit(ctx, sample)

				Convey("Then the error is classified", func() {
					var se *client.StatusError
					So(errors.As(err, &se), ShouldBeTrue)
					So(se.Code, ShouldEqual, tc.status)
					So(se.Message, ShouldEqual, tc.msg)
					So(errors.Is(err, tc.kind), ShouldBeTrue)
					So(model.IsPermanent(err), ShouldEqual, tc.permanent)
					So(client.IsTransient(err), ShouldEqual, !tc.permanent)
				})
			})
		}

		Convey("When the server is unreachable", func() {
			srv := httptest.NewServer(http.NotFoundHandler())
			url := srv.URL
			srv.Close()
			_, err := client.New(url, client.WithTimeout(time.Second)).Submit(ctx, sample)

			Convey("Then the failure is transient", func() {
				So(errors.Is(err, client.ErrUnreachable), ShouldBeTrue)
				So(client.IsTransient(err), ShouldBeTrue)
			})
		})
	})
}

func TestClient_Login(t *testing.T) {
	Convey("Given the panel session endpoint", t, func() {
		ctx := context.Background()
		exp := time.Date(2026, 2, 14, 22, 0, 0, 0, time.UTC)

		Convey("When the passcode is right", func() {
			var auth string
			mux := http.NewServeMux()
			mux.HandleFunc("/api/panel/session", respond(http.StatusOK, types.SessionResponse{Token: "signed", ExpiresAt: exp}))
			mux.HandleFunc("/api/scores", func(w http.ResponseWriter, r *http.Request) {
				auth = r.Header.Get("Authorization")
				respond(http.StatusOK, types.SubmitResponse{Success: true})(w, r)
			})
			srv := httptest.NewServer(mux)
			defer srv.Close()

			c := client.New(srv.URL)
			resp, err := c.Login(ctx, types.SessionRequest{RoundHeatID: 11, PersonnelID: 100, Passcode: "pow-2026"})
			So(err, ShouldBeNil)
			_, err = c.Submit(ctx, sample)

			Convey("Then the token is kept for submissions", func() {
				So(err, ShouldBeNil)
				So(resp.Token, ShouldEqual, "signed")
				So(resp.ExpiresAt.Equal(exp), ShouldBeTrue)
				So(auth, ShouldEqual, "Bearer signed")
			})
		})

		Convey("When the passcode is wrong", func() {
			srv := httptest.NewServer(respond(http.StatusUnauthorized, types.ErrorResponse{Error: "Invalid passcode"}))
			defer srv.Close()
			_, err := client.New(srv.URL).Login(ctx, types.SessionRequest{RoundHeatID: 11, PersonnelID: 100, Passcode: "nope"})

			Convey("Then ErrInvalidPasscode is returned", func() {
				So(errors.Is(err, model.ErrInvalidPasscode), ShouldBeTrue)
				So(client.IsTransient(err), ShouldBeFalse)
			})
		})
	})
}

func TestClient_Reads(t *testing.T) {
	Convey("Given the read endpoints", t, func() {
		ctx := context.Background()
		best := 88.0
		var queries []string
		mux := http.NewServeMux()
		mux.HandleFunc("/api/standings", func(w http.ResponseWriter, r *http.Request) {
			queries = append(queries, r.URL.RawQuery)
			respond(http.StatusOK, types.Standings{Ranked: []types.Standing{{Rank: 1, BibNum: 4, AthleteID: 4, Best: &best}}})(w, r)
		})
		mux.HandleFunc("/api/scores/best", func(w http.ResponseWriter, r *http.Request) {
			queries = append(queries, r.URL.RawQuery)
			if r.URL.Query().Get("personnel_id") != "" {
				respond(http.StatusOK, []types.JudgeBest{{BibNum: 4, BestRunScore: 90}})(w, r)
				return
			}
			respond(http.StatusOK, []types.BestScore{{BibNum: 4, AthleteID: 4, Best: 88}})(w, r)
		})
		mux.HandleFunc("/api/heats/11/runs", respond(http.StatusOK, []types.AthleteRuns{{BibNum: 4, AthleteID: 4}}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# HELP up\n")) })
		srv := httptest.NewServer(mux)
		defer srv.Close()
		c := client.New(srv.URL)

		Convey("When fetching standings for a round", func() {
			st, err := c.Standings(ctx, client.Query{RoundID: 3, EventID: 1})

			Convey("Then the query carries only the set filters", func() {
				So(err, ShouldBeNil)
				So(*st.Ranked[0].Best, ShouldEqual, 88)
				So(queries, ShouldResemble, []string{"event_id=1&round_id=3"})
			})
		})

		Convey("When fetching best scores both ways", func() {
			all, err1 := c.BestScores(ctx, client.Query{RoundHeatID: 11, PersonnelID: 100})
			mine, err2 := c.JudgeBest(ctx, 11, 100)

			Convey("Then the judge filter picks the view", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(all[0].AthleteID, ShouldEqual, 4)
				So(mine[0].BestRunScore, ShouldEqual, 90)
			})
		})

		Convey("When fetching the run board and probing health", func() {
			board, err := c.RunBoard(ctx, 11)

			Convey("Then both succeed", func() {
				So(err, ShouldBeNil)
				So(board, ShouldHaveLength, 1)
				So(c.Healthy(ctx), ShouldBeNil)
			})
		})
	})
}
