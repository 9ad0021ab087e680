package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/heatscore/internal/adapters/repository"
	service "github.com/okian/heatscore/internal/app"
	"github.com/okian/heatscore/internal/domain/gate"
	"github.com/okian/heatscore/internal/domain/model"
	"github.com/okian/heatscore/internal/domain/types"
	"github.com/okian/heatscore/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

const passcode = "pow-2026"

func newStore(ctx context.Context) *repository.SQLStore {
	store, err := repository.Open(ctx, repository.DriverSQLite, ":memory:")
	So(err, ShouldBeNil)
	So(store.Migrate(ctx), ShouldBeNil)
	hash, err := gate.HashPasscode(passcode)
	So(err, ShouldBeNil)
	So(store.SeedHeat(ctx, repository.HeatSetup{
		EventID: 1, EventName: "Winter Open",
		DivisionID: 2, Division: "Men Halfpipe",
		RoundID: 3, RoundName: "Final",
		RoundHeatID: 11, HeatNum: 1, Runs: 3,
		Athletes: []repository.SetupAthlete{
			{AthleteID: 1, FirstName: "Scotty", LastName: "James", Bib: 1},
			{AthleteID: 2, FirstName: "Ayumu", LastName: "Hirano", Bib: 2},
			{AthleteID: 3, FirstName: "Yuto", LastName: "Totsuka", Bib: 3},
		},
		Judges: []repository.SetupJudge{
			{PersonnelID: 100, Name: "Head Judge", PasscodeHash: hash},
			{PersonnelID: 200, Name: "Judge Two", PasscodeHash: hash},
		},
	}), ShouldBeNil)
	Reset(func() { _ = store.Close() })
	return store
}

func startService(ctx context.Context, store repository.Store, opts ...service.Option) *service.Service {
	svc := service.New(store, opts...)
	So(svc.Start(ctx), ShouldBeNil)
	Reset(svc.Stop)
	return svc
}

func sub(judge, athlete int64, run int, score float64) model.ScoreSubmission {
	return model.ScoreSubmission{RoundHeatID: 11, RunNum: run, PersonnelID: judge, AthleteID: athlete, Bib: int(athlete), Score: score}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		ctx := context.Background()

		Convey("When it has no store", func() {
			svc := service.New(nil)

			Convey("Then it refuses to start", func() {
				So(errors.Is(svc.Start(ctx), service.ErrNoStore), ShouldBeTrue)
			})
		})

		Convey("When sessions are required without an issuer", func() {
			svc := service.New(newStore(ctx), service.WithRequirePanelSession(true))

			Convey("Then it refuses to start", func() {
				So(errors.Is(svc.Start(ctx), service.ErrSessionsDisabled), ShouldBeTrue)
			})
		})

		Convey("When it has not been started", func() {
			svc := service.New(newStore(ctx))
			_, err := svc.Submit(ctx, sub(100, 1, 1, 50), nil)

			Convey("Then submissions are refused", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When started twice and stopped", func() {
			svc := service.New(newStore(ctx))
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Ready(ctx), ShouldBeNil)
			svc.Stop()

			Convey("Then it reports not ready", func() {
				So(errors.Is(svc.Ready(ctx), service.ErrNotStarted), ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_Submit(t *testing.T) {
	Convey("Given a started service over a seeded heat", t, func() {
		ctx := context.Background()
		store := newStore(ctx)
		svc := startService(ctx, store)

		Convey("When a judge submits a valid score", func() {
			res, err := svc.Submit(ctx, sub(100, 1, 1, 70), nil)

			Convey("Then it is applied", func() {
				So(err, ShouldBeNil)
				So(res.Duplicate, ShouldBeFalse)
				best, err := svc.BestScores(ctx, repository.Scope{RoundHeatID: 11})
				So(err, ShouldBeNil)
				So(best, ShouldResemble, []types.BestScore{{BibNum: 1, AthleteID: 1, Best: 70}})
			})
		})

		Convey("When the same submission id is replayed", func() {
			s := sub(100, 1, 1, 70)
			s.SubmissionID = "0d6c4b0e-5b8e-4c59-9d8f-2f1b8a6f3a10"
			_, err := svc.Submit(ctx, s, nil)
			So(err, ShouldBeNil)
			res, err := svc.Submit(ctx, s, nil)

			Convey("Then it is acknowledged as a duplicate", func() {
				So(err, ShouldBeNil)
				So(res.Duplicate, ShouldBeTrue)
				So(svc.GetStats()["submissionsReplayed"], ShouldEqual, int64(1))
			})
		})

		Convey("When a submission id is reused for a different score", func() {
			first, corrected, other := sub(100, 1, 1, 70), sub(100, 1, 1, 88), sub(200, 2, 2, 55)
			first.SubmissionID, corrected.SubmissionID, other.SubmissionID = "reused-id", "reused-id", "reused-id"

			_, err := svc.Submit(ctx, first, nil)
			So(err, ShouldBeNil)
			resCorrected, err := svc.Submit(ctx, corrected, nil)
			So(err, ShouldBeNil)
			resOther, err := svc.Submit(ctx, other, nil)
			So(err, ShouldBeNil)

			Convey("Then each payload is applied, not acknowledged as a replay", func() {
				So(resCorrected.Duplicate, ShouldBeFalse)
				So(resOther.Duplicate, ShouldBeFalse)

				jb, err := svc.JudgeBest(ctx, repository.Scope{RoundHeatID: 11, PersonnelID: 100})
				So(err, ShouldBeNil)
				So(jb, ShouldResemble, []types.JudgeBest{{BibNum: 1, BestRunScore: 88}})
				jb, err = svc.JudgeBest(ctx, repository.Scope{RoundHeatID: 11, PersonnelID: 200})
				So(err, ShouldBeNil)
				So(jb, ShouldResemble, []types.JudgeBest{{BibNum: 2, BestRunScore: 55}})
				So(svc.GetStats()["submissionsReplayed"], ShouldEqual, int64(0))
			})

			Convey("And resending the latest payload is a replay", func() {
				res, err := svc.Submit(ctx, other, nil)
				So(err, ShouldBeNil)
				So(res.Duplicate, ShouldBeTrue)
			})
		})

		Convey("When a score is corrected", func() {
			_, err := svc.Submit(ctx, sub(100, 1, 1, 70), nil)
			So(err, ShouldBeNil)
			_, err = svc.Submit(ctx, sub(100, 1, 1, 74.5), nil)
			So(err, ShouldBeNil)

			Convey("Then the last write wins", func() {
				jb, err := svc.JudgeBest(ctx, repository.Scope{RoundHeatID: 11, PersonnelID: 100})
				So(err, ShouldBeNil)
				So(jb, ShouldResemble, []types.JudgeBest{{BibNum: 1, BestRunScore: 74.5}})
			})
		})

		Convey("When the run does not exist", func() {
			_, err := svc.Submit(ctx, sub(100, 1, 4, 70), nil)

			Convey("Then it fails permanently and nothing is stored", func() {
				So(errors.Is(err, model.ErrRunResultNotFound), ShouldBeTrue)
				best, _ := svc.BestScores(ctx, repository.Scope{RoundHeatID: 11})
				So(best, ShouldBeEmpty)
			})
		})

		Convey("When the score is out of range", func() {
			_, err := svc.Submit(ctx, sub(100, 1, 1, 101), nil)

			Convey("Then it is a validation failure", func() {
				So(errors.Is(err, model.ErrInvalidSubmission), ShouldBeTrue)
				So(svc.GetStats()["submissionsRejected"], ShouldEqual, int64(1))
			})
		})
	})
}

func TestService_Views(t *testing.T) {
	Convey("Given scores from two judges", t, func() {
		ctx := context.Background()
		svc := startService(ctx, newStore(ctx))
		for _, s := range []model.ScoreSubmission{
			sub(100, 1, 1, 70), sub(200, 1, 1, 71),
			sub(100, 1, 2, 80), sub(200, 1, 2, 84),
			sub(100, 2, 1, 82), sub(200, 2, 1, 82),
		} {
			_, err := svc.Submit(ctx, s, nil)
			So(err, ShouldBeNil)
		}

		Convey("When reading standings", func() {
			st, err := svc.Standings(ctx, repository.Scope{RoundID: 3})
			So(err, ShouldBeNil)

			Convey("Then tied athletes share a rank and the unscored one is unranked", func() {
				So(len(st.Ranked), ShouldEqual, 2)
				So(st.Ranked[0].BibNum, ShouldEqual, 1)
				So(st.Ranked[0].Rank, ShouldEqual, 1)
				So(st.Ranked[1].Rank, ShouldEqual, 1)
				So(*st.Ranked[1].Best, ShouldEqual, 82)
				So(len(st.Unranked), ShouldEqual, 1)
				So(st.Unranked[0].Name, ShouldEqual, "Yuto Totsuka")
				So(st.Unranked[0].Best, ShouldBeNil)
			})
		})

		Convey("When reading the run board", func() {
			board, err := svc.RunBoard(ctx, 11)
			So(err, ShouldBeNil)

			Convey("Then each run lists both judges", func() {
				So(len(board), ShouldEqual, 3)
				So(len(board[0].Runs), ShouldEqual, 2)
				So(*board[0].Runs[0].Score, ShouldEqual, 70.5)
				So(len(board[0].Runs[1].Marks), ShouldEqual, 2)
				So(board[2].Runs, ShouldBeEmpty)
				So(board[2].Best, ShouldBeNil)
			})
		})

		Convey("When asking for a judge view without a judge", func() {
			_, err := svc.JudgeBest(ctx, repository.Scope{RoundHeatID: 11})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestService_PanelSession(t *testing.T) {
	Convey("Given a service requiring panel sessions", t, func() {
		ctx := context.Background()
		issuer, err := gate.NewIssuer("test-secret", gate.WithTTL(time.Hour))
		So(err, ShouldBeNil)
		store := newStore(ctx)
		svc := startService(ctx, store, service.WithIssuer(issuer), service.WithRequirePanelSession(true))

		Convey("When the judge enters the right passcode", func() {
			resp, err := svc.OpenSession(ctx, types.SessionRequest{EventID: 1, RoundHeatID: 11, PersonnelID: 100, Passcode: passcode})
			So(err, ShouldBeNil)
			session, err := svc.ParseSession(resp.Token)
			So(err, ShouldBeNil)

			Convey("Then the session binds judge, heat and event", func() {
				So(session.PersonnelID, ShouldEqual, 100)
				So(session.RoundHeatID, ShouldEqual, 11)
				So(session.RoundID, ShouldEqual, 3)
				So(session.DivisionID, ShouldEqual, 2)
			})

			Convey("And it authorizes that judge's submissions", func() {
				_, err := svc.Submit(ctx, sub(100, 1, 1, 50), &session)
				So(err, ShouldBeNil)
			})

			Convey("And it does not authorize another judge", func() {
				_, err := svc.Submit(ctx, sub(200, 1, 1, 50), &session)
				So(errors.Is(err, model.ErrForbidden), ShouldBeTrue)
			})
		})

		Convey("When a judge's passcode was stored before hashing", func() {
			So(store.SeedHeat(ctx, repository.HeatSetup{
				EventID: 1, DivisionID: 2, RoundID: 3, RoundHeatID: 11, HeatNum: 1,
				Judges: []repository.SetupJudge{{PersonnelID: 300, Name: "Judge Three", PasscodeHash: "halfpipe-3"}},
			}), ShouldBeNil)

			Convey("Then the plain value still opens a session", func() {
				resp, err := svc.OpenSession(ctx, types.SessionRequest{RoundHeatID: 11, PersonnelID: 300, Passcode: "halfpipe-3"})
				So(err, ShouldBeNil)
				So(resp.Token, ShouldNotBeEmpty)

				_, err = svc.OpenSession(ctx, types.SessionRequest{RoundHeatID: 11, PersonnelID: 300, Passcode: "halfpipe-2"})
				So(errors.Is(err, model.ErrInvalidPasscode), ShouldBeTrue)
			})
		})

		Convey("When the passcode is wrong", func() {
			_, err := svc.OpenSession(ctx, types.SessionRequest{RoundHeatID: 11, PersonnelID: 100, Passcode: "guess"})
			So(errors.Is(err, model.ErrInvalidPasscode), ShouldBeTrue)
		})

		Convey("When the judge is unknown", func() {
			_, err := svc.OpenSession(ctx, types.SessionRequest{RoundHeatID: 11, PersonnelID: 999, Passcode: passcode})
			So(errors.Is(err, model.ErrInvalidPasscode), ShouldBeTrue)
		})

		Convey("When the request names a different round", func() {
			_, err := svc.OpenSession(ctx, types.SessionRequest{RoundID: 4, RoundHeatID: 11, PersonnelID: 100, Passcode: passcode})
			So(errors.Is(err, model.ErrInvalidPasscode), ShouldBeTrue)
		})

		Convey("When no session is presented", func() {
			_, err := svc.Submit(ctx, sub(100, 1, 1, 50), nil)
			So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
		})

		Convey("When the token is forged", func() {
			_, err := svc.ParseSession("forged")
			So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
		})
	})
}
