package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"dropin/internal/registration/service"
	"dropin/internal/roster/models"
	"dropin/internal/roster/store"
	id "dropin/pkg/domain"
	"dropin/pkg/testutil"
)

// =============================================================================
// Registration Handler Suite
// =============================================================================
// Runs the handlers against the real engine and in-memory roster so the
// status mapping is checked for every outcome the engine can produce.

type HandlerSuite struct {
	suite.Suite
	roster    *store.InMemory
	engine    *service.Service
	router    chi.Router
	organizer id.UserID
	member    id.UserID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.roster = store.NewInMemory()
	engine, err := service.New(s.roster)
	s.Require().NoError(err)
	s.engine = engine
	s.router = chi.NewRouter()
	New(engine, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
	s.organizer = id.NewUserID()
	s.member = id.NewUserID()
}

func (s *HandlerSuite) createGame(capacity int) id.GameID {
	view, err := s.engine.CreateGame(context.Background(),
		id.Identity{UserID: s.organizer, Role: id.RoleOrganizer},
		service.CreateGameRequest{Name: "Pickup hockey", StartsAt: time.Now().Add(time.Hour), Capacity: capacity},
	)
	s.Require().NoError(err)
	return view.ID
}

func (s *HandlerSuite) asMember(req *http.Request) *http.Request {
	return testutil.AsMember(req, s.member)
}

func (s *HandlerSuite) asOrganizer(req *http.Request) *http.Request {
	return testutil.AsOrganizer(req, s.organizer)
}

// =============================================================================
// POST /games
// =============================================================================

func (s *HandlerSuite) TestCreateGame() {
	s.Run("organizer creates with datetime-local input", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/games", map[string]any{
			"gameName":    "Pickup hockey",
			"dateTime":    "2030-01-15T18:30",
			"maxSpots":    12,
			"organizerID": s.organizer.String(),
		})
		rr := testutil.DoRequest(s.router, s.asOrganizer(req))

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[models.GameResponse](s.T(), rr)
		s.Equal("Pickup hockey", resp.GameName)
		s.Equal(12, resp.MaxSpots)
		s.Equal(0, resp.CurrentSpots)
		s.True(time.Date(2030, 1, 15, 18, 30, 0, 0, time.UTC).Equal(resp.DateTime))
		s.Nil(resp.Members)
	})

	s.Run("rfc3339 input is accepted", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/games", map[string]any{
			"gameName": "Badminton",
			"dateTime": "2030-01-15T18:30:00+02:00",
			"maxSpots": 4,
		})
		rr := testutil.DoRequest(s.router, s.asOrganizer(req))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[models.GameResponse](s.T(), rr)
		s.True(time.Date(2030, 1, 15, 16, 30, 0, 0, time.UTC).Equal(resp.DateTime))
	})

	s.Run("member is forbidden", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/games", map[string]any{
			"gameName": "Nope", "dateTime": "2030-01-15T18:30", "maxSpots": 4,
		})
		rr := testutil.DoRequest(s.router, s.asMember(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "unauthorized")
	})

	s.Run("organizer id must match token", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/games", map[string]any{
			"gameName": "Spoofed", "dateTime": "2030-01-15T18:30", "maxSpots": 4,
			"organizerID": id.NewUserID().String(),
		})
		rr := testutil.DoRequest(s.router, s.asOrganizer(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "unauthorized")
	})

	s.Run("invalid capacity", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/games", map[string]any{
			"gameName": "Zero", "dateTime": "2030-01-15T18:30", "maxSpots": 0,
		})
		rr := testutil.DoRequest(s.router, s.asOrganizer(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_argument")
	})

	s.Run("invalid date", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/games", map[string]any{
			"gameName": "When", "dateTime": "next tuesday", "maxSpots": 3,
		})
		rr := testutil.DoRequest(s.router, s.asOrganizer(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_argument")
	})

	s.Run("unknown fields are rejected", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/games", `{"gameName":"x","maxSpotz":3}`)
		rr := testutil.DoRequest(s.router, s.asOrganizer(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("missing identity is 401", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/games", map[string]any{
			"gameName": "Anon", "dateTime": "2030-01-15T18:30", "maxSpots": 3,
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})
}

// =============================================================================
// POST /games/register
// =============================================================================

func (s *HandlerSuite) TestRegistrationFlow() {
	gameID := s.createGame(1)
	register := func(user id.UserID, action string) *http.Request {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/games/register", map[string]any{
			"gameID": gameID.String(),
			"userID": user.String(),
			"action": action,
		})
		return testutil.AsMember(req, user)
	}

	rr := testutil.DoRequest(s.router, register(s.member, "register"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONHasKey(s.T(), rr, "message")

	rr = testutil.DoRequest(s.router, register(s.member, "register"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "already_registered")

	other := id.NewUserID()
	rr = testutil.DoRequest(s.router, register(other, "register"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "game_full")

	rr = testutil.DoRequest(s.router, register(other, "unregister"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "not_registered")

	rr = testutil.DoRequest(s.router, register(s.member, "unregister"))
	testutil.AssertStatusOK(s.T(), rr)

	view, err := s.engine.Snapshot(context.Background(), gameID)
	s.Require().NoError(err)
	s.Equal(0, view.Occupancy)
}

func (s *HandlerSuite) TestRegistrationRejections() {
	gameID := s.createGame(3)

	s.Run("body user must match token", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/games/register", map[string]any{
			"gameID": gameID.String(), "userID": id.NewUserID().String(), "action": "register",
		})
		rr := testutil.DoRequest(s.router, s.asMember(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "unauthorized")
	})

	s.Run("unknown game", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/games/register", map[string]any{
			"gameID": id.NewGameID().String(), "action": "register",
		})
		rr := testutil.DoRequest(s.router, s.asMember(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("malformed game id", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/games/register", map[string]any{
			"gameID": "42", "action": "register",
		})
		rr := testutil.DoRequest(s.router, s.asMember(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_argument")
	})

	s.Run("unknown action", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/games/register", map[string]any{
			"gameID": gameID.String(), "action": "waitlist",
		})
		rr := testutil.DoRequest(s.router, s.asMember(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("organizer cannot register by default", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/games/register", map[string]any{
			"gameID": gameID.String(), "action": "register",
		})
		rr := testutil.DoRequest(s.router, s.asOrganizer(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "unauthorized")
	})
}

// =============================================================================
// DELETE /games/manage
// =============================================================================

func (s *HandlerSuite) TestManage() {
	s.Run("member cannot delete", func() {
		gameID := s.createGame(2)
		req := testutil.NewJSONRequest(s.T(), http.MethodDelete, "/games/manage", map[string]any{
			"action": "delete", "gameID": gameID.String(),
		})
		rr := testutil.DoRequest(s.router, s.asMember(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "unauthorized")

		_, err := s.engine.Snapshot(context.Background(), gameID)
		s.NoError(err)
	})

	s.Run("organizer removes participant then deletes", func() {
		gameID := s.createGame(2)
		s.Require().NoError(s.engine.Register(context.Background(),
			id.Identity{UserID: s.member, Role: id.RoleMember}, gameID))

		req := testutil.NewJSONRequest(s.T(), http.MethodDelete, "/games/manage", map[string]any{
			"action": "remove-participant", "gameID": gameID.String(),
			"userID": s.organizer.String(), "participantID": s.member.String(),
		})
		rr := testutil.DoRequest(s.router, s.asOrganizer(req))
		testutil.AssertStatusOK(s.T(), rr)

		req = testutil.NewJSONRequest(s.T(), http.MethodDelete, "/games/manage", map[string]any{
			"action": "delete", "gameID": gameID.String(), "userID": s.organizer.String(),
		})
		rr = testutil.DoRequest(s.router, s.asOrganizer(req))
		testutil.AssertStatusOK(s.T(), rr)

		rr = testutil.DoRequest(s.router, s.asOrganizer(testutil.NewJSONRequest(s.T(), http.MethodDelete, "/games/manage", map[string]any{
			"action": "delete", "gameID": gameID.String(),
		})))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("remove participant needs a valid id", func() {
		gameID := s.createGame(2)
		req := testutil.NewJSONRequest(s.T(), http.MethodDelete, "/games/manage", map[string]any{
			"action": "remove-participant", "gameID": gameID.String(),
		})
		rr := testutil.DoRequest(s.router, s.asOrganizer(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_argument")
	})
}

// =============================================================================
// Helpers
// =============================================================================

func (s *HandlerSuite) TestParseDateTime() {
	cases := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2030-06-01T09:00", time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC), false},
		{"2030-06-01T09:00:00Z", time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC), false},
		{"2030-06-01T09:00:00-05:00", time.Date(2030, 6, 1, 14, 0, 0, 0, time.UTC), false},
		{"", time.Time{}, true},
		{"06/01/2030", time.Time{}, true},
	}
	for _, tc := range cases {
		got, err := parseDateTime(tc.in)
		if tc.wantErr {
			s.Error(err, tc.in)
			continue
		}
		s.Require().NoError(err, tc.in)
		s.True(tc.want.Equal(got), tc.in)
	}
}
