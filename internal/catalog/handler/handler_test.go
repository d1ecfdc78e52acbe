package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"dropin/internal/catalog/handler/mocks"
	catalog "dropin/internal/catalog/service"
	"dropin/internal/roster/models"
	id "dropin/pkg/domain"
	dErrors "dropin/pkg/domain-errors"
	"dropin/pkg/testutil"
)

type CatalogHandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
	viewer  id.UserID
}

func TestCatalogHandlerSuite(t *testing.T) {
	suite.Run(t, new(CatalogHandlerSuite))
}

func (s *CatalogHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
	s.viewer = id.NewUserID()
}

func (s *CatalogHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *CatalogHandlerSuite) view(members ...id.UserID) *models.GameView {
	game, err := models.NewGame(id.NewGameID(), "Ultimate", time.Date(2030, 5, 1, 17, 0, 0, 0, time.UTC), 10, id.NewUserID(), time.Now())
	s.Require().NoError(err)
	return models.NewGameView(*game, members)
}

func (s *CatalogHandlerSuite) TestListGames() {
	s.Run("member listing", func() {
		view := s.view(s.viewer)
		s.service.EXPECT().
			ListGames(gomock.Any(), id.Identity{UserID: s.viewer, Role: id.RoleMember}, false).
			Return(&catalog.Listing{
				Games:         []*models.GameView{view.Redacted()},
				Registrations: []id.GameID{view.ID},
			}, nil)

		req := testutil.NewRequest(s.T(), http.MethodGet, "/games?userID="+s.viewer.String())
		rr := testutil.DoRequest(s.router, testutil.AsMember(req, s.viewer))

		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[listGamesResponse](s.T(), rr)
		s.Require().Len(resp.Games, 1)
		s.Equal(view.ID.String(), resp.Games[0].GameID)
		s.Equal(1, resp.Games[0].CurrentSpots)
		s.Equal(10, resp.Games[0].MaxSpots)
		s.Nil(resp.Games[0].Members)
		s.Equal([]string{view.ID.String()}, resp.UserRegistrations)
	})

	s.Run("empty catalog renders empty arrays", func() {
		s.service.EXPECT().ListGames(gomock.Any(), gomock.Any(), false).
			Return(&catalog.Listing{}, nil)

		req := testutil.NewRequest(s.T(), http.MethodGet, "/games")
		rr := testutil.DoRequest(s.router, testutil.AsMember(req, s.viewer))

		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq(`{"games":[],"userRegistrations":[]}`, rr.Body.String())
	})

	s.Run("organizer asks for members", func() {
		member := id.NewUserID()
		s.service.EXPECT().ListGames(gomock.Any(), gomock.Any(), true).
			Return(&catalog.Listing{Games: []*models.GameView{s.view(member)}}, nil)

		req := testutil.NewRequest(s.T(), http.MethodGet, "/games?members=true")
		rr := testutil.DoRequest(s.router, testutil.AsOrganizer(req, s.viewer))

		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[listGamesResponse](s.T(), rr)
		s.Equal([]string{member.String()}, resp.Games[0].Members)
	})

	s.Run("service refusal maps to 403", func() {
		s.service.EXPECT().ListGames(gomock.Any(), gomock.Any(), true).
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "only organizers can see members"))

		req := testutil.NewRequest(s.T(), http.MethodGet, "/games?members=true")
		rr := testutil.DoRequest(s.router, testutil.AsMember(req, s.viewer))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "unauthorized")
	})

	s.Run("userID for someone else is refused", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/games?userID="+id.NewUserID().String())
		rr := testutil.DoRequest(s.router, testutil.AsMember(req, s.viewer))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "unauthorized")
	})

	s.Run("bad members flag", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/games?members=maybe")
		rr := testutil.DoRequest(s.router, testutil.AsMember(req, s.viewer))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_argument")
	})

	s.Run("store outage", func() {
		s.service.EXPECT().ListGames(gomock.Any(), gomock.Any(), false).
			Return(nil, dErrors.New(dErrors.CodeUnavailable, "catalog read failed"))

		req := testutil.NewRequest(s.T(), http.MethodGet, "/games")
		rr := testutil.DoRequest(s.router, testutil.AsMember(req, s.viewer))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusServiceUnavailable, "unavailable")
	})

	s.Run("anonymous", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/games"))
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})
}

func (s *CatalogHandlerSuite) TestGetGame() {
	s.Run("registered flag", func() {
		view := s.view(s.viewer)
		s.service.EXPECT().GetGame(gomock.Any(), gomock.Any(), view.ID).
			Return(view.Redacted(), true, nil)

		req := testutil.NewRequest(s.T(), http.MethodGet, "/games/"+view.ID.String())
		rr := testutil.DoRequest(s.router, testutil.AsMember(req, s.viewer))

		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[gameResponse](s.T(), rr)
		s.True(resp.Registered)
		s.Equal("Ultimate", resp.GameName)
		s.Nil(resp.Members)
	})

	s.Run("missing game", func() {
		gameID := id.NewGameID()
		s.service.EXPECT().GetGame(gomock.Any(), gomock.Any(), gameID).
			Return(nil, false, dErrors.New(dErrors.CodeNotFound, "game not found"))

		req := testutil.NewRequest(s.T(), http.MethodGet, "/games/"+gameID.String())
		rr := testutil.DoRequest(s.router, testutil.AsMember(req, s.viewer))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("malformed id", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/games/not-a-uuid")
		rr := testutil.DoRequest(s.router, testutil.AsMember(req, s.viewer))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_argument")
	})
}
