// Package httpapi exposes the game manager over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/user/storyweave/internal/game"
	"github.com/user/storyweave/internal/interfaces"
	"github.com/user/storyweave/internal/storage"
	"github.com/user/storyweave/internal/types"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// Server holds the handlers of the HTTP surface
type Server struct {
	games  interfaces.GameManager
	events http.Handler
	logger *zap.Logger
}

// StorySummary describes a story in listings
type StorySummary struct {
	ID           string                 `json:"id"`
	Title        types.LocalizedText    `json:"title,omitempty"`
	Description  types.LocalizedText    `json:"description,omitempty"`
	RequiredTier types.SubscriptionTier `json:"required_tier"`
	Tags         []string               `json:"tags,omitempty"`
}

// PlayerView is the public part of a player. Progress, pending
// consequences and journeys stay server side.
type PlayerView struct {
	ID                    string                 `json:"id"`
	Name                  string                 `json:"name"`
	Attributes            map[string]int         `json:"attributes"`
	SubscriptionTier      types.SubscriptionTier `json:"subscription_tier"`
	SubscriptionExpiresAt *time.Time             `json:"subscription_expires_at,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
	LastActiveAt          time.Time              `json:"last_active_at"`
}

func newPlayerView(p *types.PlayerState) PlayerView {
	return PlayerView{
		ID:                    p.ID,
		Name:                  p.Name,
		Attributes:            p.Attributes,
		SubscriptionTier:      p.SubscriptionTier,
		SubscriptionExpiresAt: p.SubscriptionExpiresAt,
		CreatedAt:             p.CreatedAt,
		LastActiveAt:          p.LastActiveAt,
	}
}

// EndingView describes the ending a turn reached
type EndingView struct {
	ID          string               `json:"id"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
	Category    types.EndingCategory `json:"category"`
	Rarity      types.EndingRarity   `json:"rarity"`
}

// TurnSummary is what a player learns about an accepted choice
type TurnSummary struct {
	Number     int                     `json:"turn"`
	Terminal   bool                    `json:"terminal"`
	SkillCheck *types.SkillCheckResult `json:"skill_check,omitempty"`
	Ending     *EndingView             `json:"ending,omitempty"`
}

func newTurnSummary(t *types.Turn, lang string) *TurnSummary {
	if t == nil {
		return nil
	}
	out := &TurnSummary{Number: t.Number, Terminal: t.Terminal, SkillCheck: t.SkillCheck}
	if e := t.Ending; e != nil {
		out.Ending = &EndingView{
			ID:          e.ID,
			Title:       e.Title.Resolve(lang, "", nil),
			Description: e.Description.Resolve(lang, "", nil),
			Category:    e.Category,
			Rarity:      e.Rarity,
		}
	}
	return out
}

// ChoiceResponse is returned for every choice submission. A rejected choice
// comes back with Accepted false and the unchanged current beat.
type ChoiceResponse struct {
	Accepted bool            `json:"accepted"`
	Turn     *TurnSummary    `json:"turn,omitempty"`
	Beat     *types.BeatView `json:"beat"`
}

type createPlayerRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewRouter builds the chi router. events may be nil when no event stream is served.
func NewRouter(games interfaces.GameManager, events http.Handler, timeout time.Duration, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{games: games, events: events, logger: logger}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// The websocket stream outlives any request timeout
	if events != nil {
		router.Get("/events", s.events.ServeHTTP)
	}

	router.Group(func(r chi.Router) {
		if timeout > 0 {
			r.Use(middleware.Timeout(timeout))
		}

		r.Get("/health", s.handleHealth)
		r.Get("/stories", s.handleListStories)

		r.Post("/players", s.handleCreatePlayer)
		r.Route("/players/{playerID}", func(r chi.Router) {
			r.Get("/", s.handleGetPlayer)
			r.Delete("/", s.handleDeletePlayer)
			r.Post("/stories/{storyID}/start", s.handleStartStory)
			r.Get("/stories/{storyID}", s.handleCurrentBeat)
			r.Post("/stories/{storyID}/choices/{choiceID}", s.handleChoose)
			r.Get("/stories/{storyID}/endings", s.handleEndings)
		})
	})

	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

func (s *Server) handleListStories(w http.ResponseWriter, r *http.Request) {
	stories := s.games.ListStories()
	out := make([]StorySummary, 0, len(stories))
	tag := r.URL.Query().Get("tag")
	for _, st := range stories {
		if tag != "" && !st.HasTag(tag) {
			continue
		}
		out = append(out, StorySummary{
			ID:           st.ID,
			Title:        st.Title,
			Description:  st.Description,
			RequiredTier: st.RequiredTier,
			Tags:         st.Tags,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreatePlayer(w http.ResponseWriter, r *http.Request) {
	// Parse request
	var req createPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		http.Error(w, "Player id is required", http.StatusBadRequest)
		return
	}

	player, err := s.games.GetOrCreatePlayer(r.Context(), req.ID, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newPlayerView(player))
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	player, err := s.games.GetPlayer(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newPlayerView(player))
}

func (s *Server) handleDeletePlayer(w http.ResponseWriter, r *http.Request) {
	if err := s.games.DeletePlayer(r.Context(), chi.URLParam(r, "playerID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartStory(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	storyID := chi.URLParam(r, "storyID")

	if _, err := s.games.StartStory(r.Context(), playerID, storyID); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.games.CurrentBeat(r.Context(), playerID, storyID, requestLanguage(r), nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCurrentBeat(w http.ResponseWriter, r *http.Request) {
	view, err := s.games.CurrentBeat(r.Context(), chi.URLParam(r, "playerID"), chi.URLParam(r, "storyID"), requestLanguage(r), nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleChoose(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	storyID := chi.URLParam(r, "storyID")
	choiceID := chi.URLParam(r, "choiceID")
	lang := requestLanguage(r)

	turn, err := s.games.Choose(r.Context(), playerID, storyID, choiceID)
	accepted := err == nil
	if err != nil && !errors.Is(err, game.ErrInvalidChoice) {
		s.writeError(w, r, err)
		return
	}

	// Re-present the beat the player is on now
	view, err := s.games.CurrentBeat(r.Context(), playerID, storyID, lang, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !accepted {
		s.logger.Debug("Rejected choice",
			zap.String("player_id", playerID),
			zap.String("story_id", storyID),
			zap.String("choice_id", choiceID))
	}
	s.writeJSON(w, http.StatusOK, ChoiceResponse{Accepted: accepted, Turn: newTurnSummary(turn, lang), Beat: view})
}

func (s *Server) handleEndings(w http.ResponseWriter, r *http.Request) {
	report, err := s.games.Endings(r.Context(), chi.URLParam(r, "playerID"), chi.URLParam(r, "storyID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// writeError maps domain errors to status codes. Unexpected errors are
// logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, game.ErrStoryNotFound):
		http.Error(w, "Story not found", http.StatusNotFound)
	case errors.Is(err, game.ErrPlayerNotFound):
		http.Error(w, "Player not found", http.StatusNotFound)
	case errors.Is(err, game.ErrAccessDenied):
		http.Error(w, "Subscription required", http.StatusForbidden)
	case errors.Is(err, game.ErrInvalidChoice):
		http.Error(w, "Invalid choice", http.StatusConflict)
	case errors.Is(err, storage.ErrVersionConflict):
		http.Error(w, "Player changed concurrently, retry", http.StatusConflict)
	default:
		s.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// requestLanguage takes ?lang= first, then the preferred Accept-Language
// entry. An empty result lets the game manager apply its default.
func requestLanguage(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return lang
	}
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return ""
	}
	return tags[0].String()
}
