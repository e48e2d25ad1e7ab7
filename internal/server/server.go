// Package server exposes the game engine over a JSON HTTP API and a
// websocket watch stream.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/grimoire-games/clocktower-server/internal/game"
	"github.com/grimoire-games/clocktower-server/internal/role"
)

// Server routes HTTP requests to engine commands.
type Server struct {
	engine *game.Engine
	hub    *Hub
	logger *zap.Logger
	mux    *http.ServeMux
}

// New builds the HTTP server and registers the hub as the engine's
// notification handler so watch streams see every appended action.
func New(engine *game.Engine, logger *zap.Logger) *Server {
	s := &Server{
		engine: engine,
		hub:    NewHub(logger),
		logger: logger,
		mux:    http.NewServeMux(),
	}
	engine.SetNotificationHandler(s.hub.Notify)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/games", s.handleCreateGame)
	s.mux.HandleFunc("GET /api/games", s.handleListGames)
	s.mux.HandleFunc("GET /api/games/{id}", s.handleGameState)
	s.mux.HandleFunc("GET /api/games/{id}/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/games/{id}/players/{pid}/info", s.handlePlayerInfo)
	s.mux.HandleFunc("GET /api/games/{id}/watch", s.handleWatch)

	s.mux.HandleFunc("POST /api/games/{id}/players", s.handleAddPlayer)
	s.mux.HandleFunc("POST /api/games/{id}/assign-roles", s.handleAssignRoles)
	s.mux.HandleFunc("POST /api/games/{id}/start", s.handleStartGame)
	s.mux.HandleFunc("POST /api/games/{id}/open-day", s.handleOpenDay)
	s.mux.HandleFunc("POST /api/games/{id}/open-night", s.handleOpenNight)
	s.mux.HandleFunc("POST /api/games/{id}/nominate", s.handleNominate)
	s.mux.HandleFunc("POST /api/games/{id}/vote", s.handleVote)
	s.mux.HandleFunc("POST /api/games/{id}/close-nomination", s.handleCloseNomination)
	s.mux.HandleFunc("POST /api/games/{id}/execute", s.handleExecute)
	s.mux.HandleFunc("POST /api/games/{id}/night-action", s.handleNightAction)
	s.mux.HandleFunc("POST /api/games/{id}/slayer-shot", s.handleSlayerShot)
	s.mux.HandleFunc("POST /api/games/{id}/virgin-trigger", s.handleVirginTrigger)
}

// Handler returns the root handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	g, err := s.engine.CreateGame(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.engine.ListGames(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if games == nil {
		games = []*game.Game{}
	}
	s.writeJSON(w, http.StatusOK, games)
}

func (s *Server) handleGameState(w http.ResponseWriter, r *http.Request) {
	g, err := s.engine.GameState(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.engine.History(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if history == nil {
		history = []game.ActionRecord{}
	}
	s.writeJSON(w, http.StatusOK, history)
}

func (s *Server) handlePlayerInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.PlayerInfoFor(r.Context(), r.PathValue("id"), r.PathValue("pid"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if info == nil {
		info = []*game.PlayerInfo{}
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	if _, err := s.engine.GameState(r.Context(), gameID); err != nil {
		s.writeError(w, err)
		return
	}
	s.hub.ServeWatch(w, r, gameID)
}

func (s *Server) handleAddPlayer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		s.writeErrorMessage(w, http.StatusBadRequest, "name is required")
		return
	}
	g, err := s.engine.AddPlayer(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleAssignRoles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Assignments map[string]role.Role `json:"assignments"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Assignments) == 0 {
		s.writeErrorMessage(w, http.StatusBadRequest, "assignments are required")
		return
	}
	g, err := s.engine.AssignRoles(r.Context(), r.PathValue("id"), req.Assignments)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func() (*game.Game, error) {
		return s.engine.StartGame(r.Context(), r.PathValue("id"))
	})
}

func (s *Server) handleOpenDay(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func() (*game.Game, error) {
		return s.engine.OpenDay(r.Context(), r.PathValue("id"))
	})
}

func (s *Server) handleOpenNight(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func() (*game.Game, error) {
		return s.engine.OpenNight(r.Context(), r.PathValue("id"))
	})
}

func (s *Server) handleNominate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NominatorID string `json:"nominator_id"`
		NomineeID   string `json:"nominee_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.command(w, r, func() (*game.Game, error) {
		return s.engine.Nominate(r.Context(), r.PathValue("id"), req.NominatorID, req.NomineeID)
	})
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VoterID string `json:"voter_id"`
		Vote    bool   `json:"vote"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.command(w, r, func() (*game.Game, error) {
		return s.engine.Vote(r.Context(), r.PathValue("id"), req.VoterID, req.Vote)
	})
}

func (s *Server) handleCloseNomination(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func() (*game.Game, error) {
		return s.engine.CloseNomination(r.Context(), r.PathValue("id"))
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"player_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.command(w, r, func() (*game.Game, error) {
		return s.engine.ExecutePlayer(r.Context(), r.PathValue("id"), req.PlayerID)
	})
}

func (s *Server) handleNightAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string    `json:"player_id"`
		Role     role.Role `json:"role"`
		Targets  []string  `json:"targets"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.command(w, r, func() (*game.Game, error) {
		return s.engine.PerformNightAction(r.Context(), r.PathValue("id"), req.PlayerID, req.Role, req.Targets)
	})
}

func (s *Server) handleSlayerShot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"player_id"`
		TargetID string `json:"target_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.command(w, r, func() (*game.Game, error) {
		return s.engine.SlayerShot(r.Context(), r.PathValue("id"), req.PlayerID, req.TargetID)
	})
}

func (s *Server) handleVirginTrigger(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VirginID    string `json:"virgin_id"`
		NominatorID string `json:"nominator_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.command(w, r, func() (*game.Game, error) {
		return s.engine.VirginTrigger(r.Context(), r.PathValue("id"), req.VirginID, req.NominatorID)
	})
}

// command runs an engine command and writes the resulting snapshot.
func (s *Server) command(w http.ResponseWriter, _ *http.Request, fn func() (*game.Game, error)) {
	g, err := fn()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", zap.Error(err))
	}
}

func (s *Server) writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps engine errors onto HTTP status codes. Unknown errors are
// treated as storage failures.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrGameNotFound), errors.Is(err, game.ErrPlayerNotFound):
		s.writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrGameEnded), errors.Is(err, game.ErrInvalidPhase):
		s.writeErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInvalidActor), errors.Is(err, game.ErrIllegalTarget):
		s.writeErrorMessage(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("internal error", zap.Error(err))
		s.writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}
