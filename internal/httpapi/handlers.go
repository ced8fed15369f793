package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/raidx/scorer/internal/hub"
	"github.com/raidx/scorer/internal/store"
	"github.com/raidx/scorer/internal/types"
	wire "github.com/raidx/scorer/pkg/types"
)

const (
	codeLength   = 8
	codeAttempts = 10
)

// SnapshotLoader is the read side of the snapshot store.
type SnapshotLoader interface {
	Load(ctx context.Context, matchID string) (store.Snapshot, error)
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	code := make([]byte, codeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// codeTaken reports whether matchID is live or has a stored snapshot.
func codeTaken(ctx context.Context, h *hub.Hub, st SnapshotLoader, matchID string) (bool, error) {
	if _, err := h.Get(ctx, matchID); err == nil {
		return true, nil
	} else if !errors.Is(err, hub.ErrSessionNotFound) {
		return false, err
	}
	_, err := st.Load(ctx, matchID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func CreateMatch(h *hub.Hub, st SnapshotLoader, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var matchID string
		for attempt := 0; matchID == ""; attempt++ {
			if attempt == codeAttempts {
				writeError(w, http.StatusServiceUnavailable, "could not allocate a match id")
				return
			}
			c, err := GenerateCode()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to generate match id")
				return
			}
			taken, err := codeTaken(r.Context(), h, st, c)
			if err != nil {
				log.Error("match id check failed", zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "storage unavailable")
				return
			}
			if taken {
				log.Debug("collision on match id, regenerating", zap.String("match_id", c))
				continue
			}
			matchID = c
		}

		if _, err := h.GetOrCreate(r.Context(), matchID); err != nil {
			log.Error("create session failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create match")
			return
		}

		writeJSON(w, http.StatusCreated, struct {
			MatchID string `json:"matchId"`
		}{MatchID: matchID})
	}
}

// GetMatch returns current stats, from the live session when there is one and from the
// snapshot store otherwise.
func GetMatch(h *hub.Hub, st SnapshotLoader, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := chi.URLParam(r, "matchID")

		sess, err := h.Get(r.Context(), matchID)
		if err == nil {
			v, err := sess.View(r.Context())
			if err == nil && v.Initialized {
				gs := types.ToGameStats(matchID, v.Version, v.State)
				if v.Ended && v.Result != nil {
					gs.MatchEnded = true
					gs.Result = types.ToResult(*v.Result)
				}
				writeJSON(w, http.StatusOK, gs)
				return
			}
		}

		snap, err := st.Load(r.Context(), matchID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, hub.ErrSessionNotFound.Error())
			return
		case err != nil:
			log.Error("load snapshot failed", zap.String("match_id", matchID), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}

		gs := types.ToGameStats(matchID, snap.Version, snap.State)
		if snap.Ended && snap.Result != nil {
			gs.MatchEnded = true
			gs.Result = types.ToResult(*snap.Result)
		}
		writeJSON(w, http.StatusOK, gs)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, wire.ServerMessage{Type: wire.MsgError, Error: msg})
}
