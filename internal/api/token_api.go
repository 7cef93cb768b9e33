package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-apns-service/pkg/dispatch"
)

// TokenAPI exposes the invalid token registry to operators.
type TokenAPI struct {
	Store  dispatch.InvalidTokenStore
	Logger *slog.Logger
}

func NewTokenAPI(store dispatch.InvalidTokenStore, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Store:  store,
		Logger: logger,
	}
}

type invalidTokenList struct {
	Tokens []dispatch.InvalidToken `json:"tokens"`
}

func (api *TokenAPI) ListInvalid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := middleware.GetUserHandleFromContext(ctx); !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tokens, err := api.Store.List(ctx)
	if err != nil {
		api.Logger.Error("ListInvalid: storage failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(invalidTokenList{Tokens: tokens}); err != nil {
		api.Logger.Error("ListInvalid: failed to write response", "err", err)
	}
}

// ClearInvalid reinstates a token, e.g. after the app was reinstalled and
// re-registered the same token.
func (api *TokenAPI) ClearInvalid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	token := r.PathValue("token")
	if token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	if err := api.Store.Clear(ctx, token); err != nil {
		api.Logger.Error("ClearInvalid: storage failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("ClearInvalid: token reinstated", "user", userID)

	w.WriteHeader(http.StatusNoContent)
}
