package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/GiorgiUbiria/rewards_settlement/configs"
	"github.com/GiorgiUbiria/rewards_settlement/internal/httputil"
	"github.com/GiorgiUbiria/rewards_settlement/internal/ledger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/logger"
	"github.com/GiorgiUbiria/rewards_settlement/internal/models"
	"github.com/GiorgiUbiria/rewards_settlement/internal/reconcile"
	"github.com/GiorgiUbiria/rewards_settlement/internal/settlement"
	"github.com/GiorgiUbiria/rewards_settlement/internal/withdrawal"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Handler struct {
	DB          *gorm.DB
	Ledger      *ledger.Service
	Platform    *ledger.Platform
	Settlements *settlement.Engine
	Withdrawals *withdrawal.Service
	Reconciler  *reconcile.Reconciler
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	if req.Username == "" || req.Password == "" {
		httputil.WriteError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	var op models.Operator
	if err := h.DB.WithContext(r.Context()).Where("username = ?", req.Username).First(&op).Error; err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.Password), []byte(req.Password)); err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	ttl := time.Duration(configs.AppConfig.JWT.TTL) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	claims := jwt.MapClaims{
		"sub": op.Username,
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(configs.AppConfig.JWT.SECRET))
	if err != nil {
		logger.Log.Error("failed to sign jwt", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, LoginResponse{Token: signed})
}
