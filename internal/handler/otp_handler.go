package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"otp-gateway/internal/channel"
	"otp-gateway/internal/service"
	"otp-gateway/internal/util"

	"github.com/go-chi/chi/v5"
)

// OTPHandler handles HTTP requests for the OTP lifecycle.
type OTPHandler struct {
	otpService *service.OTPService
	registry   *channel.Registry
	logger     *zap.Logger
}

func NewOTPHandler(otpService *service.OTPService, registry *channel.Registry, logger *zap.Logger) *OTPHandler {
	return &OTPHandler{
		otpService: otpService,
		registry:   registry,
		logger:     logger,
	}
}

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{Success: true, Data: data, Message: message}
}

func errorResponse(err error, message string) Response {
	return Response{Success: false, Error: err.Error(), Message: message}
}

// RegisterRoutes registers all OTP routes.
func (h *OTPHandler) RegisterRoutes(router chi.Router) {
	router.Route("/otp", func(r chi.Router) {
		r.Post("/send", h.SendOTP)
		r.Post("/verify", h.VerifyOTP)
		r.Get("/{identifier}/ttl", h.GetOTPTTL)
	})

	router.Route("/channels", func(r chi.Router) {
		r.Get("/", h.ListChannels)
		r.Put("/active", h.SetActiveChannel)
	})
}

type sendOTPRequest struct {
	Channel    string `json:"channel"`
	Identifier string `json:"identifier"`
}

type verifyOTPRequest struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

type setActiveChannelRequest struct {
	Modality string `json:"modality"`
	Name     string `json:"name"`
}

// SendOTP issues a new code and dispatches it through the requested
// channel.
func (h *OTPHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req sendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	req.Channel = util.SanitizeInput(req.Channel)
	req.Identifier = util.SanitizeInput(req.Identifier)
	if req.Channel == "" || req.Identifier == "" {
		h.respondWithError(w, http.StatusBadRequest,
			errors.New("channel and identifier are required"), "Invalid request")
		return
	}

	result, err := h.otpService.Issue(ctx, req.Channel, req.Identifier)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to send code")
		return
	}

	if !result.Delivered {
		h.respondWithJSON(w, http.StatusBadGateway, Response{
			Success: false,
			Data:    result,
			Error:   result.Diagnostic,
			Message: "Code stored but delivery failed",
		})
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Code sent"))
	h.logger.Info("OTP sent via HTTP",
		util.String("identifier", util.MaskIdentifier(req.Identifier)),
		util.String("channel", result.Channel),
		util.Duration("duration", time.Since(startTime)),
	)
}

// VerifyOTP checks a submitted code against the stored record.
func (h *OTPHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	req.Identifier = util.SanitizeInput(req.Identifier)
	if req.Identifier == "" || req.Code == "" {
		h.respondWithError(w, http.StatusBadRequest,
			errors.New("identifier and code are required"), "Invalid request")
		return
	}

	result, err := h.otpService.Verify(ctx, req.Identifier, req.Code)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOTP) && result != nil {
			h.respondWithJSON(w, http.StatusUnauthorized, Response{
				Success: false,
				Data:    map[string]int{"attempts_remaining": result.Remaining},
				Error:   err.Error(),
				Message: "Invalid code",
			})
			return
		}
		h.respondWithError(w, h.getStatusCode(err), err, "Verification failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Code verified"))
	h.logger.Info("OTP verified via HTTP",
		util.String("identifier", util.MaskIdentifier(req.Identifier)),
	)
}

// GetOTPTTL reports the remaining lifetime of an identifier's live code.
func (h *OTPHandler) GetOTPTTL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identifier := util.SanitizeInput(chi.URLParam(r, "identifier"))
	if identifier == "" {
		h.respondWithError(w, http.StatusBadRequest,
			errors.New("identifier is required"), "Invalid request")
		return
	}

	ttl, err := h.otpService.CodeTTL(ctx, identifier)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to read code lifetime")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"expires_in_seconds": int(ttl.Seconds()),
	}, "Code lifetime"))
}

// ListChannels reports registered channels and active selections.
func (h *OTPHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	names, active := h.registry.Snapshot()
	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"channels": names,
		"active":   active,
	}, "Registered channels"))
}

// SetActiveChannel switches the provider for a modality at runtime.
func (h *OTPHandler) SetActiveChannel(w http.ResponseWriter, r *http.Request) {
	var req setActiveChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	modality := channel.Modality(util.SanitizeInput(req.Modality))
	if modality != channel.ModalitySMS && modality != channel.ModalityEmail {
		h.respondWithError(w, http.StatusBadRequest,
			errors.New("modality must be sms or email"), "Invalid request")
		return
	}

	if err := h.registry.SetActive(modality, req.Name); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to switch channel")
		return
	}

	h.logger.Info("Active channel switched",
		util.String("modality", string(modality)),
		util.String("channel", req.Name),
	)
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Active channel updated"))
}

// getStatusCode maps engine errors to HTTP status codes.
func (h *OTPHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrOTPNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrTooManyAttempts):
		return http.StatusGone
	case errors.Is(err, service.ErrInvalidOTP):
		return http.StatusUnauthorized
	case errors.Is(err, channel.ErrNotConfigured):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (h *OTPHandler) respondWithJSON(w http.ResponseWriter, status int, payload Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", util.ErrorField(err))
	}
}

func (h *OTPHandler) respondWithError(w http.ResponseWriter, status int, err error, message string) {
	h.respondWithJSON(w, status, errorResponse(err, message))
}
