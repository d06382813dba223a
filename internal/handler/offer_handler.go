package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "github.com/aditya/haggle/internal/errors"
	"github.com/aditya/haggle/internal/middleware"
	"github.com/aditya/haggle/internal/models"
	"github.com/aditya/haggle/internal/service"
	"github.com/aditya/haggle/pkg/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

type OfferHandler struct {
	offerService service.OfferService
	validate     *validator.Validate
}

func NewOfferHandler(offerService service.OfferService) *OfferHandler {
	return &OfferHandler{
		offerService: offerService,
		validate:     validator.New(),
	}
}

func (h *OfferHandler) RegisterRoutes(r chi.Router) {
	r.Post("/offers", h.CreateOffer)
	r.Get("/offers", h.ListOffers)
	r.Get("/offers/{id}", h.GetOffer)
	r.Get("/offers/{id}/history", h.GetOfferHistory)
	r.Put("/offers/{id}/respond", h.RespondToOffer)
}

// POST /v1/offers
func (h *OfferHandler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		utils.Error(w, apperrors.Unauthenticated("missing caller"))
		return
	}

	var req models.CreateOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		utils.BadRequest(w, err.Error())
		return
	}

	offer, err := h.offerService.CreateOffer(r.Context(), userID, &req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	utils.Created(w, offer.ToResponse())
}

// PUT /v1/offers/{id}/respond
func (h *OfferHandler) RespondToOffer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		utils.Error(w, apperrors.Unauthenticated("missing caller"))
		return
	}

	id := chi.URLParam(r, "id")
	if !utils.IsValidID(id) {
		utils.NotFound(w, "offer")
		return
	}

	var req models.RespondOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		utils.BadRequest(w, err.Error())
		return
	}

	offer, err := h.offerService.Respond(r.Context(), id, userID, &req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	utils.Success(w, http.StatusOK, offer.ToResponse())
}

// GET /v1/offers?role=buyer|seller&status=&limit=&offset=
func (h *OfferHandler) ListOffers(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		utils.Error(w, apperrors.Unauthenticated("missing caller"))
		return
	}

	query := r.URL.Query()
	role := models.Role(query.Get("role"))
	filter := models.ListOffersFilter{Status: models.OfferStatus(query.Get("status"))}
	var err error
	if filter.Limit, err = intParam(query.Get("limit")); err != nil {
		utils.BadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(query.Get("offset")); err != nil {
		utils.BadRequest(w, "offset must be an integer")
		return
	}

	offers, err := h.offerService.ListOffers(r.Context(), userID, role, filter)
	if err != nil {
		handleError(w, r, err)
		return
	}

	data := make([]*models.OfferResponse, 0, len(offers))
	for _, offer := range offers {
		data = append(data, offer.ToResponse())
	}

	utils.Success(w, http.StatusOK, utils.ListResponse{
		Data:   data,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// GET /v1/offers/{id}
func (h *OfferHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		utils.Error(w, apperrors.Unauthenticated("missing caller"))
		return
	}

	id := chi.URLParam(r, "id")
	if !utils.IsValidID(id) {
		utils.NotFound(w, "offer")
		return
	}

	offer, err := h.offerService.GetOffer(r.Context(), id, userID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	utils.Success(w, http.StatusOK, offer.ToResponse())
}

// GET /v1/offers/{id}/history
func (h *OfferHandler) GetOfferHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		utils.Error(w, apperrors.Unauthenticated("missing caller"))
		return
	}

	id := chi.URLParam(r, "id")
	if !utils.IsValidID(id) {
		utils.NotFound(w, "offer")
		return
	}

	events, err := h.offerService.GetOfferHistory(r.Context(), id, userID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	utils.Success(w, http.StatusOK, map[string]interface{}{"events": events})
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apperrors.FromError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError && apiErr.StatusCode != http.StatusServiceUnavailable {
		log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	utils.Error(w, apiErr)
}
