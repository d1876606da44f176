package handlers

import (
	"net/http"
	"time"

	"github.com/flowsyai/backend/internal/services"
	"go.uber.org/zap"
)

type VoucherHandler struct {
	vouchers  *services.VoucherService
	validator *services.ValidationHelper
	log       *zap.Logger
}

func NewVoucherHandler(vouchers *services.VoucherService, log *zap.Logger) *VoucherHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &VoucherHandler{
		vouchers:  vouchers,
		validator: services.NewValidationHelper(),
		log:       log.Named("vouchers"),
	}
}

type issueVoucherRequest struct {
	Amount     int64 `json:"amount" validate:"required,gt=0,lte=1000000"`
	TTLSeconds int64 `json:"ttl_seconds" validate:"omitempty,gte=60,lte=2592000"`
}

// IssueVoucher creates a bonus token voucher with a QR code
// @Summary Issue voucher
// @Description Admin only. The code is shown once; only its keyed hash is stored.
// @Tags Vouchers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body handlers.issueVoucherRequest true "Voucher request"
// @Success 201 {object} services.Voucher
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /vouchers [post]
func (h *VoucherHandler) IssueVoucher(w http.ResponseWriter, r *http.Request) {
	issuerID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req issueVoucherRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	voucher, err := h.vouchers.Issue(r.Context(), issuerID, req.Amount, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		sendServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, voucher)
}

type redeemVoucherRequest struct {
	Code string `json:"code" validate:"required,min=20,max=40"`
}

// RedeemVoucher credits a voucher to the caller
// @Summary Redeem voucher
// @Tags Vouchers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body handlers.redeemVoucherRequest true "Voucher code"
// @Success 200 {object} models.TokenBalance
// @Failure 400 {object} services.ErrorResponse
// @Router /vouchers/redeem [post]
func (h *VoucherHandler) RedeemVoucher(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req redeemVoucherRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	balance, err := h.vouchers.Redeem(r.Context(), userID, req.Code)
	if err != nil {
		sendServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}
