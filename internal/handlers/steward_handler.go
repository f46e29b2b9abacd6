package handlers

import (
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/stwalsh4118/daysteward/internal/errors"
	"github.com/stwalsh4118/daysteward/internal/middleware"
	"github.com/stwalsh4118/daysteward/internal/money"
	"github.com/stwalsh4118/daysteward/internal/services"
)

// StewardHandler serves the parcel, account and admin endpoints.
type StewardHandler struct {
	service services.StewardService
}

// NewStewardHandler creates a new StewardHandler instance.
func NewStewardHandler(service services.StewardService) *StewardHandler {
	return &StewardHandler{
		service: service,
	}
}

// Routes registers the steward endpoints on v1. Endpoints that act on
// behalf of the caller require the account header.
func (h *StewardHandler) Routes(v1 *gin.RouterGroup) {
	auth := middleware.RequireAccount()

	days := v1.Group("/days/:month/:day", auth)
	{
		days.POST("/buy", h.BuyOrMint)
		days.POST("/legacy-claim", h.ClaimLegacy)
	}

	parcels := v1.Group("/parcels/:id")
	{
		parcels.GET("", h.GetParcel)
		parcels.PUT("", auth, h.UpdateParcel)
		parcels.POST("/collect", h.Collect)
		parcels.GET("/foreclosed", h.Foreclosed)
	}

	accounts := v1.Group("/accounts")
	{
		accounts.POST("/withdraw", auth, h.Withdraw)
		accounts.GET("/:address/deposit", h.GetDeposit)
		accounts.POST("/:address/deposit", auth, h.Deposit)
		accounts.GET("/:address/withdrawable", h.Withdrawable)
	}

	v1.POST("/beneficiary/withdraw", auth, h.WithdrawBeneficiary)

	admin := v1.Group("/admin", auth)
	{
		admin.PUT("/beneficiary", h.SetBeneficiary)
		admin.PUT("/legacy-token", h.SetLegacyToken)
		admin.POST("/proceeds/withdraw", h.WithdrawProceeds)
	}
}

// DayURI is a (month, day) path key. Day ranges are checked by the steward.
type DayURI struct {
	Month int `uri:"month" binding:"required,min=1,max=12"`
	Day   int `uri:"day" binding:"required,min=1,max=31"`
}

// ParcelURI is a parcel id path key.
type ParcelURI struct {
	ID int `uri:"id" binding:"required"`
}

// AddressURI is an account path key.
type AddressURI struct {
	Address string `uri:"address" binding:"required,eth_addr"`
}

// BuyRequest is the body of a buy-or-mint or legacy claim. Amounts are
// decimal ether strings.
type BuyRequest struct {
	Recipient string `json:"recipient" binding:"omitempty,eth_addr"`
	Price     string `json:"price" binding:"required"`
	Deposit   string `json:"deposit" binding:"required"`
	Payment   string `json:"payment" binding:"required"`
	Name      string `json:"name" binding:"max=128"`
}

// UpdateParcelRequest changes a parcel's name and price.
type UpdateParcelRequest struct {
	Name  string `json:"name" binding:"max=128"`
	Price string `json:"price" binding:"required"`
	Month int    `json:"month" binding:"required,min=1,max=12"`
	Day   int    `json:"day" binding:"required,min=1,max=31"`
}

// AmountRequest carries a single ether amount.
type AmountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// PayoutRequest names the recipient of a withdrawal.
type PayoutRequest struct {
	To string `json:"to" binding:"required,eth_addr"`
}

// BeneficiaryRequest sets the beneficiary.
type BeneficiaryRequest struct {
	Beneficiary string `json:"beneficiary" binding:"required,eth_addr"`
}

// LegacyTokenRequest sets the legacy registry. An empty source disables
// legacy claims.
type LegacyTokenRequest struct {
	Source string `json:"source"`
}

// parseAmounts converts named ether strings, writing a 400 and returning
// false on the first invalid one.
func parseAmounts(c *gin.Context, fields map[string]string) (map[string]*big.Int, bool) {
	out := make(map[string]*big.Int, len(fields))
	for name, raw := range fields {
		v, err := money.ParseEther(raw)
		if err != nil {
			apierrors.Respond(c, http.StatusBadRequest, apierrors.ErrInvalidAmount, "Invalid ether amount", map[string]interface{}{
				"field": name,
				"value": raw,
			})
			return nil, false
		}
		out[name] = v
	}
	return out, true
}

// BuyOrMint handles POST /api/v1/days/:month/:day/buy.
func (h *StewardHandler) BuyOrMint(c *gin.Context) {
	var uri DayURI
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err, "Invalid day")
		return
	}
	var req BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}
	amounts, ok := parseAmounts(c, map[string]string{
		"price":   req.Price,
		"deposit": req.Deposit,
		"payment": req.Payment,
	})
	if !ok {
		return
	}

	view, err := h.service.BuyOrMint(c.Request.Context(), services.BuyRequest{
		Caller:    middleware.GetAccount(c),
		Recipient: req.Recipient,
		Month:     uri.Month,
		Day:       uri.Day,
		Price:     amounts["price"],
		Deposit:   amounts["deposit"],
		Payment:   amounts["payment"],
		Name:      req.Name,
	})
	if err != nil {
		serviceError(c, err, "Failed to buy day")
		return
	}

	c.JSON(http.StatusOK, ParcelResponse{Parcel: mapParcelViewToDTO(view)})
}

// ClaimLegacy handles POST /api/v1/days/:month/:day/legacy-claim.
func (h *StewardHandler) ClaimLegacy(c *gin.Context) {
	var uri DayURI
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err, "Invalid day")
		return
	}
	var req BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}
	amounts, ok := parseAmounts(c, map[string]string{
		"price":   req.Price,
		"deposit": req.Deposit,
		"payment": req.Payment,
	})
	if !ok {
		return
	}

	view, err := h.service.ClaimLegacy(c.Request.Context(), services.LegacyClaimRequest{
		Caller:  middleware.GetAccount(c),
		Month:   uri.Month,
		Day:     uri.Day,
		Price:   amounts["price"],
		Deposit: amounts["deposit"],
		Payment: amounts["payment"],
		Name:    req.Name,
	})
	if err != nil {
		serviceError(c, err, "Failed to claim legacy day")
		return
	}

	c.JSON(http.StatusOK, ParcelResponse{Parcel: mapParcelViewToDTO(view)})
}

// GetParcel handles GET /api/v1/parcels/:id.
func (h *StewardHandler) GetParcel(c *gin.Context) {
	var uri ParcelURI
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err, "Invalid parcel id")
		return
	}

	view, err := h.service.Parcel(c.Request.Context(), uri.ID)
	if err != nil {
		serviceError(c, err, "Failed to load parcel")
		return
	}

	c.JSON(http.StatusOK, ParcelResponse{Parcel: mapParcelViewToDTO(view)})
}

// UpdateParcel handles PUT /api/v1/parcels/:id.
func (h *StewardHandler) UpdateParcel(c *gin.Context) {
	var uri ParcelURI
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err, "Invalid parcel id")
		return
	}
	var req UpdateParcelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}
	amounts, ok := parseAmounts(c, map[string]string{"price": req.Price})
	if !ok {
		return
	}

	view, err := h.service.ChangeDayNamePrice(c.Request.Context(), middleware.GetAccount(c),
		uri.ID, req.Month, req.Day, req.Name, amounts["price"])
	if err != nil {
		serviceError(c, err, "Failed to update parcel")
		return
	}

	c.JSON(http.StatusOK, ParcelResponse{Parcel: mapParcelViewToDTO(view)})
}

// Collect handles POST /api/v1/parcels/:id/collect. Anyone may trigger a
// collection.
func (h *StewardHandler) Collect(c *gin.Context) {
	var uri ParcelURI
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err, "Invalid parcel id")
		return
	}

	collected, view, err := h.service.CollectPatronage(c.Request.Context(), uri.ID)
	if err != nil {
		serviceError(c, err, "Failed to collect patronage")
		return
	}

	c.JSON(http.StatusOK, CollectResponse{
		Parcel:    mapParcelViewToDTO(view),
		Collected: newAmount(collected),
	})
}

// Foreclosed handles GET /api/v1/parcels/:id/foreclosed.
func (h *StewardHandler) Foreclosed(c *gin.Context) {
	var uri ParcelURI
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err, "Invalid parcel id")
		return
	}

	foreclosed, err := h.service.Foreclosed(c.Request.Context(), uri.ID)
	if err != nil {
		serviceError(c, err, "Failed to load parcel")
		return
	}

	c.JSON(http.StatusOK, ForeclosedResponse{ID: uri.ID, Foreclosed: foreclosed})
}

// GetDeposit handles GET /api/v1/accounts/:address/deposit.
func (h *StewardHandler) GetDeposit(c *gin.Context) {
	var uri AddressURI
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err, "Invalid address")
		return
	}

	deposit, err := h.service.GetDeposit(c.Request.Context(), uri.Address)
	if err != nil {
		serviceError(c, err, "Failed to load deposit")
		return
	}

	c.JSON(http.StatusOK, BalanceResponse{Address: normalize(uri.Address), Amount: newAmount(deposit)})
}

// Deposit handles POST /api/v1/accounts/:address/deposit. Anyone may top up
// any account.
func (h *StewardHandler) Deposit(c *gin.Context) {
	var uri AddressURI
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err, "Invalid address")
		return
	}
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}
	amounts, ok := parseAmounts(c, map[string]string{"amount": req.Amount})
	if !ok {
		return
	}

	balance, err := h.service.DepositWeiPatron(c.Request.Context(), uri.Address, amounts["amount"])
	if err != nil {
		serviceError(c, err, "Failed to deposit")
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Info("Deposit received", map[string]interface{}{
			"owner":  normalize(uri.Address),
			"amount": req.Amount,
		})
	}

	c.JSON(http.StatusOK, BalanceResponse{Address: normalize(uri.Address), Amount: newAmount(balance)})
}

// Withdrawable handles GET /api/v1/accounts/:address/withdrawable.
func (h *StewardHandler) Withdrawable(c *gin.Context) {
	var uri AddressURI
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err, "Invalid address")
		return
	}

	amount, err := h.service.DepositAbleToWithdraw(c.Request.Context(), uri.Address)
	if err != nil {
		serviceError(c, err, "Failed to compute withdrawable deposit")
		return
	}

	c.JSON(http.StatusOK, BalanceResponse{Address: normalize(uri.Address), Amount: newAmount(amount)})
}

// Withdraw handles POST /api/v1/accounts/withdraw for the caller's deposit.
func (h *StewardHandler) Withdraw(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}
	amounts, ok := parseAmounts(c, map[string]string{"amount": req.Amount})
	if !ok {
		return
	}

	caller := middleware.GetAccount(c)
	remaining, err := h.service.WithdrawDeposit(c.Request.Context(), caller, amounts["amount"])
	if err != nil {
		serviceError(c, err, "Failed to withdraw deposit")
		return
	}

	left := newAmount(remaining)
	c.JSON(http.StatusOK, PayoutResponse{To: caller, Amount: newAmount(amounts["amount"]), Remaining: &left})
}

// WithdrawBeneficiary handles POST /api/v1/beneficiary/withdraw.
func (h *StewardHandler) WithdrawBeneficiary(c *gin.Context) {
	var req PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}

	paid, err := h.service.WithdrawBenefactorFundsTo(c.Request.Context(), middleware.GetAccount(c), req.To)
	if err != nil {
		serviceError(c, err, "Failed to withdraw beneficiary funds")
		return
	}

	c.JSON(http.StatusOK, PayoutResponse{To: normalize(req.To), Amount: newAmount(paid)})
}

// SetBeneficiary handles PUT /api/v1/admin/beneficiary.
func (h *StewardHandler) SetBeneficiary(c *gin.Context) {
	var req BeneficiaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}

	if err := h.service.SetBenefactor(c.Request.Context(), middleware.GetAccount(c), req.Beneficiary); err != nil {
		serviceError(c, err, "Failed to set beneficiary")
		return
	}

	c.JSON(http.StatusOK, gin.H{"beneficiary": normalize(req.Beneficiary)})
}

// SetLegacyToken handles PUT /api/v1/admin/legacy-token.
func (h *StewardHandler) SetLegacyToken(c *gin.Context) {
	var req LegacyTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}

	if err := h.service.SetLegacyToken(c.Request.Context(), middleware.GetAccount(c), req.Source); err != nil {
		serviceError(c, err, "Failed to set legacy token")
		return
	}

	c.JSON(http.StatusOK, gin.H{"source": req.Source})
}

// WithdrawProceeds handles POST /api/v1/admin/proceeds/withdraw.
func (h *StewardHandler) WithdrawProceeds(c *gin.Context) {
	var req PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}

	paid, err := h.service.WithdrawProceedsTo(c.Request.Context(), middleware.GetAccount(c), req.To)
	if err != nil {
		serviceError(c, err, "Failed to withdraw proceeds")
		return
	}

	c.JSON(http.StatusOK, PayoutResponse{To: normalize(req.To), Amount: newAmount(paid)})
}
