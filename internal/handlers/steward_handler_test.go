package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "github.com/stwalsh4118/daysteward/internal/errors"
	"github.com/stwalsh4118/daysteward/internal/legacy"
	"github.com/stwalsh4118/daysteward/internal/logger"
	"github.com/stwalsh4118/daysteward/internal/middleware"
	"github.com/stwalsh4118/daysteward/internal/models"
	"github.com/stwalsh4118/daysteward/internal/money"
	"github.com/stwalsh4118/daysteward/internal/repository"
	"github.com/stwalsh4118/daysteward/internal/services"
)

const (
	adminAccount = "0x00000000000000000000000000000000000000a1"
	alice        = "0x00000000000000000000000000000000000000b1"
	bob          = "0x00000000000000000000000000000000000000b2"
	zeroAddress  = "0x0000000000000000000000000000000000000000"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRouter(service services.StewardService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Nop()))
	router.Use(middleware.Account())
	NewStewardHandler(service).Routes(router.Group("/api/v1"))
	return router
}

func setupSteward(t *testing.T) (*gin.Engine, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	legacyDays := legacy.StaticToken{102: alice}
	steward := services.NewSteward(repository.NewMemoryStore(), logger.Nop(),
		services.WithClock(clock),
		services.WithLegacyResolver(func(source string) (legacy.Token, error) {
			if source == "static" {
				return legacyDays, nil
			}
			return legacy.Resolve(source)
		}),
	)
	_, err := steward.Bootstrap(context.Background(), &models.Settings{
		Admin:          adminAccount,
		Beneficiary:    adminAccount,
		LegacyToken:    "static",
		TaxNumerator:   1,
		TaxDenominator: 100,
		MintPrice:      money.Ether(1),
		MinDeposit:     money.MustParseEther("0.01"),
	})
	require.NoError(t, err)
	return newRouter(steward), clock
}

func do(t *testing.T, router *gin.Engine, method, path, account string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if account != "" {
		req.Header.Set(middleware.AccountHeader, account)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeParcel(t *testing.T, w *httptest.ResponseRecorder) *ParcelData {
	t.Helper()
	var response ParcelResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.NotNil(t, response.Parcel)
	return response.Parcel
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apierrors.ErrorDetail {
	t.Helper()
	var response apierrors.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response.Error
}

func buyBody(price, deposit, payment string) BuyRequest {
	return BuyRequest{Price: price, Deposit: deposit, Payment: payment, Name: "New Year"}
}

func TestBuyOrMint_Mint(t *testing.T) {
	router, _ := setupSteward(t)

	w := do(t, router, http.MethodPost, "/api/v1/days/1/1/buy", alice, buyBody("2", "1", "2"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	parcel := decodeParcel(t, w)
	assert.Equal(t, 101, parcel.ID)
	assert.Equal(t, alice, parcel.Owner)
	assert.Equal(t, "New Year", parcel.Name)
	assert.Equal(t, "2", parcel.Price.Ether)
	assert.True(t, parcel.Minted)
	assert.True(t, parcel.Owned)
	assert.False(t, parcel.Foreclosed)
	require.NotNil(t, parcel.LastCollected)

	w = do(t, router, http.MethodGet, "/api/v1/accounts/"+alice+"/deposit", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var balance BalanceResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&balance))
	assert.Equal(t, alice, balance.Address)
	assert.Equal(t, "1", balance.Amount.Ether)
}

func TestBuyOrMint_ForceBuy(t *testing.T) {
	router, _ := setupSteward(t)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/v1/days/1/1/buy", alice, buyBody("2", "1", "2")).Code)

	w := do(t, router, http.MethodPost, "/api/v1/days/1/1/buy", bob, buyBody("3", "1", "1"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apierrors.ErrInsufficientPayment, decodeError(t, w).Code)

	w = do(t, router, http.MethodPost, "/api/v1/days/1/1/buy", bob, buyBody("3", "1", "3"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	parcel := decodeParcel(t, w)
	assert.Equal(t, bob, parcel.Owner)
	assert.Equal(t, "3", parcel.Price.Ether)
}

func TestBuyOrMint_RequestErrors(t *testing.T) {
	router, _ := setupSteward(t)

	tests := []struct {
		name           string
		path           string
		account        string
		body           interface{}
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "anonymous caller",
			path:           "/api/v1/days/1/1/buy",
			body:           buyBody("2", "1", "2"),
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "UNAUTHENTICATED",
		},
		{
			name:           "malformed account header",
			path:           "/api/v1/days/1/1/buy",
			account:        "not-an-address",
			body:           buyBody("2", "1", "2"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_ACCOUNT",
		},
		{
			name:           "month out of range",
			path:           "/api/v1/days/13/1/buy",
			account:        alice,
			body:           buyBody("2", "1", "2"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   apierrors.ErrValidation,
		},
		{
			name:           "day that does not exist",
			path:           "/api/v1/days/2/30/buy",
			account:        alice,
			body:           buyBody("2", "1", "2"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   apierrors.ErrInvalidDate,
		},
		{
			name:           "unparseable amount",
			path:           "/api/v1/days/1/1/buy",
			account:        alice,
			body:           buyBody("two", "1", "2"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   apierrors.ErrInvalidAmount,
		},
		{
			name:           "missing payment",
			path:           "/api/v1/days/1/1/buy",
			account:        alice,
			body:           map[string]string{"price": "2", "deposit": "1"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   apierrors.ErrValidation,
		},
		{
			name:           "malformed recipient",
			path:           "/api/v1/days/1/1/buy",
			account:        alice,
			body:           BuyRequest{Recipient: "0x123", Price: "2", Deposit: "1", Payment: "2"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   apierrors.ErrValidation,
		},
		{
			name:           "zero address account header",
			path:           "/api/v1/days/1/1/buy",
			account:        zeroAddress,
			body:           buyBody("2", "1", "2"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_ACCOUNT",
		},
		{
			name:           "zero address recipient",
			path:           "/api/v1/days/1/1/buy",
			account:        alice,
			body:           BuyRequest{Recipient: zeroAddress, Price: "2", Deposit: "1", Payment: "2"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   apierrors.ErrInvalidAddress,
		},
		{
			name:           "deposit below minimum",
			path:           "/api/v1/days/1/1/buy",
			account:        alice,
			body:           buyBody("2", "0.001", "2"),
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   apierrors.ErrInsufficientDeposit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, tt.path, tt.account, tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.expectedCode, decodeError(t, w).Code)
		})
	}
}

func TestGetParcel(t *testing.T) {
	router, _ := setupSteward(t)

	t.Run("unminted day", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/parcels/1231", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		parcel := decodeParcel(t, w)
		assert.Equal(t, 12, parcel.Month)
		assert.Equal(t, 31, parcel.Day)
		assert.False(t, parcel.Minted)
		assert.False(t, parcel.Owned)
		assert.Equal(t, zeroAddress, parcel.Owner)
		assert.Nil(t, parcel.LastCollected)
	})

	t.Run("invalid id", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/parcels/1300", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apierrors.ErrInvalidDate, decodeError(t, w).Code)
	})

	t.Run("non-numeric id", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/parcels/jan1", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUpdateParcel(t *testing.T) {
	router, _ := setupSteward(t)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/v1/days/1/1/buy", alice, buyBody("2", "1", "2")).Code)

	update := UpdateParcelRequest{Name: "Renamed", Price: "5", Month: 1, Day: 1}

	w := do(t, router, http.MethodPut, "/api/v1/parcels/101", bob, update)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, router, http.MethodPut, "/api/v1/parcels/101", alice, UpdateParcelRequest{Price: "5", Month: 1, Day: 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apierrors.ErrInvalidDate, decodeError(t, w).Code)

	w = do(t, router, http.MethodPut, "/api/v1/parcels/101", alice, update)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	parcel := decodeParcel(t, w)
	assert.Equal(t, "Renamed", parcel.Name)
	assert.Equal(t, "5", parcel.Price.Ether)
}

func TestCollectAndBeneficiaryWithdraw(t *testing.T) {
	router, clock := setupSteward(t)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/v1/days/1/1/buy", alice, buyBody("2", "1", "2")).Code)

	clock.Advance(services.Year)

	w := do(t, router, http.MethodPost, "/api/v1/parcels/101/collect", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var collect CollectResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&collect))
	assert.Equal(t, "0.02", collect.Collected.Ether)
	assert.Equal(t, "0", collect.Parcel.ProjectedTax.Wei)

	w = do(t, router, http.MethodPost, "/api/v1/beneficiary/withdraw", alice, PayoutRequest{To: alice})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/beneficiary/withdraw", adminAccount, PayoutRequest{To: bob})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var payout PayoutResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&payout))
	assert.Equal(t, bob, payout.To)
	assert.Equal(t, "0.02", payout.Amount.Ether)
}

func TestForeclosedEndpoint(t *testing.T) {
	router, clock := setupSteward(t)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/v1/days/1/1/buy", alice, buyBody("100", "0.5", "1.5")).Code)

	w := do(t, router, http.MethodGet, "/api/v1/parcels/101/foreclosed", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var response ForeclosedResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.False(t, response.Foreclosed)

	// One percent of 100 a year drains 0.5 in half a year. The flag only
	// changes once someone collects.
	clock.Advance(services.Year)

	w = do(t, router, http.MethodGet, "/api/v1/parcels/101/foreclosed", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.False(t, response.Foreclosed)

	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/v1/parcels/101/collect", "", nil).Code)

	w = do(t, router, http.MethodGet, "/api/v1/parcels/101/foreclosed", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 101, response.ID)
	assert.True(t, response.Foreclosed)
}

func TestDepositAndWithdraw(t *testing.T) {
	router, _ := setupSteward(t)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/v1/days/1/1/buy", alice, buyBody("2", "1", "2")).Code)

	w := do(t, router, http.MethodPost, "/api/v1/accounts/"+alice+"/deposit", bob, AmountRequest{Amount: "0.5"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var balance BalanceResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&balance))
	assert.Equal(t, "1.5", balance.Amount.Ether)

	w = do(t, router, http.MethodGet, "/api/v1/accounts/"+alice+"/withdrawable", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&balance))
	assert.Equal(t, "1.5", balance.Amount.Ether)

	w = do(t, router, http.MethodPost, "/api/v1/accounts/withdraw", alice, AmountRequest{Amount: "2"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apierrors.ErrWithdrawingTooMuch, decodeError(t, w).Code)

	w = do(t, router, http.MethodPost, "/api/v1/accounts/withdraw", alice, AmountRequest{Amount: "0.5"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var payout PayoutResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&payout))
	assert.Equal(t, alice, payout.To)
	assert.Equal(t, "0.5", payout.Amount.Ether)
	require.NotNil(t, payout.Remaining)
	assert.Equal(t, "1", payout.Remaining.Ether)

	w = do(t, router, http.MethodGet, "/api/v1/accounts/not-an-address/deposit", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apierrors.ErrValidation, decodeError(t, w).Code)

	w = do(t, router, http.MethodPost, "/api/v1/accounts/"+alice+"/deposit", bob, AmountRequest{Amount: "0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apierrors.ErrInvalidAmount, decodeError(t, w).Code)
}

func TestClaimLegacy(t *testing.T) {
	router, _ := setupSteward(t)

	w := do(t, router, http.MethodPost, "/api/v1/days/1/2/legacy-claim", alice, buyBody("1", "0.5", "0.5"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	parcel := decodeParcel(t, w)
	assert.Equal(t, alice, parcel.Owner)
	assert.Equal(t, 102, parcel.ID)

	w = do(t, router, http.MethodPost, "/api/v1/days/1/2/legacy-claim", alice, buyBody("1", "0.5", "0.5"))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/days/1/3/legacy-claim", bob, buyBody("1", "0.5", "0.5"))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	router, _ := setupSteward(t)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/v1/days/1/1/buy", alice, buyBody("2", "1", "2.5")).Code)

	w := do(t, router, http.MethodPut, "/api/v1/admin/beneficiary", alice, BeneficiaryRequest{Beneficiary: bob})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, router, http.MethodPut, "/api/v1/admin/beneficiary", adminAccount, BeneficiaryRequest{Beneficiary: bob})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"beneficiary":"`+bob+`"}`, w.Body.String())

	w = do(t, router, http.MethodPut, "/api/v1/admin/legacy-token", adminAccount, LegacyTokenRequest{Source: "static"})
	assert.Equal(t, http.StatusConflict, w.Code, "source is already set for this migration")
	assert.Equal(t, apierrors.ErrConflict, decodeError(t, w).Code)

	w = do(t, router, http.MethodPut, "/api/v1/admin/legacy-token", adminAccount, LegacyTokenRequest{Source: "ftp://example.com"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, router, http.MethodPut, "/api/v1/admin/legacy-token", adminAccount, LegacyTokenRequest{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/v1/days/1/2/legacy-claim", alice, buyBody("1", "0.5", "0.5"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, router, http.MethodPut, "/api/v1/admin/legacy-token", adminAccount, LegacyTokenRequest{Source: "static"})
	require.Equal(t, http.StatusOK, w.Code, "a new migration may set a source")

	// Mint price plus overpayment.
	w = do(t, router, http.MethodPost, "/api/v1/admin/proceeds/withdraw", adminAccount, PayoutRequest{To: adminAccount})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var payout PayoutResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&payout))
	assert.Equal(t, "1.5", payout.Amount.Ether)
}

// mockStewardService is a mock implementation of services.StewardService.
type mockStewardService struct {
	mock.Mock
	services.StewardService
}

func (m *mockStewardService) Parcel(ctx context.Context, id int) (*models.ParcelView, error) {
	args := m.Called(ctx, id)
	if v, ok := args.Get(0).(*models.ParcelView); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStewardService) CollectPatronage(ctx context.Context, id int) (*big.Int, *models.ParcelView, error) {
	args := m.Called(ctx, id)
	if v, ok := args.Get(1).(*models.ParcelView); ok {
		return args.Get(0).(*big.Int), v, args.Error(2)
	}
	return nil, nil, args.Error(2)
}

func TestStewardHandler_StoreFailure(t *testing.T) {
	service := new(mockStewardService)
	service.On("Parcel", mock.Anything, 101).Return(nil, errors.New("connection reset"))
	service.On("CollectPatronage", mock.Anything, 101).Return(nil, nil, errors.New("connection reset"))
	router := newRouter(service)

	w := do(t, router, http.MethodGet, "/api/v1/parcels/101", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	detail := decodeError(t, w)
	assert.Equal(t, apierrors.ErrInternalServer, detail.Code)
	assert.Equal(t, "Failed to load parcel", detail.Message)
	assert.NotEmpty(t, detail.RequestID)

	w = do(t, router, http.MethodPost, "/api/v1/parcels/101/collect", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")

	service.AssertExpectations(t)
}

func TestStewardHandler_ServiceUnconfigured(t *testing.T) {
	service := new(mockStewardService)
	service.On("Parcel", mock.Anything, 101).Return(nil, services.ErrNotConfigured)
	router := newRouter(service)

	w := do(t, router, http.MethodGet, "/api/v1/parcels/101", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, apierrors.ErrServiceUnavailable, decodeError(t, w).Code)
}
