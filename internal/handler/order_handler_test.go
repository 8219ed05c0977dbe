package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bistro/internal/middleware"
	"bistro/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	diner = &model.Account{ID: "acc-1", Email: "diner@example.com", Role: model.RoleUser}
	staff = &model.Account{ID: "acc-admin", Email: "staff@example.com", Role: model.RoleAdmin}
)

func withAccount(req *http.Request, account *model.Account) *http.Request {
	if account == nil {
		return req
	}
	return req.WithContext(middleware.WithAccount(req.Context(), account))
}

func testOrder() *model.Order {
	price := decimal.RequireFromString("12.50")
	id := uuid.New()
	return &model.Order{
		ID:                id,
		OrderNumber:       "ORD-20300614-AB12CD",
		ClientReferenceID: "ref-1",
		UserEmail:         "diner@example.com",
		Items:             []model.OrderItem{{Name: "Margherita", Quantity: 2, Price: price}},
		TotalAmount:       decimal.RequireFromString("25.00"),
		Address:           "221B Baker Street, London",
		PaymentStatus:     model.PaymentPending,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
}

func TestOrderHandler_Create(t *testing.T) {
	logger := zerolog.Nop()
	order := testOrder()

	validBody := map[string]any{
		"items":             []map[string]any{{"name": "Margherita", "quantity": 2, "price": 12.5}},
		"totalAmount":       25,
		"address":           "221B Baker Street, London",
		"userEmail":         "diner@example.com",
		"clientReferenceId": "ref-1",
		"requestId":         "req-1",
	}

	tests := []struct {
		name           string
		requestBody    interface{}
		mockReturn     *model.OrderResult
		mockError      error
		expectedStatus int
		expectService  bool
		expectCode     string
	}{
		{
			name:           "Success",
			requestBody:    validBody,
			mockReturn:     &model.OrderResult{Order: order},
			expectedStatus: http.StatusCreated,
			expectService:  true,
		},
		{
			name:        "Exact duplicate resolves to stored order",
			requestBody: validBody,
			mockReturn: &model.OrderResult{
				Order: order, Duplicate: true, DuplicateType: model.DuplicateExact,
			},
			expectedStatus: http.StatusOK,
			expectService:  true,
		},
		{
			name:        "Similar order resolves to stored order",
			requestBody: validBody,
			mockReturn: &model.OrderResult{
				Order: order, Duplicate: true, DuplicateType: model.DuplicateSimilar,
			},
			expectedStatus: http.StatusOK,
			expectService:  true,
		},
		{
			name:        "Validation error",
			requestBody: map[string]any{"items": []any{}},
			mockError: model.NewValidationError("Validation failed", map[string]any{
				"items": "Order must contain at least one item",
			}),
			expectedStatus: http.StatusBadRequest,
			expectService:  true,
			expectCode:     model.ErrCodeValidation,
		},
		{
			name:           "Busy",
			requestBody:    validBody,
			mockError:      model.NewBusyError("Server busy, please try again later", 5*time.Second),
			expectedStatus: http.StatusTooManyRequests,
			expectService:  true,
			expectCode:     model.ErrCodeLockTimeout,
		},
		{
			name:           "Code generation exhausted",
			requestBody:    validBody,
			mockError:      model.NewConflictError(model.ErrCodeCodeGenerationExhausted, "Unable to generate order number", nil),
			expectedStatus: http.StatusConflict,
			expectService:  true,
			expectCode:     model.ErrCodeCodeGenerationExhausted,
		},
		{
			name:           "Invalid JSON",
			requestBody:    "invalid json",
			expectedStatus: http.StatusBadRequest,
			expectService:  false,
			expectCode:     model.ErrCodeInvalidJSON,
		},
		{
			name:           "Trailing data",
			requestBody:    `{"address":"x"} {"address":"y"}`,
			expectedStatus: http.StatusBadRequest,
			expectService:  false,
			expectCode:     model.ErrCodeInvalidJSON,
		},
		{
			name:           "Service internal error",
			requestBody:    validBody,
			mockError:      errors.New("database connection failed"),
			expectedStatus: http.StatusInternalServerError,
			expectService:  true,
			expectCode:     model.ErrCodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockOrderService)
			handler := NewOrderHandler(mockService, logger)

			var body []byte
			if str, ok := tt.requestBody.(string); ok {
				body = []byte(str)
			} else {
				var err error
				body, err = json.Marshal(tt.requestBody)
				require.NoError(t, err)
			}

			if tt.expectService {
				mockService.On("CreateOrder", mock.Anything, mock.AnythingOfType("*model.OrderRequest")).
					Return(tt.mockReturn, tt.mockError)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			req = withAccount(req, diner)
			w := httptest.NewRecorder()

			handler.Create(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectCode != "" {
				var resp model.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.expectCode, resp.Error)
				assert.NotContains(t, w.Body.String(), "database connection failed")
			}

			if tt.expectService {
				mockService.AssertExpectations(t)
			} else {
				mockService.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestOrderHandler_Create_DuplicatePayload(t *testing.T) {
	mockService := new(MockOrderService)
	handler := NewOrderHandler(mockService, zerolog.Nop())
	order := testOrder()

	mockService.On("CreateOrder", mock.Anything, mock.Anything).
		Return(&model.OrderResult{Order: order, Duplicate: true, DuplicateType: model.DuplicateExact}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString(`{"clientReferenceId":"ref-1"}`))
	w := httptest.NewRecorder()
	handler.Create(w, withAccount(req, diner))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "exact_duplicate", w.Header().Get(middleware.DuplicateOrderHeader))
	var resp struct {
		Order         model.Order `json:"order"`
		Duplicate     bool        `json:"duplicate"`
		DuplicateType string      `json:"duplicateType"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Duplicate)
	assert.Equal(t, "exact_duplicate", resp.DuplicateType)
	assert.Equal(t, order.ID, resp.Order.ID)
}

func TestOrderHandler_Create_EmailFromAccount(t *testing.T) {
	mockService := new(MockOrderService)
	handler := NewOrderHandler(mockService, zerolog.Nop())

	// The caller's request id is never replaced by the transport's.
	mockService.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req *model.OrderRequest) bool {
		return req.UserEmail == diner.Email && req.RequestID == ""
	})).Return(nil, model.NewValidationError("All fields are required and must be valid", map[string]any{
		"requestId": "Request ID is required",
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString(`{"clientReferenceId":"ref-1"}`))
	req.Header.Set(middleware.RequestIDHeader, "req-from-header")
	w := httptest.NewRecorder()

	middleware.RequestID(http.HandlerFunc(handler.Create)).ServeHTTP(w, withAccount(req, diner))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp model.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Details, "requestId")
	mockService.AssertExpectations(t)
}

func TestOrderHandler_GetByID(t *testing.T) {
	logger := zerolog.Nop()
	order := testOrder()

	tests := []struct {
		name           string
		pathID         string
		mockReturn     *model.Order
		mockError      error
		expectedStatus int
		expectService  bool
	}{
		{
			name:           "Success",
			pathID:         order.ID.String(),
			mockReturn:     order,
			expectedStatus: http.StatusOK,
			expectService:  true,
		},
		{
			name:           "Order not found",
			pathID:         uuid.New().String(),
			mockError:      model.ErrOrderNotFound,
			expectedStatus: http.StatusNotFound,
			expectService:  true,
		},
		{
			name:           "Not the purchaser",
			pathID:         uuid.New().String(),
			mockError:      model.ErrForbidden,
			expectedStatus: http.StatusForbidden,
			expectService:  true,
		},
		{
			name:           "Service error",
			pathID:         uuid.New().String(),
			mockError:      errors.New("connection reset"),
			expectedStatus: http.StatusInternalServerError,
			expectService:  true,
		},
		{
			name:           "Invalid UUID format",
			pathID:         "invalid-uuid",
			expectedStatus: http.StatusBadRequest,
			expectService:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockOrderService)
			handler := NewOrderHandler(mockService, logger)

			if tt.expectService {
				mockService.On("GetByID", mock.Anything, mock.AnythingOfType("uuid.UUID"), diner).
					Return(tt.mockReturn, tt.mockError)
			}

			req := httptest.NewRequest(http.MethodGet, "/api/orders/"+tt.pathID, nil)
			req.SetPathValue("id", tt.pathID)
			w := httptest.NewRecorder()

			handler.GetByID(w, withAccount(req, diner))

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectService {
				mockService.AssertExpectations(t)
			}
		})
	}
}

func TestOrderHandler_List(t *testing.T) {
	start := time.Date(2030, 1, 10, 0, 0, 0, 0, time.UTC)
	endOfDay := time.Date(2030, 1, 12, 23, 59, 59, 999999999, time.UTC)

	tests := []struct {
		name           string
		query          string
		expectFilter   *model.OrderFilter
		expectedStatus int
	}{
		{
			name:           "Defaults",
			query:          "",
			expectFilter:   &model.OrderFilter{Page: 1},
			expectedStatus: http.StatusOK,
		},
		{
			name:  "All filters",
			query: "?userEmail=alice&startDate=2030-01-10&endDate=2030-01-12&sortOrder=asc&page=2&limit=10",
			expectFilter: &model.OrderFilter{
				UserEmail: "alice", StartDate: &start, EndDate: &endOfDay,
				Ascending: true, Page: 2, Limit: 10,
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Bad date",
			query:          "?startDate=10/01/2030",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Bad sort order",
			query:          "?sortOrder=sideways",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Bad page",
			query:          "?page=two",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockOrderService)
			handler := NewOrderHandler(mockService, zerolog.Nop())

			if tt.expectFilter != nil {
				mockService.On("List", mock.Anything, *tt.expectFilter).
					Return(&model.OrderPage{Orders: []model.Order{}, Pagination: model.NewPagination(1, 50, 0)}, nil)
			}

			req := httptest.NewRequest(http.MethodGet, "/api/orders"+tt.query, nil)
			w := httptest.NewRecorder()
			handler.List(w, withAccount(req, staff))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectFilter != nil {
				mockService.AssertExpectations(t)
			} else {
				mockService.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestOrderHandler_ListMine(t *testing.T) {
	mockService := new(MockOrderService)
	handler := NewOrderHandler(mockService, zerolog.Nop())

	mockService.On("ListMine", mock.Anything, diner, 1, 0).
		Return(&model.OrderPage{Orders: []model.Order{*testOrder()}, Pagination: model.NewPagination(1, 20, 1)}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/mine", nil)
	w := httptest.NewRecorder()
	handler.ListMine(w, withAccount(req, diner))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"orders"`)
	mockService.AssertExpectations(t)
}

func TestOrderHandler_Delete(t *testing.T) {
	tests := []struct {
		name           string
		mockError      error
		expectedStatus int
	}{
		{"Deleted", nil, http.StatusOK},
		{"Not found", model.ErrOrderNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockOrderService)
			handler := NewOrderHandler(mockService, zerolog.Nop())
			id := uuid.New()

			mockService.On("Delete", mock.Anything, id).Return(tt.mockError)

			req := httptest.NewRequest(http.MethodDelete, "/api/orders/"+id.String(), nil)
			req.SetPathValue("id", id.String())
			w := httptest.NewRecorder()
			handler.Delete(w, withAccount(req, staff))

			assert.Equal(t, tt.expectedStatus, w.Code)
			mockService.AssertExpectations(t)
		})
	}
}
