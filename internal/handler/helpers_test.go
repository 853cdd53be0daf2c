package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/tableservice/internal/auth"
	"github.com/kiwari-pos/tableservice/internal/database"
	"github.com/shopspring/decimal"
)

const testJWTSecret = "test-secret-for-handlers"

func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	if claims != nil {
		// Generate a real JWT token from claims
		token, err := auth.GenerateToken(testJWTSecret, claims.UserID, claims.Role, time.Hour)
		if err != nil {
			t.Fatalf("generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func decodeInto(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, want, rr.Body.String())
	}
}

func testClaims(role string) *auth.Claims {
	return &auth.Claims{UserID: uuid.New(), Role: role}
}

func testNumeric(s string) pgtype.Numeric {
	return database.DecimalToNumeric(decimal.RequireFromString(s))
}

func testTable(number int32, status database.TableStatus) database.DiningTable {
	return database.DiningTable{
		ID:        uuid.New(),
		Number:    number,
		Status:    status,
		Total:     testNumeric("0"),
		UpdatedAt: time.Now(),
	}
}

func testOrder(tableID uuid.UUID, status database.OrderStatus) database.Order {
	now := time.Now()
	return database.Order{
		ID:          uuid.New(),
		TableID:     pgtype.UUID{Bytes: tableID, Valid: tableID != uuid.Nil},
		UserID:      uuid.New(),
		Status:      status,
		Covers:      2,
		Subtotal:    testNumeric("7.50"),
		CoverCharge: testNumeric("0.40"),
		Total:       testNumeric("7.90"),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func testItem(orderID uuid.UUID, name string, price string) database.OrderItem {
	return database.OrderItem{
		ID:               uuid.New(),
		OrderID:          orderID,
		ProductID:        uuid.New(),
		ProductName:      name,
		Quantity:         1,
		UnitPrice:        testNumeric(price),
		SupplementsTotal: testNumeric("0"),
		TotalPrice:       testNumeric(price),
		Course:           1,
		Supplements:      []byte(`[]`),
		CreatedAt:        time.Now(),
	}
}
