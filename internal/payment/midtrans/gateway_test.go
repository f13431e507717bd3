package midtrans

import (
	"net/http"
	"testing"

	"github.com/midtrans/midtrans-go"
	"github.com/stretchr/testify/assert"
)

func TestDuplicateOrder(t *testing.T) {
	apiError := func(code int, body string) *midtrans.Error {
		return &midtrans.Error{
			Message:        "Midtrans API is returning API error. HTTP status code: 400  API response: " + body,
			StatusCode:     code,
			RawApiResponse: &midtrans.ApiResponse{StatusCode: code, RawBody: []byte(body)},
		}
	}

	cases := []struct {
		name string
		err  *midtrans.Error
		want bool
	}{
		{"indonesian", apiError(http.StatusBadRequest, `{"error_messages":["transaction_details.order_id sudah digunakan"]}`), true},
		{"english", apiError(http.StatusBadRequest, `{"error_messages":["transaction_details.order_id has already been taken"]}`), true},
		{"conflict", apiError(http.StatusConflict, `{"error_messages":["order_id already exists"]}`), true},
		{"other validation", apiError(http.StatusBadRequest, `{"error_messages":["transaction_details.gross_amount is required"]}`), false},
		{"server error", apiError(http.StatusInternalServerError, `{"error_messages":["order_id already used"]}`), false},
		{"no response", &midtrans.Error{Message: "Error when request via HttpClient", StatusCode: 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, duplicateOrder(tc.err))
		})
	}
}
