package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowsyai/backend/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type purchaseRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0,lte=1000000"`
	PaymentRef  string `json:"payment_ref" validate:"required,min=4"`
	Description string `validate:"max=10"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		err := vh.ValidateStruct(&purchaseRequest{Amount: 500, PaymentRef: "pay_123"})
		assert.NoError(t, err)
	})

	t.Run("fields reported by json name", func(t *testing.T) {
		err := vh.ValidateStruct(&purchaseRequest{Amount: -1, PaymentRef: "x", Description: "far too long a note"})
		require.Error(t, err)

		var fieldErrs validator.ValidationErrors
		require.ErrorAs(t, err, &fieldErrs)
		require.Len(t, fieldErrs, 3)
		assert.Equal(t, "amount", fieldErrs[0].Field())
		assert.Equal(t, "gt", fieldErrs[0].Tag())
		assert.Equal(t, "payment_ref", fieldErrs[1].Field())
		assert.Equal(t, "Description", fieldErrs[2].Field())
	})

	t.Run("agent type must be known", func(t *testing.T) {
		err := vh.ValidateStruct(&CreateAgentRequest{Name: "Helper", Type: models.AgentType("translator")})
		require.Error(t, err)

		var fieldErrs validator.ValidationErrors
		require.ErrorAs(t, err, &fieldErrs)
		assert.Equal(t, "type", fieldErrs[0].Field())
		assert.Equal(t, "oneof", fieldErrs[0].Tag())

		assert.NoError(t, vh.ValidateStruct(&CreateAgentRequest{Name: "Helper", Type: models.AgentImageProcessor}))
	})

	t.Run("api endpoints must be http urls", func(t *testing.T) {
		req := &CreateAgentRequest{
			Name: "Status",
			Type: models.AgentAPIConnector,
			Configuration: models.AgentConfiguration{
				APIEndpoints: []string{"https://status.example.com/health", "gopher://internal:70/"},
			},
		}
		err := vh.ValidateStruct(req)
		require.Error(t, err)

		var fieldErrs validator.ValidationErrors
		require.ErrorAs(t, err, &fieldErrs)
		require.Len(t, fieldErrs, 1)
		assert.Equal(t, "http_url", fieldErrs[0].Tag())

		req.Configuration.APIEndpoints = req.Configuration.APIEndpoints[:1]
		assert.NoError(t, vh.ValidateStruct(req))
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "insufficient tokens", http.StatusPaymentRequired, nil)

		assert.Equal(t, http.StatusPaymentRequired, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "insufficient tokens", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("validation details", func(t *testing.T) {
		validationErr := NewValidationHelper().ValidateStruct(&purchaseRequest{})
		require.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Validation failed", response.Error)
		assert.Equal(t, "Field Validation Failed on 'required' tag", response.Details["amount"])
		assert.Contains(t, response.Details, "payment_ref")
	})

	t.Run("non-validation error carries no details", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, errors.New("boom"))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Nil(t, response.Details)
	})
}
