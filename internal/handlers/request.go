package handlers

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/common"
	"github.com/Mateo9804/gastoclaro/internal/models"
)

// MessageResponse is the body of writes that return no entity.
type MessageResponse struct {
	Message string `json:"message"`
}

func principal(c echo.Context) (models.Principal, error) {
	p, ok := common.GetPrincipalFromContext(c.Request().Context())
	if !ok {
		return models.Principal{}, apperrors.ErrUnauthenticated
	}
	return p, nil
}

// bindAndValidate binds the request body into dst and runs the echo validator.
func bindAndValidate(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return apperrors.NewValidation("request", "Invalid request format")
	}
	if c.Echo().Validator == nil {
		return nil
	}
	return c.Validate(dst)
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := common.ValidateUUID(c.Param(name), name)
	if err != nil {
		return uuid.Nil, apperrors.NewValidation(name, err.Error())
	}
	return id, nil
}
