package controller

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"

	"dealrooms/services"
)

func TestServiceErrorMapping(t *testing.T) {
	app := fiber.New()

	cases := []struct {
		err    error
		status int
	}{
		{services.ErrNotFound, fiber.StatusNotFound},
		{services.ErrForbidden, fiber.StatusForbidden},
		{services.ErrSlowMode, fiber.StatusTooManyRequests},
		{services.ErrInvalidParticipants, fiber.StatusBadRequest},
		{services.ErrInvalidArgument, fiber.StatusBadRequest},
		{fmt.Errorf("%w: bad metadata", services.ErrInvalidArgument), fiber.StatusBadRequest},
		{services.ErrUnavailable, fiber.StatusInternalServerError},
		{errors.New("anything else"), fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		ctx := app.AcquireCtx(&fasthttp.RequestCtx{})
		err := serviceError(ctx, tc.err)
		assert.NoError(t, err)
		assert.Equal(t, tc.status, ctx.Response().StatusCode(), "for error %v", tc.err)
		app.ReleaseCtx(ctx)
	}
}
