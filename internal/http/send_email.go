package http

import (
	"net/http"
	"strings"

	"github.com/jmehdipour/email-gateway/internal/service/dispatch"
	"github.com/jmehdipour/email-gateway/internal/util"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const headerAPIKey = "X-API-Key"

type sendReq struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
	HTML       string `json:"html"`
	Text       string `json:"text"`
	TemplateID *int64 `json:"template_id"`
}

func sendEmailHandler(sender Sender, lg *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req sendReq
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "malformed json body")
		}

		from := strings.TrimSpace(req.From)
		if _, ok := util.NormalizeAddress(from); !ok {
			return badRequest(c, "from must be a valid email address")
		}
		to, ok := util.NormalizeAddress(req.To)
		if !ok {
			return badRequest(c, "to must be a valid email address")
		}

		res, err := sender.Send(c.Request().Context(), c.Request().Header.Get(headerAPIKey), dispatch.Message{
			From:       from,
			To:         to,
			Subject:    strings.TrimSpace(req.Subject),
			HTML:       req.HTML,
			Text:       req.Text,
			TemplateID: req.TemplateID,
		})
		if err != nil {
			return writeError(c, lg, err)
		}

		return c.JSON(http.StatusOK, res)
	}
}
