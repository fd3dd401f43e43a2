package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/email-gateway/internal/http/middleware"
	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmehdipour/email-gateway/internal/repository"
	"github.com/jmehdipour/email-gateway/internal/util"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func dashboardStatsHandler(accounts Accounts, counter StatusCounter, lg *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		companyID, ok := middleware.CompanyIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		ctx := c.Request().Context()

		acc, err := accounts.CheckAndResetIfDue(ctx, companyID)
		if err != nil {
			return writeError(c, lg, err)
		}
		counts, err := counter.CountByStatus(ctx, companyID)
		if err != nil {
			return writeError(c, lg, err)
		}

		var total int64
		for _, n := range counts {
			total += n
		}

		credits := any(acc.Balance)
		if acc.Tier.Unlimited() {
			credits = "unlimited"
		}
		return c.JSON(http.StatusOK, map[string]any{
			"tier":             acc.Tier,
			"api_credits":      credits,
			"credits_reset_at": acc.ResetAt.UTC().Format("2006-01-02"),
			"emails": map[string]int64{
				"total":   total,
				"queued":  counts[model.StatusQueued],
				"success": counts[model.StatusSuccess],
				"failed":  counts[model.StatusFailed],
			},
		})
	}
}

func listLogsHandler(lister repository.EmailLogLister, lg *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		companyID, ok := middleware.CompanyIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		f := repository.LogFilter{Limit: 50}
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				f.Limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				f.Offset = n
			}
		}
		if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
			st := model.EmailStatus(raw)
			if !st.Valid() {
				return badRequest(c, "status must be one of Queued, Success, Failed")
			}
			f.Status = st
		}
		if raw := c.QueryParam("to"); raw != "" {
			to, ok := util.NormalizeAddress(raw)
			if !ok {
				return badRequest(c, "to must be a valid email address")
			}
			f.To = to
		}

		logs, err := lister.ListByCompany(c.Request().Context(), companyID, f)
		if err != nil {
			return writeError(c, lg, err)
		}
		if logs == nil {
			logs = []model.EmailLog{}
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   f.Limit,
			"offset":  f.Offset,
			"count":   len(logs),
			"results": logs,
		})
	}
}
