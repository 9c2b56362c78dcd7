package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/congress/core"
)

const orderingParam = "ordering"

// queryOrdering reads `?ordering=name,-starts_at`: comma separated fields, "-" for descending.
// Unknown fields are dropped by the repositories.
func queryOrdering(ctx echo.Context) []core.DBOrdering {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return nil
	}

	fields := strings.Split(val, ",")
	ordering := make([]core.DBOrdering, 0, len(fields))
	for _, field := range fields {
		field = strings.ToLower(strings.TrimSpace(field))
		asc := !strings.HasPrefix(field, "-")
		if field = strings.TrimPrefix(field, "-"); field != "" {
			ordering = append(ordering, core.DBOrdering{Field: field, Ascending: asc})
		}
	}
	return ordering
}

type (
	SuccessResponse struct {
		Success string `json:"success"`
	}

	// IDsRequest binds `?id=..&id=..`
	IDsRequest struct {
		IDs []string `query:"id"`
	}
)
