package console

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/svckit/errors"
	"github.com/kbukum/svckit/filter"
	"github.com/kbukum/svckit/logger"
	"github.com/kbukum/svckit/module"
	"github.com/kbukum/svckit/observability"
	"github.com/kbukum/svckit/properties"
	"github.com/kbukum/svckit/registry"
	"github.com/kbukum/svckit/version"
)

// DataResponse is the success envelope.
type DataResponse struct {
	Data  any `json:"data"`
	Total int `json:"total,omitempty"`
}

// ServiceView is the JSON form of a registered service.
type ServiceView struct {
	ID         int64          `json:"id"`
	Interfaces []string       `json:"interfaces"`
	Ranking    int            `json:"ranking"`
	ModuleID   int64          `json:"module_id"`
	Properties map[string]any `json:"properties"`
}

func newServiceView(ref registry.Reference) ServiceView {
	v := ServiceView{
		ID:         ref.ID(),
		Interfaces: ref.Interfaces(),
		Ranking:    ref.Ranking(),
		ModuleID:   ref.ModuleID(),
		Properties: map[string]any{},
	}
	ref.Properties().Range(func(key string, value any) bool {
		v.Properties[key] = jsonValue(value)
		return true
	})
	return v
}

// jsonValue passes JSON-friendly values through and prints the rest.
func jsonValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64, []string:
		return x
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = jsonValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = jsonValue(e)
		}
		return out
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func respondOK(c *gin.Context, data any, total int) {
	c.JSON(http.StatusOK, DataResponse{Data: data, Total: total})
}

func respondError(c *gin.Context, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal(err)
	}
	c.JSON(apperrors.StatusOf(appErr), appErr.ToResponse())
}

func abortWithError(c *gin.Context, err error) {
	respondError(c, err)
	c.Abort()
}

func (c *Console) handleHealth(ctx *gin.Context) {
	h := c.health(ctx.Request.Context())
	status := http.StatusOK
	if h.Status == observability.HealthStatusDown {
		status = http.StatusServiceUnavailable
	}
	ctx.JSON(status, h)
}

func (c *Console) handleServices(ctx *gin.Context) {
	iface := ctx.Query("interface")
	refs, err := c.reg.FindServiceReferences(iface, ctx.Query("filter"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	views := make([]ServiceView, 0, len(refs))
	for _, ref := range refs {
		if ref.IsValid() {
			views = append(views, newServiceView(ref))
		}
	}
	respondOK(ctx, views, len(views))
}

func (c *Console) handleService(ctx *gin.Context) {
	raw := ctx.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(ctx, apperrors.InvalidInput("id", "service id must be a positive integer"))
		return
	}
	refs := c.reg.GetServiceReferences("", filter.Equals(properties.ServiceID, raw))
	for _, ref := range refs {
		if ref.ID() == id && ref.IsValid() {
			respondOK(ctx, newServiceView(ref), 0)
			return
		}
	}
	respondError(ctx, apperrors.NotFound("service", raw))
}

func (c *Console) handleModules(ctx *gin.Context) {
	if c.modules == nil {
		respondOK(ctx, []module.Info{}, 0)
		return
	}
	infos := c.modules.List()
	respondOK(ctx, infos, len(infos))
}

func (c *Console) handleVersion(ctx *gin.Context) {
	respondOK(ctx, version.Get(), 0)
}

func (c *Console) recovery() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("panic recovered", logger.Fields(
					logger.FieldError, fmt.Sprint(r),
					"stack", string(debug.Stack()),
					"path", ctx.Request.URL.Path,
				))
				abortWithError(ctx, apperrors.Internal(fmt.Errorf("panic: %v", r)))
			}
		}()
		ctx.Next()
	}
}

func (c *Console) requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		status := ctx.Writer.Status()
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		c.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()

		if route == "/healthz" || route == "/metrics" {
			return
		}
		fields := logger.Fields(
			"method", ctx.Request.Method,
			"path", ctx.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		switch {
		case status >= 500:
			c.log.Error("console request", fields)
		case status >= 400:
			c.log.Warn("console request", fields)
		default:
			c.log.Debug("console request", fields)
		}
	}
}
