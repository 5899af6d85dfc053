package handler

import (
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/pathway100k/intake/internal/infrastructure/sinks"
	"github.com/pathway100k/intake/internal/response"
)

// SinkHandler exposes the sink catalogue: the types linked into the binary
// and the sinks active in this process.
type SinkHandler struct {
	Registry *sinks.Registry
	Active   []string
}

// ListActive returns the sinks submissions are recorded to, in order (GET /sinks).
func (h *SinkHandler) ListActive(c echo.Context) error {
	active := h.Active
	if active == nil {
		active = []string{}
	}
	return response.OK(c, map[string]any{"sinks": active}, "")
}

// ListTypes returns registered sink type names (GET /sinks/types).
func (h *SinkHandler) ListTypes(c echo.Context) error {
	types := h.Registry.ListRegistered()
	sort.Strings(types)
	return response.OK(c, map[string]any{"types": types}, "")
}

// GetAllTypesInfo returns the config spec of every registered sink type (GET /sinks/info).
func (h *SinkHandler) GetAllTypesInfo(c echo.Context) error {
	all := h.Registry.AllTypesInfo()
	sort.Slice(all, func(i, j int) bool { return all[i].Type < all[j].Type })
	return response.OK(c, map[string]any{"types": all}, "")
}

// GetTypeInfo returns the config spec of one sink type (GET /sinks/types/:type).
func (h *SinkHandler) GetTypeInfo(c echo.Context) error {
	typeName := c.Param("type")
	if typeName == "" {
		return response.BadRequest(c, "missing type in path", "type is required")
	}
	info, ok := h.Registry.GetTypeInfo(typeName)
	if !ok {
		return response.NotFound(c, "unknown sink type", "unknown sink type: "+typeName)
	}
	return response.OK(c, info, "")
}
