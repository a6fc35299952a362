package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/secondbrain-backend/internal/http/response"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
)

func requestCtx(c *gin.Context) dbctx.Context {
	return dbctx.Context{Ctx: c.Request.Context()}
}

// pathUUID writes a 400 and returns false when :name is not a uuid.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_"+name, err)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_"+name, errBadQuery(name))
		return 0, false
	}
	return n, true
}

func queryBool(c *gin.Context, name string) (*bool, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_"+name, errBadQuery(name))
		return nil, false
	}
	return &b, true
}

type errBadQuery string

func (e errBadQuery) Error() string { return "invalid query parameter " + string(e) }
