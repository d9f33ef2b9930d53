package ez

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gin-gorm-forum/internal/domain"
	resp "gin-gorm-forum/internal/transport/http/response"
	mdw "gin-gorm-forum/internal/transport/http/middleware"
)

// EZ 轻封装：在分组上一行注册动作
type EZ struct{ g *gin.RouterGroup }

func New(g *gin.RouterGroup) EZ { return EZ{g: g} }

// 绑定方式
type Binder string

const (
	BindJSON  Binder = "json"  // 从 JSON 绑定
	BindQuery Binder = "query" // 从 URL ?a=b 绑定
	BindNone  Binder = "none"  // 不绑定，自己从 c.Param 取
)

// AErr 传输层错误（参数不合法等），直接带 code
type AErr struct {
	Code int
	Msg  string
}

func (e *AErr) Error() string { return e.Msg }

func BadRequest(msg string) error { return &AErr{Code: resp.CodeBadRequest, Msg: msg} }

// 动作定义：I 入参，O 出参
type Action[I any, O any] struct {
	Method  string // "GET" | "POST" | "PUT" | "DELETE"
	Path    string // 例："/auth/login"、"/posts/:id/like"
	Binder  Binder
	Auth    bool // 无会话令牌直接 401
	Handler func(c *gin.Context, in *I) (O, error)
}

func RegisterAction[I any, O any](e EZ, a Action[I, O]) {
	h := func(c *gin.Context) {
		if a.Auth && mdw.Token(c) == "" {
			c.JSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "unauthenticated"))
			return
		}

		var in I
		var bindErr error
		switch a.Binder {
		case BindJSON:
			bindErr = c.ShouldBindJSON(&in)
		case BindQuery:
			bindErr = c.ShouldBindQuery(&in)
		}
		if bindErr != nil {
			var tooBig *http.MaxBytesError
			if errors.As(bindErr, &tooBig) {
				c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, "request body too large"))
				return
			}
			c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, "malformed request"))
			return
		}

		out, err := a.Handler(c, &in)
		if err != nil {
			Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, resp.OK(out))
	}

	switch strings.ToUpper(a.Method) {
	case http.MethodGet:
		e.g.GET(a.Path, h)
	case http.MethodPut:
		e.g.PUT(a.Path, h)
	case http.MethodDelete:
		e.g.DELETE(a.Path, h)
	default: // 默认 POST
		e.g.POST(a.Path, h)
	}
}

// Fail 统一错误映射：领域错误 -> 业务码；未知错误只回通用文案，原错误挂到 c.Errors 供日志
func Fail(c *gin.Context, err error) {
	var ae *AErr
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ae):
		c.JSON(http.StatusOK, resp.Error(ae.Code, ae.Msg))
	case errors.As(err, &ve):
		c.JSON(http.StatusOK, resp.Invalid(ve.Error(), ve.Fields))
	case errors.Is(err, domain.ErrInvalidCredentials):
		c.JSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, domain.ErrInvalidCredentials.Error()))
	case errors.Is(err, domain.ErrUnauthenticated):
		c.JSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "unauthenticated"))
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusOK, resp.Error(resp.CodeForbidden, "forbidden"))
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusOK, resp.Error(resp.CodeNotFound, err.Error()))
	case errors.Is(err, domain.ErrDuplicateEmail):
		c.JSON(http.StatusOK, resp.Error(resp.CodeConflict, domain.ErrDuplicateEmail.Error()))
	default:
		_ = c.Error(err)
		c.JSON(http.StatusOK, resp.Error(resp.CodeServerError, ""))
	}
}
