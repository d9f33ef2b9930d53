package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gin-gorm-forum/internal/domain"
	httpez "gin-gorm-forum/internal/transport/http/ez"
	mdw "gin-gorm-forum/internal/transport/http/middleware"
)

// NewAdminEngine 管理端；admin 角色由 service 校验
func NewAdminEngine(l *zap.Logger, forum Forum, o Options) *gin.Engine {
	r := newEngine(l, o)
	admin := r.Group("/admin/v1")
	mountAdminActions(admin, forum)
	return r
}

type userList struct {
	Total int64         `json:"total"`
	Items []domain.User `json:"items"`
}

func mountAdminActions(admin *gin.RouterGroup, forum Forum) {
	ez := httpez.New(admin)

	// --- GET /admin/v1/users  用户列表 ---
	httpez.RegisterAction(ez, httpez.Action[pageQ, userList]{
		Method: http.MethodGet,
		Path:   "/users",
		Binder: httpez.BindQuery,
		Auth:   true,
		Handler: func(c *gin.Context, in *pageQ) (userList, error) {
			us, total, err := forum.ListUsers(c.Request.Context(), mdw.Token(c), in.Offset, in.Limit)
			if err != nil {
				return userList{}, err
			}
			return userList{Total: total, Items: us}, nil
		},
	})

	// --- DELETE /admin/v1/users/:id  删除用户（连同帖子和会话） ---
	httpez.RegisterAction(ez, httpez.Action[struct{}, gin.H]{
		Method: http.MethodDelete,
		Path:   "/users/:id",
		Binder: httpez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			id, err := parseID(c)
			if err != nil {
				return nil, err
			}
			if err := forum.DeleteUser(c.Request.Context(), mdw.Token(c), id); err != nil {
				return nil, err
			}
			return gin.H{"id": id}, nil
		},
	})
}
