package router

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gin-gorm-forum/internal/domain"
	"gin-gorm-forum/internal/service"
	httpez "gin-gorm-forum/internal/transport/http/ez"
	mdw "gin-gorm-forum/internal/transport/http/middleware"
)

func NewAPIEngine(l *zap.Logger, forum Forum, o Options) *gin.Engine {
	r := newEngine(l, o)

	api := r.Group("/api/v1")

	// 登录/注册按 IP 额外限速
	authGroup := api.Group("/auth")
	authGroup.Use(mdw.RateLimitPerIP(rate.Limit(o.Limits.LoginRPS), o.Limits.LoginBurst))

	mountAuthActions(authGroup, forum, o)
	mountUserActions(api, forum)
	mountPostActions(api, forum)
	return r
}

type authOut struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// ---------- /auth/register /auth/login /auth/logout ----------

func mountAuthActions(g *gin.RouterGroup, forum Forum, o Options) {
	ez := httpez.New(g)

	httpez.RegisterAction(ez, httpez.Action[service.RegisterInput, authOut]{
		Method: http.MethodPost,
		Path:   "/register",
		Binder: httpez.BindJSON,
		Handler: func(c *gin.Context, in *service.RegisterInput) (authOut, error) {
			u, tok, err := forum.Register(c.Request.Context(), *in)
			if err != nil {
				return authOut{}, err
			}
			setSessionCookie(c, o, tok)
			return authOut{Token: tok, User: u}, nil
		},
	})

	httpez.RegisterAction(ez, httpez.Action[service.LoginInput, authOut]{
		Method: http.MethodPost,
		Path:   "/login",
		Binder: httpez.BindJSON,
		Handler: func(c *gin.Context, in *service.LoginInput) (authOut, error) {
			u, tok, err := forum.Login(c.Request.Context(), *in)
			if err != nil {
				return authOut{}, err
			}
			setSessionCookie(c, o, tok)
			return authOut{Token: tok, User: u}, nil
		},
	})

	// 无论令牌是否有效都清 cookie
	httpez.RegisterAction(ez, httpez.Action[struct{}, gin.H]{
		Method: http.MethodPost,
		Path:   "/logout",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			clearSessionCookie(c, o)
			if err := forum.Logout(c.Request.Context(), mdw.Token(c)); err != nil {
				return nil, err
			}
			return gin.H{}, nil
		},
	})
}

// ---------- /me ----------

func mountUserActions(g *gin.RouterGroup, forum Forum) {
	ez := httpez.New(g)

	httpez.RegisterAction(ez, httpez.Action[struct{}, *domain.User]{
		Method: http.MethodGet,
		Path:   "/me",
		Binder: httpez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.User, error) {
			return forum.CurrentUser(c.Request.Context(), mdw.Token(c))
		},
	})

	httpez.RegisterAction(ez, httpez.Action[service.ProfileInput, *domain.User]{
		Method: http.MethodPut,
		Path:   "/me",
		Binder: httpez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *service.ProfileInput) (*domain.User, error) {
			return forum.UpdateProfile(c.Request.Context(), mdw.Token(c), *in)
		},
	})
}

// ---------- /posts ----------

type postIn struct {
	Content string `json:"content"`
}

type postList struct {
	List []domain.Post `json:"list"`
}

func mountPostActions(g *gin.RouterGroup, forum Forum) {
	ez := httpez.New(g)

	httpez.RegisterAction(ez, httpez.Action[pageQ, postList]{
		Method: http.MethodGet,
		Path:   "/posts",
		Binder: httpez.BindQuery,
		Auth:   true,
		Handler: func(c *gin.Context, in *pageQ) (postList, error) {
			posts, err := forum.ListPosts(c.Request.Context(), mdw.Token(c), in.Offset, in.Limit)
			if err != nil {
				return postList{}, err
			}
			return postList{List: posts}, nil
		},
	})

	httpez.RegisterAction(ez, httpez.Action[postIn, *domain.Post]{
		Method: http.MethodPost,
		Path:   "/posts",
		Binder: httpez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *postIn) (*domain.Post, error) {
			return forum.CreatePost(c.Request.Context(), mdw.Token(c), in.Content)
		},
	})

	httpez.RegisterAction(ez, httpez.Action[struct{}, *domain.Post]{
		Method: http.MethodPost,
		Path:   "/posts/:id/like",
		Binder: httpez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.Post, error) {
			id, err := parseID(c)
			if err != nil {
				return nil, err
			}
			return forum.LikePost(c.Request.Context(), mdw.Token(c), id)
		},
	})
}

func parseID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, httpez.BadRequest("invalid id")
	}
	return uint(id), nil
}
