package service

import "github.com/prometheus/client_golang/prometheus"

var (
	registrations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forum_registrations_total", Help: "Users registered",
	})
	logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_logins_total", Help: "Login attempts by result",
	}, []string{"result"})
	postsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forum_posts_created_total", Help: "Posts created",
	})
	likes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forum_likes_total", Help: "Likes applied",
	})
)

func init() { prometheus.MustRegister(registrations, logins, postsCreated, likes) }
