package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"vesta/internal/auth"
	"vesta/internal/broker"
	"vesta/internal/topics"
)

func (a *API) upgrader() *websocket.Upgrader {
	origins := a.cfg.Security.Origins()
	return &websocket.Upgrader{
		Subprotocols: []string{"v12.stomp"},
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowOrigin(origins, origin) != ""
		},
	}
}

// authorizeTopic lets users subscribe to their own private topics and to
// public listing counters.
func authorizeTopic(p auth.Principal, destination string) bool {
	if owner := topics.Owner(destination); owner != "" {
		return owner == p.UserID
	}
	return topics.IsFavoriteCount(destination)
}

func (a *API) brokerOptions() broker.Options {
	opts := broker.OptionsFromConfig(a.cfg.Realtime)
	opts.Authenticate = a.authenticate
	opts.Authorize = authorizeTopic
	opts.App = a.HandleAppSend
	return opts
}

// HandleWebSocket upgrades /ws to a STOMP session. A token on the upgrade
// request (header or access_token query) authenticates the session up
// front; otherwise the CONNECT frame must carry an Authorization header.
func (a *API) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var p *auth.Principal
	if token := auth.RequestToken(r); token != "" {
		resolved, err := a.authenticate(token)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		p = &resolved
	}

	conn, err := a.upgrader().Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	broker.NewClient(a.hub, conn, a.brokerOptions(), p).Serve()
}
