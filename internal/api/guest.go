// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/guestflow/guestflow/internal/journey/model"
	xglog "github.com/guestflow/guestflow/internal/log"
)

// HeaderGuestToken is the anonymous guest credential. Clients persist the
// token locally; the server never sees any other identity.
const HeaderGuestToken = "X-Guest-Token"

type guestCtxKey struct{}

// withGuest resolves the guest record for the request credential and puts
// it on the context. A request without a token gets a fresh credential, so
// first contact needs no registration step; the minted token is echoed in
// the response header for the client to keep.
func (s *Server) withGuest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(HeaderGuestToken)
		if token == "" {
			token = uuid.NewString()
		}
		w.Header().Set(HeaderGuestToken, token)

		guest, err := s.Guests.GetOrCreate(r.Context(), s.ProjectID, token)
		if err != nil {
			alog := xglog.WithComponentFromContext(r.Context(), "api")
			alog.Error().Err(err).
				Msg("guest resolution failed")
			writeInternal(w)
			return
		}

		ctx := context.WithValue(r.Context(), guestCtxKey{}, guest)
		ctx = xglog.ContextWithGuestID(ctx, guest.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// guestFrom returns the guest resolved by withGuest. Handlers behind the
// middleware can rely on it being present.
func guestFrom(ctx context.Context) *model.Guest {
	g, _ := ctx.Value(guestCtxKey{}).(*model.Guest)
	return g
}
