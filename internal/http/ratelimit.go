package http

import (
	"fmt"
	"net/http"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/MrJamesThe3rd/docket/internal/http/auth"
)

// UploadLimit throttles uploads per owner, falling back to the client IP for unauthenticated requests.
// rate uses the limiter format, e.g. "30-M" for thirty per minute.
func UploadLimit(rate string, trustProxy bool) (func(http.Handler) http.Handler, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse upload rate: %w", err)
	}

	instance := limiter.New(memory.NewStore(), parsed, limiter.WithTrustForwardHeader(trustProxy))

	mw := stdlib.NewMiddleware(instance, stdlib.WithKeyGetter(func(r *http.Request) string {
		if owner, ok := auth.Owner(r.Context()); ok {
			return "owner:" + owner.String()
		}

		return "ip:" + instance.GetIPKey(r)
	}))

	return mw.Handler, nil
}
