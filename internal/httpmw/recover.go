package httpmw

import (
	"net/http"

	"github.com/kestrelnet/zeronode/internal/log"
	"github.com/kestrelnet/zeronode/internal/xerrors"
)

// Recover converts handler panics into 500 responses. onPanic, if
// non-nil, fires once per recovered panic (metrics counter hook).
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					// The server uses this to abort in-flight writes;
					// re-panic so it keeps working.
					panic(v)
				}
				if onPanic != nil {
					onPanic()
				}

				var err error
				if e, ok := v.(error); ok {
					err = xerrors.Wrap(e, "panic")
				} else {
					err = xerrors.Newf("panic: %v", v)
				}
				logger.With(
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
				).Error(r.Context(), err, "httpserver panic recovered")

				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
