package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/httputil"
	"custodian/pkg/platform/retry"
	"custodian/pkg/requestcontext"
)

// ActorHeader names the acting user on mutating requests.
const ActorHeader = "X-Actor-ID"

func actorFrom(r *http.Request) (id.UserID, error) {
	actor, err := id.ParseUserID(r.Header.Get(ActorHeader))
	if err != nil {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid "+ActorHeader+" header")
	}
	return actor, nil
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

func pathID[T any](r *http.Request, param string, parse func(string) (T, error)) (T, error) {
	return parse(chi.URLParam(r, param))
}

// optionalID parses s when present.
func optionalID[T any](s string, parse func(string) (T, error)) (*T, error) {
	if s == "" {
		return nil, nil
	}
	v, err := parse(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// mutate authenticates the actor, runs op under the conflict retry policy and
// writes the result with status.
func mutate[T any](h *Handler, w http.ResponseWriter, r *http.Request, status int,
	op func(ctx context.Context, actor id.UserID) (T, error),
) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := retry.OnConflict(r.Context(), h.retry, func(ctx context.Context) (T, error) {
		return op(ctx, actor)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, status, result)
}

// read writes the result of a query.
func read[T any](h *Handler, w http.ResponseWriter, r *http.Request, op func(ctx context.Context) (T, error)) {
	result, err := op(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	code := dErrors.CodeOf(err)
	if code == "" || code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "request failed",
			"path", r.URL.Path, "error", err, "request_id", requestcontext.RequestID(ctx))
	} else if dErrors.HasReason(err, dErrors.ReasonPartialUpdate) {
		h.logger.WarnContext(ctx, "partial update",
			"path", r.URL.Path, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}
