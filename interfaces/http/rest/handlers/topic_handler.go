package handlers

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/VadimShubkin/ii/application/commands"
	"github.com/VadimShubkin/ii/application/commands/bus"
	"github.com/VadimShubkin/ii/application/moderation"
	"github.com/VadimShubkin/ii/application/queries"
	"github.com/VadimShubkin/ii/pkg/common"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxImportBody caps the raw newline separated import payload
const maxImportBody = 4 << 20

// Reloader drops cached topic lookups
type Reloader interface {
	Reload(ctx context.Context) error
}

// TopicHandler serves /api/topic. Parameters arrive as query or form
// values; import takes the raw request body.
type TopicHandler struct {
	commandBus *bus.CommandBus
	queries    *queries.TopicQueries
	reloader   Reloader
	errors     *apperrors.ErrorHandler
	logger     *zap.Logger
}

// NewTopicHandler creates a new topic handler
func NewTopicHandler(commandBus *bus.CommandBus, q *queries.TopicQueries, reloader Reloader, errHandler *apperrors.ErrorHandler, logger *zap.Logger) *TopicHandler {
	return &TopicHandler{
		commandBus: commandBus,
		queries:    q,
		reloader:   reloader,
		errors:     errHandler,
		logger:     logger,
	}
}

// Routes mounts the topic endpoints on r
func (h *TopicHandler) Routes(r chi.Router) {
	r.Get("/", h.GetTopic)
	r.Get("/for/{uri}", h.TopicsFor)
	r.Post("/import", h.Import)
	r.Post("/for", h.LinkResource)
	r.Post("/for/items-range", h.LinkItemsRange)
	r.Post("/update-rate", h.UpdateRate)
	r.Post("/update-comment", h.UpdateComment)
	r.Post("/unlink-uri", h.UnlinkURI)
	r.Get("/suggest", h.Suggest)
	r.Post("/add-child", h.AddChild)
	r.Post("/unlink", h.Unlink)
	r.Post("/merge", h.Merge)
	r.Post("/add-related", h.AddRelated)
	r.Get("/children", h.Children)
	r.Get("/parents", h.Parents)
	r.Post("/reload", h.Reload)
	r.Post("/bulk/link", h.BulkLink)
	r.Post("/bulk/unlink", h.BulkUnlink)
}

// GetTopic handles GET /api/topic?name=&includeResources=
func (h *TopicHandler) GetTopic(w http.ResponseWriter, r *http.Request) {
	includeResources, err := optionalBool(r, "includeResources")
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	view, err := h.queries.GetTopic(r.Context(), queries.GetTopicQuery{
		Name:             r.FormValue("name"),
		IncludeResources: includeResources,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, view)
}

// TopicsFor handles GET /api/topic/for/{uri}
func (h *TopicHandler) TopicsFor(w http.ResponseWriter, r *http.Request) {
	uri := chi.URLParam(r, "uri")
	if decoded, err := url.PathUnescape(uri); err == nil {
		uri = decoded
	}
	linked, err := h.queries.TopicsFor(r.Context(), uri)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, linked)
}

// Import handles POST /api/topic/import with one topic name per line
func (h *TopicHandler) Import(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBody))
	if err != nil {
		h.errors.Handle(w, r, apperrors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}
	h.send(w, r, commands.NewImportTopicsCommand(string(body)))
}

// LinkResource handles POST /api/topic/for
func (h *TopicHandler) LinkResource(w http.ResponseWriter, r *http.Request) {
	rate, err := optionalFloat(r, "rate")
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.send(w, r, commands.LinkResourceCommand{
		URI:       r.FormValue("uri"),
		TopicName: r.FormValue("name"),
		Quote:     optionalString(r, "quote"),
		Comment:   optionalString(r, "comment"),
		Rate:      rate,
	})
}

// LinkItemsRange handles POST /api/topic/for/items-range
func (h *TopicHandler) LinkItemsRange(w http.ResponseWriter, r *http.Request) {
	rate, err := optionalFloat(r, "rate")
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.send(w, r, commands.LinkItemsRangeCommand{
		From:      r.FormValue("from"),
		To:        r.FormValue("to"),
		TopicName: r.FormValue("topicName"),
		RangeName: r.FormValue("rangeName"),
		Quote:     optionalString(r, "quote"),
		Comment:   optionalString(r, "comment"),
		Rate:      rate,
	})
}

// UpdateRate handles POST /api/topic/update-rate
func (h *TopicHandler) UpdateRate(w http.ResponseWriter, r *http.Request) {
	rate, err := optionalFloat(r, "rate")
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.send(w, r, commands.UpdateRateCommand{
		ForURI:    r.FormValue("forUri"),
		TopicName: r.FormValue("name"),
		Rate:      rate,
	})
}

// UpdateComment handles POST /api/topic/update-comment
func (h *TopicHandler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.UpdateCommentCommand{
		ForURI:    r.FormValue("forUri"),
		TopicName: r.FormValue("name"),
		Comment:   r.FormValue("comment"),
	})
}

// UnlinkURI handles POST /api/topic/unlink-uri
func (h *TopicHandler) UnlinkURI(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.UnlinkResourceCommand{
		URI:      r.FormValue("uri"),
		TopicURI: r.FormValue("topicUri"),
	})
}

// Suggest handles GET /api/topic/suggest?q=
func (h *TopicHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	names, err := h.queries.Suggest(r.Context(), r.FormValue("q"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, names)
}

// AddChild handles POST /api/topic/add-child
func (h *TopicHandler) AddChild(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.AddChildCommand{
		Name:  r.FormValue("name"),
		Child: r.FormValue("child"),
	})
}

// Unlink handles POST /api/topic/unlink
func (h *TopicHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.UnlinkTopicCommand{
		Name:   r.FormValue("name"),
		Linked: r.FormValue("linked"),
	})
}

// Merge handles POST /api/topic/merge
func (h *TopicHandler) Merge(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.MergeTopicsCommand{
		Main:      r.FormValue("main"),
		MergeInto: r.FormValue("mergeInto"),
	})
}

// AddRelated handles POST /api/topic/add-related
func (h *TopicHandler) AddRelated(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.AddRelatedCommand{
		Name:    r.FormValue("name"),
		Related: r.FormValue("related"),
	})
}

// Children handles GET /api/topic/children?name=
func (h *TopicHandler) Children(w http.ResponseWriter, r *http.Request) {
	children, err := h.queries.Children(r.Context(), r.FormValue("name"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, children)
}

// Parents handles GET /api/topic/parents?name=
func (h *TopicHandler) Parents(w http.ResponseWriter, r *http.Request) {
	parents, err := h.queries.Parents(r.Context(), r.FormValue("name"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, parents)
}

// Reload handles POST /api/topic/reload
func (h *TopicHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.reloader.Reload(r.Context()); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"message": "Topic index reloaded"})
}

// BulkLink handles POST /api/topic/bulk/link
func (h *TopicHandler) BulkLink(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.BulkLinkResourcesCommand{
		TopicName:    r.FormValue("topicName"),
		ResourceURIs: formValues(r, "resourceUris"),
	})
}

// BulkUnlink handles POST /api/topic/bulk/unlink
func (h *TopicHandler) BulkUnlink(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.BulkUnlinkResourcesCommand{
		TopicName:    r.FormValue("topicName"),
		ResourceURIs: formValues(r, "resourceUris"),
	})
}

// send dispatches cmd and renders its outcome: 200 with the result when
// the write ran, 202 with the pending id when it was queued.
func (h *TopicHandler) send(w http.ResponseWriter, r *http.Request, cmd bus.Command) {
	result, err := h.commandBus.Send(r.Context(), cmd)
	if err != nil {
		h.logger.Debug("Command failed",
			zap.String("command", cmd.CommandName()),
			zap.String("actor", common.Actor(r.Context())),
			zap.Error(err),
		)
		h.errors.Handle(w, r, err)
		return
	}

	outcome, ok := result.(*moderation.Outcome)
	if !ok {
		common.RespondJSON(w, http.StatusOK, result)
		return
	}
	if outcome.Pending() {
		common.RespondPending(w, string(outcome.Action), outcome.PendingID)
		return
	}
	common.RespondJSON(w, http.StatusOK, outcome.Result)
}

func optionalString(r *http.Request, key string) *string {
	if _, ok := formLookup(r, key); !ok {
		return nil
	}
	v := r.FormValue(key)
	return &v
}

func optionalFloat(r *http.Request, key string) (*float64, error) {
	raw, ok := formLookup(r, key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil, apperrors.NewValidationError(key + " must be a number")
	}
	return &v, nil
}

func optionalBool(r *http.Request, key string) (bool, error) {
	raw, ok := formLookup(r, key)
	if !ok || raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.NewValidationError(key + " must be a boolean")
	}
	return v, nil
}

// formLookup distinguishes an absent parameter from an empty one
func formLookup(r *http.Request, key string) (string, bool) {
	if r.Form == nil {
		_ = r.ParseMultipartForm(32 << 20)
	}
	values, ok := r.Form[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// formValues accepts both repeated keys and a comma separated list
func formValues(r *http.Request, key string) []string {
	if _, ok := formLookup(r, key); !ok {
		return nil
	}
	var out []string
	for _, v := range r.Form[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
