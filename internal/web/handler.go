// Package web serves the HTML front end: alias search, the submission form,
// record amendment and the per-user recent list.
package web

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/franz/pjsk-record/internal/alias"
	"github.com/franz/pjsk-record/internal/record"
	"github.com/franz/pjsk-record/internal/refdata"
	"github.com/franz/pjsk-record/internal/score"
	"github.com/franz/pjsk-record/internal/song"
	"github.com/franz/pjsk-record/internal/store"
	"github.com/franz/pjsk-record/internal/util"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Service is what the handlers need from the record service
type Service interface {
	Submit(ctx context.Context, sub record.Submission) (*record.Result, error)
	Amend(ctx context.Context, key store.Key, sub record.Submission) (*record.Result, error)
	Record(ctx context.Context, key store.Key) (*record.Result, error)
	Recent(ctx context.Context, user string) ([]*store.Record, error)
	SongInfo(songID int, difficulty string) (*song.Info, error)
	ResolveAlias(ctx context.Context, name string) (*alias.Match, error)
}

// Handler serves the HTML pages
type Handler struct {
	svc     Service
	logger  *zap.Logger
	metrics *Metrics
	pages   pages
}

// Config holds handler dependencies. Logger defaults to util.Logger().
type Config struct {
	Service Service
	Logger  *zap.Logger
	Metrics *Metrics
}

// NewHandler creates a new Handler
func NewHandler(cfg *Config) (*Handler, error) {
	p, err := loadPages()
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = util.Logger()
	}

	return &Handler{
		svc:     cfg.Service,
		logger:  logger,
		metrics: cfg.Metrics,
		pages:   p,
	}, nil
}

// Routes returns the router for every page
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(withRequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/", h.home)
	r.Get("/redirect/alias", h.redirectAlias)
	r.Get("/form/{musicId}", h.form)
	r.Get("/recent", h.recentQuery)
	r.Get("/recent/{user}", h.recent)
	r.Post("/record/{musicId}", h.submit)
	r.Get("/record/{time}/{user}/edit", h.editForm)
	r.Post("/record/{time}/{user}", h.amend)

	return r
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageHome, nil)
}

func (h *Handler) redirectAlias(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("alias")
	if strings.TrimSpace(name) == "" {
		h.fail(w, r, fmt.Errorf("alias cannot be empty: %w", util.ErrNotFound))
		return
	}

	match, err := h.svc.ResolveAlias(r.Context(), name)
	if h.metrics != nil {
		h.metrics.AliasLookups.WithLabelValues(outcome(err)).Inc()
	}
	if err != nil {
		// Every resolver failure reads as "no match" to the user
		h.render(w, r, StatusFromError(err), pageError, errorView{Message: NotFoundMessage})
		h.logFailure(r, err)
		return
	}

	http.Redirect(w, r, fmt.Sprintf("/form/%d", match.MusicID), http.StatusSeeOther)
}

func (h *Handler) form(w http.ResponseWriter, r *http.Request) {
	musicID, err := pathInt(r, "musicId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	view, err := h.formFor(musicID, formDefaults{})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view.Action = fmt.Sprintf("/record/%d", musicID)

	h.render(w, r, http.StatusOK, pageForm, view)
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.svc.Record(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	rec := res.Record
	view, err := h.formFor(rec.SongID, formDefaults{
		Difficulty: rec.Difficulty,
		User:       rec.User,
		Great:      rec.Great,
		Good:       rec.Good,
		Bad:        rec.Bad,
		Miss:       rec.Miss,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view.Action = recordPath(rec)
	view.Editing = true
	if view.Title == "" {
		view.Title = rec.SongName
	}

	h.render(w, r, http.StatusOK, pageForm, view)
}

// formFor builds the form for a song, listing its difficulties in game order
func (h *Handler) formFor(musicID int, defaults formDefaults) (*formView, error) {
	info, err := h.svc.SongInfo(musicID, "")
	if err != nil {
		return nil, err
	}
	if info.Title == "" && len(info.Difficulties) == 0 {
		return nil, fmt.Errorf("song %d: %w", musicID, util.ErrNotFound)
	}

	view := &formView{MusicID: musicID, Title: info.Title, Default: defaults}
	for _, d := range refdata.Difficulties {
		if level, ok := info.Difficulties[d]; ok {
			view.Difficulties = append(view.Difficulties, difficultyOption{Label: d, Level: level})
		}
	}
	return view, nil
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	musicID, err := pathInt(r, "musicId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	sub, err := parseSubmission(r)
	if err != nil {
		h.countSubmission("create", err)
		h.fail(w, r, err)
		return
	}
	sub.SongID = musicID

	res, err := h.svc.Submit(r.Context(), sub)
	h.countSubmission("create", err)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.render(w, r, http.StatusCreated, pageSuccess, res)
}

func (h *Handler) amend(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	sub, err := parseSubmission(r)
	if err != nil {
		h.countSubmission("amend", err)
		h.fail(w, r, err)
		return
	}

	res, err := h.svc.Amend(r.Context(), key, sub)
	h.countSubmission("amend", err)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, pageSuccess, res)
}

func (h *Handler) recentQuery(w http.ResponseWriter, r *http.Request) {
	user := strings.TrimSpace(r.URL.Query().Get("user"))
	if user == "" {
		h.fail(w, r, fmt.Errorf("user cannot be empty: %w", util.ErrInvalidInput))
		return
	}
	http.Redirect(w, r, "/recent/"+url.PathEscape(user), http.StatusSeeOther)
}

func (h *Handler) recent(w http.ResponseWriter, r *http.Request) {
	user, err := pathString(r, "user")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	records, err := h.svc.Recent(r.Context(), user)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, pageRecent, recentView{User: user, Records: records})
}

func (h *Handler) countSubmission(kind string, err error) {
	if h.metrics != nil {
		h.metrics.Submissions.WithLabelValues(kind, outcome(err)).Inc()
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	if err := h.pages.render(w, status, page, data); err != nil {
		h.logger.Error("render failed", zap.Error(err), zap.String("request_id", RequestID(r.Context())))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// fail renders the error page with the status err maps to
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logFailure(r, err)
	h.render(w, r, StatusFromError(err), pageError, errorView{Message: userMessage(err)})
}

func (h *Handler) logFailure(r *http.Request, err error) {
	status := StatusFromError(err)
	fields := []zap.Field{
		zap.Error(err),
		zap.Int("status", status),
		zap.String("path", r.URL.Path),
		zap.String("request_id", RequestID(r.Context())),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Warn("request failed", fields...)
	}
}

// pathString returns a decoded path parameter. chi matches on RawPath when
// the request has one, so only then is the parameter still escaped.
func pathString(r *http.Request, name string) (string, error) {
	value := chi.URLParam(r, name)
	if r.URL.RawPath != "" {
		var err error
		if value, err = url.PathUnescape(value); err != nil {
			return "", fmt.Errorf("bad %s in path: %w", name, util.ErrInvalidInput)
		}
	}
	if value == "" {
		return "", fmt.Errorf("bad %s in path: %w", name, util.ErrInvalidInput)
	}
	return value, nil
}

func pathInt(r *http.Request, name string) (int, error) {
	value, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, fmt.Errorf("bad %s in path: %w", name, util.ErrInvalidInput)
	}
	return value, nil
}

func pathKey(r *http.Request) (store.Key, error) {
	t, err := strconv.ParseInt(chi.URLParam(r, "time"), 10, 64)
	if err != nil {
		return store.Key{}, fmt.Errorf("bad time in path: %w", util.ErrInvalidInput)
	}
	user, err := pathString(r, "user")
	if err != nil {
		return store.Key{}, err
	}
	return store.Key{Time: t, User: user}, nil
}

// parseSubmission reads the form fields; blank counts mean zero
func parseSubmission(r *http.Request) (record.Submission, error) {
	if err := r.ParseForm(); err != nil {
		return record.Submission{}, fmt.Errorf("failed to parse form: %w", util.ErrInvalidInput)
	}

	var counts score.Counts
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"great", &counts.Great},
		{"good", &counts.Good},
		{"bad", &counts.Bad},
		{"miss", &counts.Miss},
	} {
		raw := strings.TrimSpace(r.PostForm.Get(f.name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return record.Submission{}, fmt.Errorf("%s must be a number: %w", f.name, util.ErrInvalidInput)
		}
		*f.dst = n
	}

	return record.Submission{
		Difficulty: r.PostForm.Get("difficulty"),
		User:       r.PostForm.Get("user"),
		Counts:     counts,
	}, nil
}
