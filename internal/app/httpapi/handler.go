// Package httpapi exposes the application over HTTP: form-backed page
// routes that answer with redirects, JSON payloads for reads, and the
// JSON reaction endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	app "github.com/agora-social/agora/internal/app"
	"github.com/agora-social/agora/internal/app/domain/commerce"
	"github.com/agora-social/agora/internal/app/metrics"
	"github.com/agora-social/agora/internal/app/services/accounts"
	commercesvc "github.com/agora-social/agora/internal/app/services/commerce"
	"github.com/agora-social/agora/internal/app/services/feed"
	"github.com/agora-social/agora/internal/app/storage"
	"github.com/agora-social/agora/pkg/logger"
)

// SessionCookie is the name of the browser cookie carrying the session token.
const SessionCookie = "agora_session"

// Options tunes the HTTP surface.
type Options struct {
	// AuditFile, when set, receives audit entries as JSONL in addition to
	// the in-memory ring.
	AuditFile string
	// AuditMax bounds the in-memory audit ring. Zero selects the default.
	AuditMax int
	// ReactPerMinute rate-limits the reaction endpoint per client. Zero
	// disables limiting.
	ReactPerMinute int
	// AllowedOrigins enables CORS for the listed origins. "*" allows any.
	// Empty disables CORS handling entirely.
	AllowedOrigins []string
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	log   *logger.Logger
	audit *auditLog
}

// NewHandler returns the router exposing the full application surface.
func NewHandler(application *app.Application, log *logger.Logger, opts Options) (http.Handler, error) {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}

	sink, err := newFileAuditSink(opts.AuditFile)
	if err != nil {
		return nil, fmt.Errorf("open audit sink: %w", err)
	}

	h := &handler{
		app:   application,
		log:   log,
		audit: newAuditLog(opts.AuditMax, sink),
	}

	r := chi.NewRouter()
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", req.Method))
	})
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("no such page"))
	})

	if len(opts.AllowedOrigins) > 0 {
		r.Use(newCORSMiddleware(opts.AllowedOrigins).Handler)
	}
	r.Use(h.withSession)
	r.Use(h.withAudit)

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/audit", h.auditEntries)

	r.Get("/signup", h.signupPage)
	r.Post("/signup", h.signup)
	r.Get("/login", h.loginPage)
	r.Post("/login", h.login)
	r.HandleFunc("/logout", h.logout)

	r.Get("/users", h.listUsers)
	r.Get("/users/{id}", h.userProfile)

	r.Get("/home", h.home)
	r.Post("/home", h.createPost)
	r.Get("/post/{id}", h.postDetail)
	r.Get("/post/{id}/edit", h.editPostPage)
	r.Post("/post/{id}/edit", h.editPost)
	r.Get("/post/{id}/delete", h.deletePost)
	r.Post("/post/{id}/delete", h.deletePost)
	r.Post("/comments/create/{post_id}", h.createComment)

	react := h.rateLimited(opts.ReactPerMinute, http.HandlerFunc(h.react))
	r.Method(http.MethodPost, "/post/{id}/react", react)

	r.Get("/items", h.listItems)
	r.Get("/items/create", h.createItemPage)
	r.Post("/items/create", h.createItem)
	r.Get("/item/{id}", h.itemDetail)
	r.Post("/item/{id}/edit", h.editItem)

	r.Get("/order/create/{item_id}", h.orderFormPage)
	r.Post("/order/create/{item_id}", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/order/{id}", h.orderDetail)
	r.Get("/order/{id}/cancel", h.cancelOrder)
	r.Post("/order/{id}/cancel", h.cancelOrder)
	r.Get("/order/{id}/complete", h.completeOrder)
	r.Post("/order/{id}/complete", h.completeOrder)

	return r, nil
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

// --- accounts ---------------------------------------------------------------

func (h *handler) signupPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"form":   "signup",
		"fields": []string{"username", "display_name", "email", "password"},
	})
}

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	_, sess, err := h.app.Accounts.Signup(r.Context(), accounts.SignupParams{
		Username:    r.PostFormValue("username"),
		DisplayName: r.PostFormValue("display_name"),
		Email:       r.PostFormValue("email"),
		Password:    r.PostFormValue("password"),
	})
	if err != nil {
		writeError(w, createStatus(err), err)
		return
	}

	h.setSessionCookie(w, sess.Token, sess.ExpiresAt)
	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

func (h *handler) loginPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"form":   "login",
		"fields": []string{"username", "password"},
	})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	_, sess, err := h.app.Accounts.Login(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}

	h.setSessionCookie(w, sess.Token, sess.ExpiresAt)
	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		_ = h.app.Accounts.EndSession(r.Context(), cookie.Value)
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	accts, err := h.app.Accounts.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": accts})
}

func (h *handler) userProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.app.Accounts.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  profile.Account,
		"posts": profile.Posts,
	})
}

// --- feed -------------------------------------------------------------------

func (h *handler) home(w http.ResponseWriter, r *http.Request) {
	posts, err := h.app.Feed.ListPosts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	payload := map[string]any{"posts": posts}
	if viewer, ok := CurrentAccount(r.Context()); ok {
		payload["viewer"] = viewer
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *handler) createPost(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	post, err := h.app.Feed.CreatePost(r.Context(), viewer.ID,
		r.PostFormValue("content"), r.PostFormValue("image"), r.PostFormValue("video"))
	if err != nil {
		writeError(w, createStatus(err), err)
		return
	}
	http.Redirect(w, r, "/post/"+post.ID, http.StatusSeeOther)
}

func (h *handler) postDetail(w http.ResponseWriter, r *http.Request) {
	viewerID := ""
	if viewer, ok := CurrentAccount(r.Context()); ok {
		viewerID = viewer.ID
	}

	detail, err := h.app.Feed.GetDetail(r.Context(), chi.URLParam(r, "id"), viewerID)
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"post":            detail.Post,
		"comments":        detail.Comments,
		"counts":          detail.Counts,
		"viewer_reaction": detail.ViewerReaction,
	})
}

func (h *handler) editPostPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	post, err := h.app.Feed.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"form": "edit_post", "post": post})
}

func (h *handler) editPost(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// absent fields keep their stored values
	var params feed.EditParams
	if r.PostForm.Has("content") {
		v := r.PostFormValue("content")
		params.Content = &v
	}
	if r.PostForm.Has("image") {
		v := r.PostFormValue("image")
		params.Image = &v
	}
	if r.PostForm.Has("video") {
		v := r.PostFormValue("video")
		params.Video = &v
	}

	post, err := h.app.Feed.EditPost(r.Context(), chi.URLParam(r, "id"), params)
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	http.Redirect(w, r, "/post/"+post.ID, http.StatusSeeOther)
}

func (h *handler) deletePost(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	if err := h.app.Feed.DeletePost(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

func (h *handler) createComment(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	postID := chi.URLParam(r, "post_id")
	// blank comments are dropped silently; the redirect happens either way
	if _, _, err := h.app.Feed.CreateComment(r.Context(), postID, viewer.ID,
		r.PostFormValue("content"), r.PostFormValue("image"), r.PostFormValue("video")); err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	http.Redirect(w, r, "/post/"+postID, http.StatusSeeOther)
}

func (h *handler) react(w http.ResponseWriter, r *http.Request) {
	viewer, ok := CurrentAccount(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("login required"))
		return
	}

	var payload struct {
		Reaction string `json:"reaction"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	result, err := h.app.Feed.React(r.Context(), chi.URLParam(r, "id"), viewer.ID, payload.Reaction)
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}

	metrics.RecordReaction(result.Reaction.ReactionType, result.Created)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"reaction": result.Reaction.ReactionType,
		"created":  result.Created,
		"counts":   result.Counts,
	})
}

// --- commerce ---------------------------------------------------------------

func (h *handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.app.Commerce.ListItems(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *handler) createItemPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"form":   "create_item",
		"fields": []string{"name", "description", "price", "stock", "image"},
	})
}

func (h *handler) createItem(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	params, err := itemParamsFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := h.app.Commerce.CreateItem(r.Context(), params)
	if err != nil {
		writeError(w, createStatus(err), err)
		return
	}
	http.Redirect(w, r, "/item/"+item.ID, http.StatusSeeOther)
}

func (h *handler) itemDetail(w http.ResponseWriter, r *http.Request) {
	item, err := h.app.Commerce.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (h *handler) editItem(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	params, err := itemEditFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := h.app.Commerce.UpdateItem(r.Context(), chi.URLParam(r, "id"), params)
	if err != nil {
		writeError(w, createStatus(err), err)
		return
	}
	http.Redirect(w, r, "/item/"+item.ID, http.StatusSeeOther)
}

func itemParamsFromForm(r *http.Request) (commercesvc.ItemParams, error) {
	if err := r.ParseForm(); err != nil {
		return commercesvc.ItemParams{}, err
	}

	params := commercesvc.ItemParams{
		Name:        r.PostFormValue("name"),
		Description: r.PostFormValue("description"),
		Image:       r.PostFormValue("image"),
	}
	if raw := strings.TrimSpace(r.PostFormValue("price")); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return commercesvc.ItemParams{}, fmt.Errorf("invalid price %q", raw)
		}
		params.Price = price
	}
	if raw := strings.TrimSpace(r.PostFormValue("stock")); raw != "" {
		stock, err := strconv.Atoi(raw)
		if err != nil {
			return commercesvc.ItemParams{}, fmt.Errorf("invalid stock %q", raw)
		}
		params.Stock = stock
	}
	return params, nil
}

// itemEditFromForm keeps absent fields nil so the service only touches what
// the form actually submitted.
func itemEditFromForm(r *http.Request) (commercesvc.EditParams, error) {
	if err := r.ParseForm(); err != nil {
		return commercesvc.EditParams{}, err
	}

	var params commercesvc.EditParams
	if r.PostForm.Has("name") {
		v := r.PostFormValue("name")
		params.Name = &v
	}
	if r.PostForm.Has("description") {
		v := r.PostFormValue("description")
		params.Description = &v
	}
	if r.PostForm.Has("image") {
		v := r.PostFormValue("image")
		params.Image = &v
	}
	if r.PostForm.Has("price") {
		price, err := decimal.NewFromString(strings.TrimSpace(r.PostFormValue("price")))
		if err != nil {
			return commercesvc.EditParams{}, fmt.Errorf("invalid price %q", r.PostFormValue("price"))
		}
		params.Price = &price
	}
	if r.PostForm.Has("stock") {
		stock, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("stock")))
		if err != nil {
			return commercesvc.EditParams{}, fmt.Errorf("invalid stock %q", r.PostFormValue("stock"))
		}
		params.Stock = &stock
	}
	return params, nil
}

func (h *handler) orderFormPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	item, err := h.app.Commerce.GetItem(r.Context(), chi.URLParam(r, "item_id"))
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"form":   "create_order",
		"item":   item,
		"fields": []string{"item_ids", "quantities"},
	})
}

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	itemIDs := r.PostForm["item_ids"]
	if len(itemIDs) == 0 {
		// single-item shortcut from the item page
		itemIDs = []string{chi.URLParam(r, "item_id")}
	}
	rawQuantities := r.PostForm["quantities"]
	if len(rawQuantities) == 0 && len(itemIDs) == 1 {
		rawQuantities = []string{r.PostFormValue("quantity")}
	}

	quantities := make([]int, 0, len(rawQuantities))
	for _, raw := range rawQuantities {
		qty, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid quantity %q", raw))
			return
		}
		quantities = append(quantities, qty)
	}

	order, err := h.app.Commerce.CreateOrder(r.Context(), viewer.ID, itemIDs, quantities)
	if err != nil {
		writeError(w, createStatus(err), err)
		return
	}

	metrics.RecordOrderPlaced()
	http.Redirect(w, r, "/order/"+order.ID, http.StatusSeeOther)
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	orders, err := h.app.Commerce.ListOrders(r.Context(), viewer.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orderViews(orders)})
}

func (h *handler) orderDetail(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	detail, err := h.app.Commerce.GetOrder(r.Context(), chi.URLParam(r, "id"), viewer.ID)
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}

	lines := make([]map[string]any, 0, len(detail.Lines))
	for _, line := range detail.Lines {
		lines = append(lines, map[string]any{
			"item":     line.Item,
			"quantity": line.Quantity,
			"subtotal": line.Subtotal(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order": orderView(detail.Order),
		"lines": lines,
		"total": detail.Total,
	})
}

func (h *handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionOrder(w, r, h.app.Commerce.CancelOrder)
}

func (h *handler) completeOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionOrder(w, r, h.app.Commerce.CompleteOrder)
}

func (h *handler) transitionOrder(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, orderID, userID string) (commerce.Order, error)) {
	viewer, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	orderID := chi.URLParam(r, "id")
	order, err := fn(r.Context(), orderID, viewer.ID)
	if err != nil {
		writeError(w, errStatus(err), err)
		return
	}

	metrics.RecordOrderTransition(string(order.Status))
	http.Redirect(w, r, "/order/"+orderID, http.StatusSeeOther)
}

// orderView exposes the derived lifecycle flags alongside the status code.
func orderView(o commerce.Order) map[string]any {
	return map[string]any{
		"id":           o.ID,
		"user_id":      o.UserID,
		"status":       o.Status,
		"is_completed": o.Completed(),
		"is_canceled":  o.Canceled(),
		"created_at":   o.CreatedAt,
	}
}

func orderViews(orders []commerce.Order) []map[string]any {
	views := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderView(o))
	}
	return views
}

// --- helpers ----------------------------------------------------------------

func (h *handler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// errStatus maps service and storage sentinels onto HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicateUsername):
		return http.StatusConflict
	case errors.Is(err, accounts.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, feed.ErrEmptyReaction),
		errors.Is(err, feed.ErrUnknownReaction),
		errors.Is(err, commercesvc.ErrLengthMismatch),
		errors.Is(err, commercesvc.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, commercesvc.ErrNotOpen):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// createStatus is errStatus for form submissions: anything that is not a
// mapped sentinel counts as a validation failure.
func createStatus(err error) int {
	if status := errStatus(err); status != http.StatusInternalServerError {
		return status
	}
	return http.StatusBadRequest
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
