package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	app "github.com/agora-social/agora/internal/app"
)

type client struct {
	t      *testing.T
	base   string
	http   *http.Client
	cookie *http.Cookie
}

func newTestServer(t *testing.T) (*httptest.Server, *app.Application) {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Options{}, nil)
	require.NoError(t, err)

	handler, err := NewHandler(application, nil, Options{})
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, application
}

func newClient(t *testing.T, srv *httptest.Server) *client {
	return &client{
		t:    t,
		base: srv.URL,
		http: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *client) do(method, path string, body io.Reader, contentType string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, body)
	require.NoError(c.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookie {
			if cookie.MaxAge < 0 {
				c.cookie = nil
			} else {
				c.cookie = cookie
			}
		}
	}
	return resp
}

func (c *client) postForm(path string, form url.Values) *http.Response {
	return c.do(http.MethodPost, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func (c *client) postJSON(path, body string) *http.Response {
	return c.do(http.MethodPost, path, strings.NewReader(body), "application/json")
}

func (c *client) get(path string) *http.Response {
	return c.do(http.MethodGet, path, nil, "")
}

func (c *client) signup(username string) {
	c.t.Helper()
	resp := c.postForm("/signup", url.Values{"username": {username}, "password": {"pw"}})
	defer resp.Body.Close()
	require.Equal(c.t, http.StatusSeeOther, resp.StatusCode)
	require.NotNil(c.t, c.cookie, "signup must establish a session")
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func TestSignupLoginLogout(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newClient(t, srv)

	c.signup("alice")

	home := decodeBody(t, c.get("/home"))
	viewer, ok := home["viewer"].(map[string]any)
	require.True(t, ok, "home must carry the viewer")
	require.Equal(t, "alice", viewer["Username"])

	resp := c.get("/logout")
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Nil(t, c.cookie)

	// duplicate username surfaces as a conflict, not a generic fault
	resp = c.postForm("/signup", url.Values{"username": {"alice"}, "password": {"pw"}})
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// wrong password and unknown user share one error
	resp = c.postForm("/login", url.Values{"username": {"alice"}, "password": {"bad"}})
	body := decodeBody(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid credentials", body["error"])

	resp = c.postForm("/login", url.Values{"username": {"alice"}, "password": {"pw"}})
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.NotNil(t, c.cookie)
}

func TestAnonymousMutationRedirectsWithoutEffect(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newClient(t, srv)

	resp := c.postForm("/home", url.Values{"content": {"sneaky"}})
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))

	home := decodeBody(t, c.get("/home"))
	posts, ok := home["posts"].([]any)
	require.True(t, ok)
	require.Empty(t, posts, "anonymous POST must not create a post")
}

func TestPostCommentFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newClient(t, srv)
	c.signup("alice")

	resp := c.postForm("/home", url.Values{"content": {"  hello feed  "}})
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	location := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(location, "/post/"))

	detail := decodeBody(t, c.get(location))
	post := detail["post"].(map[string]any)
	require.Equal(t, "hello feed", post["Content"])

	postID := strings.TrimPrefix(location, "/post/")

	resp = c.postForm("/comments/create/"+postID, url.Values{
		"content": {"first!"}, "image": {"cheer.gif"},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// blank comments redirect without storing anything
	resp = c.postForm("/comments/create/"+postID, url.Values{"content": {"   "}})
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	detail = decodeBody(t, c.get(location))
	comments := detail["comments"].([]any)
	require.Len(t, comments, 1)
	comment := comments[0].(map[string]any)
	require.Equal(t, "first!", comment["Content"])
	require.Equal(t, "cheer.gif", comment["Image"])

	// partial edit keeps the untouched fields
	resp = c.postForm(location+"/edit", url.Values{"image": {"pic.png"}})
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	detail = decodeBody(t, c.get(location))
	post = detail["post"].(map[string]any)
	require.Equal(t, "hello feed", post["Content"])
	require.Equal(t, "pic.png", post["Image"])

	resp = c.postForm(location+"/delete", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp = c.get(location)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReactEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := newClient(t, srv)
	alice.signup("alice")

	resp := alice.postForm("/home", url.Values{"content": {"react to me"}})
	resp.Body.Close()
	postID := strings.TrimPrefix(resp.Header.Get("Location"), "/post/")
	reactPath := "/post/" + postID + "/react"

	// unauthenticated JSON calls get 401, not a redirect
	anon := newClient(t, srv)
	resp = anon.postJSON(reactPath, `{"reaction":"like"}`)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// wrong verb
	resp = alice.get(reactPath)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	// malformed body, unknown signal, empty signal
	for _, body := range []string{"{", `{"reaction":"meh"}`, `{"reaction":""}`} {
		resp = alice.postJSON(reactPath, body)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %q", body)
	}

	// missing post
	resp = alice.postJSON("/post/nope/react", `{"reaction":"like"}`)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	bob := newClient(t, srv)
	bob.signup("bob")

	resp = alice.postJSON(reactPath, `{"reaction":"like"}`)
	payload := decodeBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, payload["success"])
	require.Equal(t, true, payload["created"])

	resp = bob.postJSON(reactPath, `{"reaction":"love"}`)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// alice switches: her row is replaced, the distribution collapses to love:2
	resp = alice.postJSON(reactPath, `{"reaction":"love"}`)
	payload = decodeBody(t, resp)
	require.Equal(t, false, payload["created"])
	counts := payload["counts"].([]any)
	require.Len(t, counts, 1)
	first := counts[0].(map[string]any)
	require.Equal(t, "love", first["reaction_type"])
	require.Equal(t, float64(2), first["count"])

	// emoji aliases normalize to canonical codes
	resp = bob.postJSON(reactPath, `{"reaction":"😂"}`)
	payload = decodeBody(t, resp)
	require.Equal(t, "haha", payload["reaction"])
}

func TestCommerceFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newClient(t, srv)
	c.signup("shopper")

	// catalog
	resp := c.postForm("/items/create", url.Values{
		"name": {"widget"}, "price": {"9.99"}, "stock": {"7"}, "description": {"a widget"},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	itemID := strings.TrimPrefix(resp.Header.Get("Location"), "/item/")

	items := decodeBody(t, c.get("/items"))
	require.Len(t, items["items"].([]any), 1)

	itemBody := decodeBody(t, c.get("/item/"+itemID))
	item := itemBody["item"].(map[string]any)
	require.Equal(t, "9.99", item["Price"])
	require.Equal(t, float64(7), item["Stock"])

	resp = c.postForm("/items/create", url.Values{"name": {"bad"}, "price": {"not-a-price"}})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// partial edit: only the submitted fields change, and zero is a value
	resp = c.postForm("/item/"+itemID+"/edit", url.Values{"price": {"0.00"}, "description": {""}})
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	itemBody = decodeBody(t, c.get("/item/"+itemID))
	item = itemBody["item"].(map[string]any)
	require.Equal(t, "0.00", item["Price"])
	require.Equal(t, "", item["Description"])
	require.Equal(t, "widget", item["Name"])
	require.Equal(t, float64(7), item["Stock"])

	resp = c.postForm("/item/"+itemID+"/edit", url.Values{"price": {"9.99"}})
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// order with mismatched parallel lists is rejected outright
	resp = c.postForm("/order/create/"+itemID, url.Values{
		"item_ids": {itemID}, "quantities": {"1", "2"},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = c.postForm("/order/create/"+itemID, url.Values{
		"item_ids": {itemID}, "quantities": {"3"},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	orderPath := resp.Header.Get("Location")

	detail := decodeBody(t, c.get(orderPath))
	order := detail["order"].(map[string]any)
	require.Equal(t, "open", order["status"])
	require.Equal(t, false, order["is_completed"])
	require.Equal(t, false, order["is_canceled"])
	require.Equal(t, "29.97", detail["total"])

	// lifecycle: complete, then any further transition conflicts
	resp = c.postForm(orderPath+"/complete", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	detail = decodeBody(t, c.get(orderPath))
	order = detail["order"].(map[string]any)
	require.Equal(t, true, order["is_completed"])
	require.Equal(t, false, order["is_canceled"])

	resp = c.postForm(orderPath+"/cancel", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// other users cannot see the order at all
	stranger := newClient(t, srv)
	stranger.signup("stranger")
	resp = stranger.get(orderPath)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	orders := decodeBody(t, c.get("/orders"))
	require.Len(t, orders["orders"].([]any), 1)
}

func TestAuditTrail(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newClient(t, srv)
	c.signup("alice")

	resp := c.get("/home")
	resp.Body.Close()

	auditResp := c.get("/audit")
	defer auditResp.Body.Close()
	require.Equal(t, http.StatusOK, auditResp.StatusCode)

	var entries []map[string]any
	require.NoError(t, json.NewDecoder(auditResp.Body).Decode(&entries))
	require.NotEmpty(t, entries)

	var sawHome bool
	for _, entry := range entries {
		if entry["path"] == "/home" && entry["user"] == "alice" {
			sawHome = true
		}
	}
	require.True(t, sawHome, "audit must record the authenticated /home request")
}

func TestRateLimitedReact(t *testing.T) {
	application, err := app.New(app.Stores{}, app.Options{}, nil)
	require.NoError(t, err)
	handler, err := NewHandler(application, nil, Options{ReactPerMinute: 2})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	c := newClient(t, srv)
	c.signup("alice")

	resp := c.postForm("/home", url.Values{"content": {"post"}})
	resp.Body.Close()
	reactPath := resp.Header.Get("Location") + "/react"

	codes := []string{`{"reaction":"like"}`, `{"reaction":"love"}`, `{"reaction":"wow"}`}
	statuses := make([]int, 0, len(codes))
	for _, body := range codes {
		r := c.postJSON(reactPath, body)
		r.Body.Close()
		statuses = append(statuses, r.StatusCode)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}

func TestCORSHeaders(t *testing.T) {
	application, err := app.New(app.Stores{}, app.Options{}, nil)
	require.NoError(t, err)
	handler, err := NewHandler(application, nil, Options{AllowedOrigins: []string{"https://app.example.com"}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	// preflight from an allowed origin
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/post/abc/react", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	// unknown origins get no CORS headers
	req, err = http.NewRequest(http.MethodGet, srv.URL+"/items", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example.net")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	// a server built without origins never answers preflight specially
	plain, err := NewHandler(application, nil, Options{})
	require.NoError(t, err)
	plainSrv := httptest.NewServer(plain)
	defer plainSrv.Close()

	req, err = http.NewRequest(http.MethodOptions, plainSrv.URL+"/items", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
