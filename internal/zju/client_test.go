package zju

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gradewatch/gradewatch/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEncryptPassword(t *testing.T) {
	// 'A' = 0x41 = 65; 65^3 mod 0x3E8(=1000) = 625 = 0x271.
	result, err := encryptPassword("A", "3", "3E8")
	require.NoError(t, err)
	assert.Equal(t, "271", result)

	_, err = encryptPassword("A", "zz", "3E8")
	assert.Error(t, err)

	_, err = encryptPassword("A", "3", "not-hex")
	assert.Error(t, err)
}

func newLoginTestServer(t *testing.T, postHandler http.HandlerFunc) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/cas/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			postHandler(w, r)
			return
		}
		fmt.Fprint(w, `<form><input name="execution" value="e1s1-token"/></form>`)
	})
	mux.HandleFunc("/cas/v2/getPubKey", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"exponent":"10001","modulus":"CAFEBABE00000000000000000000000000000000000000000000000000000001"}`)
	})

	return httptest.NewServer(mux)
}

func clientForServer(srv *httptest.Server) *Client {
	return NewClient(Config{
		AuthURL:   srv.URL + "/cas/login",
		PubKeyURL: srv.URL + "/cas/v2/getPubKey",
		PageURL:   srv.URL + "/zdjw/cjcx/cjcxjg",
		APIURL:    srv.URL + "/api/kkqk_cxXscjxx",
	}, testLogger())
}

func TestLogin_Success(t *testing.T) {
	var submitted map[string]string

	srv := newLoginTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		submitted = map[string]string{
			"username":  r.PostFormValue("username"),
			"password":  r.PostFormValue("password"),
			"execution": r.PostFormValue("execution"),
			"_eventId":  r.PostFormValue("_eventId"),
		}
		http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: "SESSION-TOKEN-1", Path: "/"})
		fmt.Fprint(w, "welcome")
	})
	t.Cleanup(srv.Close)

	cookie, err := clientForServer(srv).Login(context.Background(), "3190100000", "secret")
	require.NoError(t, err)
	assert.Equal(t, "SESSION-TOKEN-1", cookie)

	assert.Equal(t, "3190100000", submitted["username"])
	assert.Equal(t, "e1s1-token", submitted["execution"])
	assert.Equal(t, "submit", submitted["_eventId"])
	// The password is submitted in its encrypted form only.
	assert.NotEmpty(t, submitted["password"])
	assert.NotEqual(t, "secret", submitted["password"])
}

func TestLogin_BadCredentials(t *testing.T) {
	srv := newLoginTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<title>统一身份认证</title>`)
	})
	t.Cleanup(srv.Close)

	_, err := clientForServer(srv).Login(context.Background(), "user", "wrong")
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "账号或密码错误", appErr.UserMessage)
}

func TestLogin_MissingExecutionToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cas/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<form>no token here</form>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	_, err := clientForServer(srv).Login(context.Background(), "user", "pass")
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "解析统一身份认证页面失败", appErr.UserMessage)
}

func TestLogin_BrokenPubKey(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cas/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<input name="execution" value="tok"/>`)
	})
	mux.HandleFunc("/cas/v2/getPubKey", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json at all`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	_, err := clientForServer(srv).Login(context.Background(), "user", "pass")
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "获取密钥失败", appErr.UserMessage)
}

func TestLogin_SessionCookieMissing(t *testing.T) {
	srv := newLoginTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "logged in, but no cookie set")
	})
	t.Cleanup(srv.Close)

	_, err := clientForServer(srv).Login(context.Background(), "user", "pass")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cookie missing")
}

func TestFetchTranscriptRaw_FollowsRedirects(t *testing.T) {
	var apiCookie string

	mux := http.NewServeMux()
	mux.HandleFunc("/zdjw/cjcx/cjcxjg", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/hop1", http.StatusFound)
	})
	mux.HandleFunc("/hop1", func(w http.ResponseWriter, r *http.Request) {
		// The session cookie survives each hop.
		if _, err := r.Cookie(SessionCookieName); err != nil {
			http.Error(w, "no session", http.StatusUnauthorized)
			return
		}
		http.Redirect(w, r, "/hop2", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/hop2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "transcript page")
	})
	mux.HandleFunc("/api/kkqk_cxXscjxx", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(SessionCookieName); err == nil {
			apiCookie = c.Value
		}
		fmt.Fprint(w, `{"data":{"list":[{"xn":"2023-2024","xq":"春夏","kcmc":"高等数学","cj":"95","xf":3,"jd":4.0}]},"message":"success"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	raw, err := clientForServer(srv).FetchTranscriptRaw(context.Background(), "COOKIE-42")
	require.NoError(t, err)
	assert.Equal(t, "COOKIE-42", apiCookie)
	assert.Equal(t, `[{"xn":"2023-2024","xq":"春夏","kcmc":"高等数学","cj":"95","xf":3,"jd":4.0}]`, raw)
}

func TestFetchTranscriptRaw_TooManyRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/again", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClient(Config{
		PageURL: srv.URL + "/zdjw/cjcx/cjcxjg",
		APIURL:  srv.URL + "/api/kkqk_cxXscjxx",
	}, testLogger())

	_, err := client.FetchTranscriptRaw(context.Background(), "COOKIE")
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "E200", appErr.Code)
	assert.Equal(t, "访问成绩查询页面失败，可能是服务器故障", appErr.UserMessage)
}

func TestFetchTranscriptRaw_ExpiredSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/zdjw/cjcx/cjcxjg", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "page")
	})
	mux.HandleFunc("/api/kkqk_cxXscjxx", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":"please login again"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	_, err := clientForServer(srv).FetchTranscriptRaw(context.Background(), "STALE")
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "E100", appErr.Code)
	assert.Equal(t, "获取成绩单失败，可能是Cookie过期", appErr.UserMessage)
}
