package library

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/libseat/internal/reservation"
	"github.com/example/libseat/internal/seat"
)

type fakeBackend struct {
	t        *testing.T
	password string
	orders   []map[string]any
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case loginPath:
		assert.Equal(b.t, http.MethodPost, r.Method)
		assert.NoError(b.t, r.ParseForm())
		assert.Equal(b.t, "F2D227C8", r.PostForm.Get("__VIEWSTATEGENERATOR"))
		assert.NotEmpty(b.t, r.PostForm.Get("__VIEWSTATE"))
		assert.NotEmpty(b.t, r.PostForm.Get("__EVENTVALIDATION"))
		assert.Equal(b.t, "登 录  ", r.PostForm.Get("Button1"))
		_, hasHF := r.PostForm["hfurl"]
		assert.True(b.t, hasHF)
		if r.PostForm.Get("tbUserName") != "2021001" || r.PostForm.Get("tbPassWord") != b.password {
			_, _ = w.Write([]byte("<span>请输入用户名</span>"))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "abc", Path: "/"})
		_, _ = w.Write([]byte("<html>座位预约</html>"))

	case reservePath:
		assert.Equal(b.t, addOrderMethod, r.Header.Get(ajaxMethodHeader))
		assert.Contains(b.t, r.Header.Get("User-Agent"), "MicroMessenger")
		assert.Equal(b.t, "http://"+r.Host, r.Header.Get("Origin"))
		assert.Equal(b.t, "http://"+r.Host+refererPath, r.Header.Get("Referer"))
		if c, err := r.Cookie("ASP.NET_SessionId"); err != nil || c.Value != "abc" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("请登录"))
			return
		}
		var order map[string]any
		assert.NoError(b.t, json.NewDecoder(r.Body).Decode(&order))
		b.orders = append(b.orders, order)
		if len(b.orders) == 1 {
			_, _ = w.Write([]byte(`{"value":"座位冲突"}`))
			return
		}
		_, _ = w.Write([]byte(`{"value":"预约成功"}`))

	default:
		http.NotFound(w, r)
	}
}

func TestClient_LoginAndSubmitCarryCookies(t *testing.T) {
	backend := &fakeBackend{t: t, password: "secret"}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	ep := DefaultEndpoint()
	ep.BaseURL = srv.URL
	c, err := New(ep, nil)
	require.NoError(t, err)

	ctx := context.Background()
	body, err := c.Login(ctx, reservation.Credentials{Account: "2021001", Password: "secret"})
	require.NoError(t, err)
	assert.NotContains(t, body, "请输入用户名")

	req := reservation.Request{Date: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), SlotID: 2683, Start: "08:00", End: "12:00"}
	body, err = c.Submit(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, body, "冲突")

	require.Len(t, backend.orders, 1)
	assert.Equal(t, "2026-10-17", backend.orders[0]["atDate"])
	assert.EqualValues(t, 2683, backend.orders[0]["sid"])
	assert.Equal(t, "08:00", backend.orders[0]["st"])
	assert.Equal(t, "12:00", backend.orders[0]["et"])
}

func TestClient_NonOKStatusStillReturnsBody(t *testing.T) {
	backend := &fakeBackend{t: t, password: "secret"}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	ep := DefaultEndpoint()
	ep.BaseURL = srv.URL
	c, err := New(ep, nil)
	require.NoError(t, err)

	body, err := c.Submit(context.Background(), reservation.Request{Date: time.Now(), SlotID: 1, Start: "08:00", End: "09:00"})
	require.NoError(t, err)
	assert.Equal(t, "请登录", body)
}

func TestClient_WithSession(t *testing.T) {
	backend := &fakeBackend{t: t, password: "secret"}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	ep := DefaultEndpoint()
	ep.BaseURL = srv.URL
	c, err := New(ep, nil)
	require.NoError(t, err)

	var slept []time.Duration
	s := reservation.NewSession(c, seat.NewResolver(seat.DefaultTable()),
		reservation.WithSleeper(func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}))

	out, err := s.Reserve(context.Background(), reservation.Order{
		Credentials: reservation.Credentials{Account: "2021001", Password: "secret"},
		Code:        "ngg3e90",
		Day:         reservation.Today,
		Start:       "08:00",
		End:         "10:00",
	})
	require.NoError(t, err)
	assert.Equal(t, reservation.StateSuccess, out.State)
	assert.Equal(t, 2684, out.SlotID)
	require.Len(t, backend.orders, 2)
	assert.EqualValues(t, 2683, backend.orders[0]["sid"])
	assert.EqualValues(t, 2684, backend.orders[1]["sid"])
	assert.Len(t, slept, 1)
}

func TestClient_BadPassword(t *testing.T) {
	backend := &fakeBackend{t: t, password: "secret"}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	ep := DefaultEndpoint()
	ep.BaseURL = srv.URL
	c, err := New(ep, nil)
	require.NoError(t, err)

	s := reservation.NewSession(c, seat.NewResolver(seat.DefaultTable()))
	_, err = s.Reserve(context.Background(), reservation.Order{
		Credentials: reservation.Credentials{Account: "2021001", Password: "wrong"},
		Code:        "nbk1",
		Start:       "08:00",
		End:         "10:00",
	})
	require.Error(t, err)
	assert.Equal(t, reservation.KindAuthentication, reservation.KindOf(err))
	assert.Empty(t, backend.orders)
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	_, err := New(Endpoint{BaseURL: "::not a url"}, nil)
	assert.Error(t, err)

	c, err := New(Endpoint{}, nil)
	require.NoError(t, err)
	u, _ := url.Parse(DefaultBaseURL)
	assert.Equal(t, u.Host, c.base.Host)
}
