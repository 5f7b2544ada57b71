package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"inkwell/internal/config"
	"inkwell/internal/notifications"
	"inkwell/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "SecurePass12!@"

type recordingMailer struct {
	mu   sync.Mutex
	sent []notifications.Mail
}

func (m *recordingMailer) Send(_ context.Context, mail notifications.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return nil
}

func (m *recordingMailer) To(addr string) []notifications.Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notifications.Mail
	for _, mail := range m.sent {
		if mail.To == addr {
			out = append(out, mail)
		}
	}
	return out
}

type testServer struct {
	srv    *Server
	app    *fiber.App
	mailer *recordingMailer
	redis  *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	mailer := &recordingMailer{}
	cfg := &config.Config{
		JWTSecret:     "test-secret-key-12345678901234567890123456789012",
		JWTIssuer:     "inkwell-api",
		JWTAudience:   "inkwell-client",
		Env:           "test",
		FeatureFlags:  "realtime_events=on",
		PublicBaseURL: "https://inkwell.test",
		MailFrom:      "notifications@inkwell.test",
	}
	srv, err := NewServerWithDeps(cfg, testutil.NewSQLiteDB(t), rdb,
		WithMailer(mailer), WithPasswordHashCost(bcrypt.MinCost))
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.dispatcher.Shutdown(ctx)
		_ = rdb.Close()
	})

	return &testServer{srv: srv, app: srv.App(), mailer: mailer, redis: mr}
}

// do sends a JSON request and decodes the response into out when out is non-nil.
func (ts *testServer) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		if len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, out), string(raw))
		}
	}
	return resp.StatusCode
}

type authBody struct {
	Token string `json:"token"`
	User  struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"user"`
}

func (ts *testServer) register(t *testing.T, username string) authBody {
	t.Helper()
	var out authBody
	status := ts.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"username": username,
		"email":    username + "@example.com",
		"password": testPassword,
	}, &out)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, out.Token)
	return out
}

type postBody struct {
	ID            uint       `json:"id"`
	Title         string     `json:"title"`
	Status        string     `json:"status"`
	PublishedDate *time.Time `json:"published_date"`
	LikesCount    int64      `json:"likes_count"`
	AvgRating     *float64   `json:"avg_rating"`
	MyRating      *int       `json:"my_rating"`
	Tags          []string   `json:"tags"`
	CategoryName  *string    `json:"category_name"`
	Author        struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
	} `json:"author"`
}

func containsPost(posts []postBody, id uint) bool {
	for _, p := range posts {
		if p.ID == id {
			return true
		}
	}
	return false
}

func TestPostLifecycle_DraftPublishRateNotify(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")

	// Bob follows Alice so he is in the publish audience.
	require.Equal(t, http.StatusOK,
		ts.do(t, http.MethodPost, fmt.Sprintf("/api/users/%d/follow", alice.User.ID), bob.Token, nil, nil))

	var draft postBody
	status := ts.do(t, http.MethodPost, "/api/posts", alice.Token, fiber.Map{
		"title":    "Hello Inkwell",
		"content":  "First post",
		"category": "Tech",
		"tags":     []string{"go", "intro"},
	}, &draft)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "DRAFT", draft.Status)
	assert.Nil(t, draft.PublishedDate)
	assert.ElementsMatch(t, []string{"go", "intro"}, draft.Tags)
	require.NotNil(t, draft.CategoryName)
	assert.Equal(t, "Tech", *draft.CategoryName)

	postPath := fmt.Sprintf("/api/posts/%d", draft.ID)

	t.Run("draft is private to its author", func(t *testing.T) {
		var listed []postBody
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/posts", "", nil, &listed))
		assert.False(t, containsPost(listed, draft.ID))

		assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, postPath, "", nil, nil))
		assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, postPath, bob.Token, nil, nil))
		assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, postPath, alice.Token, nil, nil))

		var drafts []postBody
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/drafts", alice.Token, nil, &drafts))
		assert.True(t, containsPost(drafts, draft.ID))
	})

	t.Run("drafts cannot be rated or shared", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound,
			ts.do(t, http.MethodPost, postPath+"/rate", bob.Token, fiber.Map{"score": 5}, nil))
		assert.Equal(t, http.StatusConflict,
			ts.do(t, http.MethodPost, postPath+"/share", alice.Token, nil, nil))
	})

	t.Run("only the author publishes", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound,
			ts.do(t, http.MethodPost, postPath+"/publish", bob.Token, nil, nil))
	})

	var published postBody
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, postPath+"/publish", alice.Token, nil, &published))
	assert.Equal(t, "PUBLISHED", published.Status)
	require.NotNil(t, published.PublishedDate)

	assert.Equal(t, http.StatusConflict,
		ts.do(t, http.MethodPost, postPath+"/publish", alice.Token, nil, nil))

	t.Run("published post is listed", func(t *testing.T) {
		var listed []postBody
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/posts", "", nil, &listed))
		assert.True(t, containsPost(listed, draft.ID))

		var explore []postBody
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/explore", "", nil, &explore))
		assert.True(t, containsPost(explore, draft.ID))

		var byCategory []postBody
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/categories/Tech/posts", "", nil, &byCategory))
		assert.True(t, containsPost(byCategory, draft.ID))

		var feed []postBody
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/feed", bob.Token, nil, &feed))
		assert.True(t, containsPost(feed, draft.ID))
	})

	t.Run("followers are mailed on publish", func(t *testing.T) {
		assert.Eventually(t, func() bool {
			for _, m := range ts.mailer.To(bob.User.Email) {
				if strings.Contains(m.Subject, "Hello Inkwell") && strings.Contains(m.Subject, "alice") {
					return true
				}
			}
			return false
		}, 2*time.Second, 20*time.Millisecond)
	})

	t.Run("rating bounds", func(t *testing.T) {
		assert.Equal(t, http.StatusUnprocessableEntity,
			ts.do(t, http.MethodPost, postPath+"/rate", bob.Token, fiber.Map{"score": 6}, nil))
		assert.Equal(t, http.StatusUnprocessableEntity,
			ts.do(t, http.MethodPost, postPath+"/rate", bob.Token, fiber.Map{"score": 0}, nil))
		assert.Equal(t, http.StatusBadRequest,
			ts.do(t, http.MethodPost, postPath+"/rate", bob.Token, fiber.Map{}, nil))

		for _, bad := range []any{5.5, "five", true} {
			var body map[string]string
			assert.Equal(t, http.StatusBadRequest,
				ts.do(t, http.MethodPost, postPath+"/rate", bob.Token, fiber.Map{"score": bad}, &body))
			assert.Equal(t, "Score must be a whole number from 1 to 5", body["error"])
		}
	})

	var rating struct {
		Score  int  `json:"score"`
		PostID uint `json:"post_id"`
	}
	require.Equal(t, http.StatusOK,
		ts.do(t, http.MethodPost, postPath+"/rate", bob.Token, fiber.Map{"score": 5}, &rating))
	assert.Equal(t, 5, rating.Score)
	assert.Equal(t, draft.ID, rating.PostID)

	t.Run("five star rating mails the author", func(t *testing.T) {
		assert.Eventually(t, func() bool {
			for _, m := range ts.mailer.To(alice.User.Email) {
				if strings.Contains(m.Body, "Hello Inkwell") && strings.Contains(m.Subject, "5-star") {
					return true
				}
			}
			return false
		}, 2*time.Second, 20*time.Millisecond)
	})

	t.Run("like toggles", func(t *testing.T) {
		var like struct {
			Liked      bool  `json:"liked"`
			LikesCount int64 `json:"likes_count"`
		}
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, postPath+"/like", bob.Token, nil, &like))
		assert.True(t, like.Liked)
		assert.Equal(t, int64(1), like.LikesCount)

		var got postBody
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, postPath, "", nil, &got))
		assert.Equal(t, int64(1), got.LikesCount)
		require.NotNil(t, got.AvgRating)
		assert.InDelta(t, 5.0, *got.AvgRating, 0.001)
		assert.Nil(t, got.MyRating)

		var mine postBody
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, postPath, bob.Token, nil, &mine))
		require.NotNil(t, mine.MyRating)
		assert.Equal(t, 5, *mine.MyRating)

		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, postPath+"/like", bob.Token, nil, &like))
		assert.False(t, like.Liked)
		assert.Equal(t, int64(0), like.LikesCount)
	})

	t.Run("share returns a public link", func(t *testing.T) {
		var share struct {
			ShareURL    string `json:"share_url"`
			SharesCount int64  `json:"shares_count"`
		}
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, postPath+"/share", bob.Token, nil, &share))
		assert.Equal(t, fmt.Sprintf("https://inkwell.test/posts/%d", draft.ID), share.ShareURL)
		assert.Equal(t, int64(1), share.SharesCount)
	})

	t.Run("only the author edits or deletes", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden,
			ts.do(t, http.MethodPatch, postPath, bob.Token, fiber.Map{"title": "Hijacked"}, nil))
		assert.Equal(t, http.StatusForbidden,
			ts.do(t, http.MethodDelete, postPath, bob.Token, nil, nil))

		var updated postBody
		require.Equal(t, http.StatusOK,
			ts.do(t, http.MethodPatch, postPath, alice.Token, fiber.Map{"title": "Hello again"}, &updated))
		assert.Equal(t, "Hello again", updated.Title)
		assert.Equal(t, "PUBLISHED", updated.Status)
	})
}

func TestComments_CRUD(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")

	var post postBody
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/posts", alice.Token, fiber.Map{
		"title": "Discuss", "content": "Thoughts?", "publish": true,
	}, &post))
	commentsPath := fmt.Sprintf("/api/posts/%d/comments", post.ID)

	assert.Equal(t, http.StatusUnauthorized,
		ts.do(t, http.MethodPost, commentsPath, "", fiber.Map{"content": "anon"}, nil))
	assert.Equal(t, http.StatusBadRequest,
		ts.do(t, http.MethodPost, commentsPath, bob.Token, fiber.Map{"content": "   "}, nil))

	var comment struct {
		ID      uint   `json:"id"`
		Content string `json:"content"`
	}
	require.Equal(t, http.StatusCreated,
		ts.do(t, http.MethodPost, commentsPath, bob.Token, fiber.Map{"content": "Nice post"}, &comment))
	assert.Equal(t, "Nice post", comment.Content)

	var listed []struct {
		ID uint `json:"id"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, commentsPath, "", nil, &listed))
	require.Len(t, listed, 1)

	commentPath := fmt.Sprintf("/api/comments/%d", comment.ID)
	assert.Equal(t, http.StatusForbidden,
		ts.do(t, http.MethodPut, commentPath, alice.Token, fiber.Map{"content": "edited"}, nil))
	assert.Equal(t, http.StatusOK,
		ts.do(t, http.MethodPut, commentPath, bob.Token, fiber.Map{"content": "edited"}, nil))
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodDelete, commentPath, alice.Token, nil, nil))
	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, commentPath, bob.Token, nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, commentPath, bob.Token, nil, nil))
}

func TestFollowAndProfile(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")
	alicePath := fmt.Sprintf("/api/users/%d", alice.User.ID)

	assert.Equal(t, http.StatusBadRequest,
		ts.do(t, http.MethodPost, alicePath+"/follow", alice.Token, nil, nil))
	assert.Equal(t, http.StatusNotFound,
		ts.do(t, http.MethodDelete, alicePath+"/follow", bob.Token, nil, nil))
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, alicePath+"/follow", bob.Token, nil, nil))

	var profile struct {
		Username       string `json:"username"`
		Bio            string `json:"bio"`
		ProfilePicture string `json:"profile_picture"`
		FollowerCount  int64  `json:"follower_count"`
		Following      bool   `json:"following"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, alicePath+"/profile", bob.Token, nil, &profile))
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, int64(1), profile.FollowerCount)
	assert.True(t, profile.Following)
	assert.Equal(t, "default.jpg", profile.ProfilePicture)

	require.Equal(t, http.StatusOK,
		ts.do(t, http.MethodPut, "/api/profile", alice.Token, fiber.Map{"bio": "Writer"}, &profile))
	assert.Equal(t, "Writer", profile.Bio)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/profile", alice.Token, nil, &profile))
	assert.Equal(t, "Writer", profile.Bio)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, alicePath+"/follow", bob.Token, nil, nil))
}

func TestCategories_AdminOnlyCreate(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")

	assert.Equal(t, http.StatusForbidden,
		ts.do(t, http.MethodPost, "/api/categories", alice.Token, fiber.Map{"name": "Travel"}, nil))

	_, err := ts.srv.userService.SetAdmin(context.Background(), alice.User.ID, true)
	require.NoError(t, err)

	var category struct {
		ID   uint   `json:"id"`
		Name string `json:"name"`
	}
	require.Equal(t, http.StatusCreated,
		ts.do(t, http.MethodPost, "/api/categories", alice.Token, fiber.Map{"name": "Travel"}, &category))
	assert.Equal(t, "Travel", category.Name)
	assert.Equal(t, http.StatusConflict,
		ts.do(t, http.MethodPost, "/api/categories", alice.Token, fiber.Map{"name": "Travel"}, nil))

	subscribePath := fmt.Sprintf("/api/categories/%d/subscribe", category.ID)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, subscribePath, alice.Token, nil, nil))

	var profile struct {
		SubscribedCategoryIDs []uint `json:"subscribed_category_ids"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/profile", alice.Token, nil, &profile))
	assert.Equal(t, []uint{category.ID}, profile.SubscribedCategoryIDs)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, subscribePath, alice.Token, nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, subscribePath, alice.Token, nil, nil))

	var flags struct {
		Rules     map[string]string `json:"rules"`
		Evaluated map[string]bool   `json:"evaluated"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/admin/feature-flags", alice.Token, nil, &flags))
	assert.Equal(t, "on", flags.Rules["realtime_events"])
	assert.Equal(t, "off", flags.Rules["top_posts_cache"])
	assert.True(t, flags.Evaluated["realtime_events"])
	assert.False(t, flags.Evaluated["top_posts_cache"])
}

func TestTopPosts_RanksByLikes(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")

	var quiet, popular postBody
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/posts", alice.Token,
		fiber.Map{"title": "Quiet", "content": "x", "publish": true}, &quiet))
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/posts", alice.Token,
		fiber.Map{"title": "Popular", "content": "y", "publish": true}, &popular))
	require.Equal(t, http.StatusOK,
		ts.do(t, http.MethodPost, fmt.Sprintf("/api/posts/%d/like", popular.ID), bob.Token, nil, nil))

	var top []postBody
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/posts/top?limit=5&window=24h", "", nil, &top))
	require.Len(t, top, 2)
	assert.Equal(t, popular.ID, top[0].ID)
	assert.Equal(t, quiet.ID, top[1].ID)

	assert.Equal(t, http.StatusBadRequest,
		ts.do(t, http.MethodGet, "/api/posts/top?window=soon", "", nil, nil))
}
