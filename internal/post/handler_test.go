package post

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/blog/internal/db"
	"github.com/nao1215/blog/internal/db/dbtest"
	"github.com/nao1215/blog/internal/guard"
	"github.com/nao1215/blog/pkg/event"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// recordingPublisher は発行されたイベントを記録するテスト用Publisher。
type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) list() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.Event(nil), p.events...)
}

// testServer はテスト用のルーターと依存物。
type testServer struct {
	router *gin.Engine
	store  *db.Store
	events *recordingPublisher
}

// setupTestServer はX-User-IDヘッダーを認証済みユーザーとして扱うテスト用ルーターを生成する。
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	store := db.NewStore(dbtest.New(t))
	events := &recordingPublisher{}
	logger := zap.NewNop()

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	})
	requireAuth := func(c *gin.Context) {
		if c.GetHeader("X-User-ID") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "認証が必要です"})
			return
		}
		c.Next()
	}
	optionalAuth := func(c *gin.Context) { c.Next() }

	h := NewHandler(NewService(store, events, logger), logger)
	h.RegisterRoutes(router.Group("/api/v1/posts"), Routes{
		Auth:         requireAuth,
		OptionalAuth: optionalAuth,
		Owner:        guard.PostsGuard(store.Queries, logger),
	})
	h.RegisterUserRoutes(router.Group("/api/v1/users"), optionalAuth)
	return &testServer{router: router, store: store, events: events}
}

// doRequest はテスト用のHTTPリクエストを実行する。
func doRequest(router *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// parseJSON はレスポンスボディをmapにデコードする。
func parseJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSONのパースに失敗: %v, body = %s", err, w.Body.String())
	}
	return result
}

// itemTitles は一覧レスポンスのタイトルを順に取り出す。
func itemTitles(body map[string]any) []string {
	items, _ := body["items"].([]any)
	titles := make([]string, 0, len(items))
	for _, item := range items {
		m, _ := item.(map[string]any)
		title, _ := m["title"].(string)
		titles = append(titles, title)
	}
	return titles
}

// createImage はテスト用の画像レコードを作成する。
func createImage(t *testing.T, store *db.Store, ownerID string) string {
	t.Helper()

	id := uuid.New().String()
	if err := store.CreateImage(context.Background(), db.CreateImageParams{
		ID:          id,
		OwnerID:     ownerID,
		Filename:    "cover.png",
		ContentType: "image/png",
		Size:        10,
		StoragePath: id + ".png",
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		t.Fatalf("画像作成に失敗: %v", err)
	}
	return id
}

// TestCreatePost は投稿作成を検証する。
func TestCreatePost(t *testing.T) {
	t.Parallel()

	t.Run("タグを正規化して投稿できること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		alice := dbtest.CreateUser(t, s.store.Queries, "alice")
		cover := createImage(t, s.store, alice.ID)

		w := doRequest(s.router, http.MethodPost, "/api/v1/posts", alice.ID, map[string]any{
			"title":          "  はじめての投稿  ",
			"content":        "本文です",
			"tags":           []string{"Go", "go", "Gin"},
			"cover_image_id": cover,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d, body = %s", w.Code, http.StatusCreated, w.Body.String())
		}
		body := parseJSON(t, w)
		if body["title"] != "はじめての投稿" {
			t.Errorf("title = %v", body["title"])
		}
		tags, _ := body["tags"].([]any)
		if len(tags) != 2 || tags[0] != "gin" || tags[1] != "go" {
			t.Errorf("tags = %v, want [gin go]", tags)
		}
		if body["cover_image_url"] != "/api/v1/images/"+cover {
			t.Errorf("cover_image_url = %v", body["cover_image_url"])
		}
		author, _ := body["author"].(map[string]any)
		if author["username"] != "alice" {
			t.Errorf("author = %v", author)
		}
		if body["like_count"] != float64(0) || body["liked_by_me"] != false {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("他人のカバー画像は403になること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		alice := dbtest.CreateUser(t, s.store.Queries, "alice")
		bob := dbtest.CreateUser(t, s.store.Queries, "bob")
		cover := createImage(t, s.store, bob.ID)

		w := doRequest(s.router, http.MethodPost, "/api/v1/posts", alice.ID, map[string]any{
			"title": "t", "content": "c", "cover_image_id": cover,
		})
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	invalid := []struct {
		name string
		body map[string]any
	}{
		{name: "タイトルなし", body: map[string]any{"content": "c"}},
		{name: "空白だけのタイトル", body: map[string]any{"title": "   ", "content": "c"}},
		{name: "不正なタグ", body: map[string]any{"title": "t", "content": "c", "tags": []string{"a b"}}},
	}
	for _, tt := range invalid {
		t.Run(tt.name+"は400になること", func(t *testing.T) {
			t.Parallel()

			s := setupTestServer(t)
			alice := dbtest.CreateUser(t, s.store.Queries, "alice")

			w := doRequest(s.router, http.MethodPost, "/api/v1/posts", alice.ID, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}

	t.Run("未認証は401になること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		w := doRequest(s.router, http.MethodPost, "/api/v1/posts", "", map[string]any{"title": "t", "content": "c"})
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestListPosts は投稿一覧の絞り込みと並び順を検証する。
func TestListPosts(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	alice := dbtest.CreateUser(t, s.store.Queries, "alice")
	bob := dbtest.CreateUser(t, s.store.Queries, "bob")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dbtest.CreatePost(t, s.store.Queries, alice.ID, "古い投稿", base)
	dbtest.CreatePost(t, s.store.Queries, bob.ID, "100%の投稿", base.Add(time.Hour))
	w := doRequest(s.router, http.MethodPost, "/api/v1/posts", alice.ID, map[string]any{
		"title": "新しい投稿", "content": "c", "tags": []string{"go"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusCreated)
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "新しい順に並ぶこと", query: "", want: []string{"新しい投稿", "100%の投稿", "古い投稿"}},
		{name: "タグで絞り込めること", query: "?tag=GO", want: []string{"新しい投稿"}},
		{name: "投稿者で絞り込めること", query: "?author=alice", want: []string{"新しい投稿", "古い投稿"}},
		{name: "存在しない投稿者は空になること", query: "?author=nobody", want: []string{}},
		{name: "%がリテラルとして検索されること", query: "?q=100%25", want: []string{"100%の投稿"}},
		{name: "skipとlimitが効くこと", query: "?skip=1&limit=1", want: []string{"100%の投稿"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := doRequest(s.router, http.MethodGet, "/api/v1/posts"+tt.query, "", nil)
			if w.Code != http.StatusOK {
				t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
			}
			got := itemTitles(parseJSON(t, w))
			if len(got) != len(tt.want) {
				t.Fatalf("titles = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("titles = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}

	t.Run("ユーザーの投稿一覧が取得できること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(s.router, http.MethodGet, "/api/v1/users/bob/posts", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if body := parseJSON(t, w); body["total"] != float64(1) {
			t.Errorf("total = %v, want 1", body["total"])
		}

		w = doRequest(s.router, http.MethodGet, "/api/v1/users/nobody/posts", "", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("不正なlimitは400になること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(s.router, http.MethodGet, "/api/v1/posts?limit=0", "", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestFeed はフォロー中のユーザーと自分の投稿だけが返ることを検証する。
func TestFeed(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	ctx := context.Background()
	alice := dbtest.CreateUser(t, s.store.Queries, "alice")
	bob := dbtest.CreateUser(t, s.store.Queries, "bob")
	carol := dbtest.CreateUser(t, s.store.Queries, "carol")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dbtest.CreatePost(t, s.store.Queries, alice.ID, "aliceの投稿", base)
	dbtest.CreatePost(t, s.store.Queries, bob.ID, "bobの投稿", base.Add(time.Hour))
	dbtest.CreatePost(t, s.store.Queries, carol.ID, "carolの投稿", base.Add(2*time.Hour))
	if _, err := s.store.CreateFollow(ctx, alice.ID, bob.ID, base); err != nil {
		t.Fatalf("フォローに失敗: %v", err)
	}

	w := doRequest(s.router, http.MethodGet, "/api/v1/posts/feed", alice.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
	body := parseJSON(t, w)
	got := itemTitles(body)
	if len(got) != 2 || got[0] != "bobの投稿" || got[1] != "aliceの投稿" {
		t.Errorf("titles = %v, want [bobの投稿 aliceの投稿]", got)
	}
	if body["total"] != float64(2) {
		t.Errorf("total = %v, want 2", body["total"])
	}

	if w := doRequest(s.router, http.MethodGet, "/api/v1/posts/feed", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// TestGetPost は投稿取得と閲覧数の加算を検証する。
func TestGetPost(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	alice := dbtest.CreateUser(t, s.store.Queries, "alice")
	postID := dbtest.CreatePost(t, s.store.Queries, alice.ID, "投稿", time.Now())

	for i := 1; i <= 2; i++ {
		w := doRequest(s.router, http.MethodGet, "/api/v1/posts/"+postID, "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if body := parseJSON(t, w); body["view_count"] != float64(i) {
			t.Errorf("view_count = %v, want %d", body["view_count"], i)
		}
	}

	if w := doRequest(s.router, http.MethodGet, "/api/v1/posts/unknown", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// TestUpdatePost は投稿の部分更新と所有者チェックを検証する。
func TestUpdatePost(t *testing.T) {
	t.Parallel()

	t.Run("指定したフィールドだけ更新され未使用タグが削除されること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		ctx := context.Background()
		alice := dbtest.CreateUser(t, s.store.Queries, "alice")
		w := doRequest(s.router, http.MethodPost, "/api/v1/posts", alice.ID, map[string]any{
			"title": "元のタイトル", "content": "元の本文", "tags": []string{"old"},
		})
		postID, _ := parseJSON(t, w)["id"].(string)

		w = doRequest(s.router, http.MethodPut, "/api/v1/posts/"+postID, alice.ID, map[string]any{
			"title": "新しいタイトル", "tags": []string{"new"},
		})
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
		}
		body := parseJSON(t, w)
		if body["title"] != "新しいタイトル" || body["content"] != "元の本文" {
			t.Errorf("body = %v", body)
		}
		if tags, _ := body["tags"].([]any); len(tags) != 1 || tags[0] != "new" {
			t.Errorf("tags = %v, want [new]", tags)
		}
		if _, err := s.store.GetTagWithCount(ctx, "old"); err == nil {
			t.Error("未使用のタグ old が残っている")
		}
	})

	t.Run("作成者以外は403になること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		alice := dbtest.CreateUser(t, s.store.Queries, "alice")
		bob := dbtest.CreateUser(t, s.store.Queries, "bob")
		postID := dbtest.CreatePost(t, s.store.Queries, alice.ID, "投稿", time.Now())

		w := doRequest(s.router, http.MethodPut, "/api/v1/posts/"+postID, bob.ID, map[string]any{"title": "乗っ取り"})
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
		w = doRequest(s.router, http.MethodDelete, "/api/v1/posts/"+postID, bob.ID, nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("存在しない投稿は404になること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		alice := dbtest.CreateUser(t, s.store.Queries, "alice")

		w := doRequest(s.router, http.MethodPut, "/api/v1/posts/unknown", alice.ID, map[string]any{"title": "t"})
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

// TestDeletePost は投稿削除で関連データが消えることを検証する。
func TestDeletePost(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	ctx := context.Background()
	alice := dbtest.CreateUser(t, s.store.Queries, "alice")
	bob := dbtest.CreateUser(t, s.store.Queries, "bob")
	w := doRequest(s.router, http.MethodPost, "/api/v1/posts", alice.ID, map[string]any{
		"title": "消す投稿", "content": "c", "tags": []string{"gone"},
	})
	postID, _ := parseJSON(t, w)["id"].(string)

	commentID := uuid.New().String()
	now := time.Now().UTC()
	if err := s.store.CreateComment(ctx, db.CreateCommentParams{
		ID: commentID, PostID: postID, AuthorID: bob.ID, Content: "コメント", CreatedAt: now,
	}); err != nil {
		t.Fatalf("コメント作成に失敗: %v", err)
	}
	if _, err := s.store.CreateCommentLike(ctx, commentID, alice.ID, now); err != nil {
		t.Fatalf("コメントいいねに失敗: %v", err)
	}
	doRequest(s.router, http.MethodPost, "/api/v1/posts/"+postID+"/like", bob.ID, nil)
	if err := s.store.CreateNotification(ctx, db.CreateNotificationParams{
		ID: uuid.New().String(), RecipientID: alice.ID, ActorID: bob.ID, Type: "like_post",
		PostID: db.NullString(postID), CreatedAt: now,
	}); err != nil {
		t.Fatalf("通知作成に失敗: %v", err)
	}

	w = doRequest(s.router, http.MethodDelete, "/api/v1/posts/"+postID, alice.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("ステータスコード = %d, want %d, body = %s", w.Code, http.StatusNoContent, w.Body.String())
	}

	if _, err := s.store.GetPost(ctx, postID); err == nil {
		t.Error("投稿が残っている")
	}
	if _, err := s.store.GetComment(ctx, commentID); err == nil {
		t.Error("コメントが残っている")
	}
	if n, _ := s.store.CountNotifications(ctx, alice.ID, false); n != 0 {
		t.Errorf("通知数 = %d, want 0", n)
	}
	if _, err := s.store.GetTagWithCount(ctx, "gone"); err == nil {
		t.Error("未使用のタグが残っている")
	}
}

// TestLikePost はいいねの冪等性とイベント発行を検証する。
func TestLikePost(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)
	alice := dbtest.CreateUser(t, s.store.Queries, "alice")
	bob := dbtest.CreateUser(t, s.store.Queries, "bob")
	postID := dbtest.CreatePost(t, s.store.Queries, alice.ID, "投稿", time.Now())

	for range 2 {
		w := doRequest(s.router, http.MethodPost, "/api/v1/posts/"+postID+"/like", bob.ID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if body := parseJSON(t, w); body["liked"] != true || body["like_count"] != float64(1) {
			t.Errorf("body = %v", body)
		}
	}

	w := doRequest(s.router, http.MethodGet, "/api/v1/posts/"+postID, bob.ID, nil)
	if body := parseJSON(t, w); body["liked_by_me"] != true {
		t.Errorf("liked_by_me = %v, want true", body["liked_by_me"])
	}

	w = doRequest(s.router, http.MethodGet, "/api/v1/posts/"+postID+"/likes", "", nil)
	if body := parseJSON(t, w); body["total"] != float64(1) {
		t.Errorf("total = %v, want 1", body["total"])
	}

	w = doRequest(s.router, http.MethodDelete, "/api/v1/posts/"+postID+"/like", bob.ID, nil)
	if body := parseJSON(t, w); body["liked"] != false || body["like_count"] != float64(0) {
		t.Errorf("body = %v", body)
	}

	events := s.events.list()
	if len(events) != 2 {
		t.Fatalf("イベント数 = %d, want 2", len(events))
	}
	if events[0].Type != event.TypePostLiked || events[1].Type != event.TypePostUnliked {
		t.Errorf("イベント = %v", events)
	}
	if events[0].ActorID != bob.ID || events[0].RecipientID != alice.ID || events[0].PostID != postID {
		t.Errorf("イベント = %+v", events[0])
	}

	if w := doRequest(s.router, http.MethodPost, "/api/v1/posts/unknown/like", bob.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
	}
}
