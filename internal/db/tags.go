package db

import (
	"context"
	"time"
)

const upsertTag = `INSERT INTO tags (id, name, created_at) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET name = excluded.name
RETURNING id`

// UpsertTag は名前でタグを作成し、タグのIDを返す。既に存在する場合は既存のIDを返す。
func (q *Queries) UpsertTag(ctx context.Context, id, name string, createdAt time.Time) (string, error) {
	var tagID string
	err := q.db.QueryRowContext(ctx, upsertTag, id, name, createdAt).Scan(&tagID)
	return tagID, err
}

const addPostTag = `INSERT OR IGNORE INTO post_tags (post_id, tag_id) VALUES (?, ?)`

// AddPostTag は投稿にタグを関連付ける。
func (q *Queries) AddPostTag(ctx context.Context, postID, tagID string) error {
	_, err := q.db.ExecContext(ctx, addPostTag, postID, tagID)
	return err
}

const deletePostTagsByPost = `DELETE FROM post_tags WHERE post_id = ?`

// DeletePostTagsByPost は投稿のタグ関連付けをすべて削除する。
func (q *Queries) DeletePostTagsByPost(ctx context.Context, postID string) error {
	_, err := q.db.ExecContext(ctx, deletePostTagsByPost, postID)
	return err
}

const deleteOrphanTags = `DELETE FROM tags WHERE id NOT IN (SELECT tag_id FROM post_tags)`

// DeleteOrphanTags はどの投稿にも使われていないタグを削除し、削除数を返す。
func (q *Queries) DeleteOrphanTags(ctx context.Context) (int64, error) {
	return q.execCount(ctx, deleteOrphanTags)
}

const listTagNamesByPostIDs = `SELECT pt.post_id, t.name FROM post_tags pt
JOIN tags t ON t.id = pt.tag_id
WHERE pt.post_id IN (/*POST_IDS*/)
ORDER BY t.name ASC`

// ListTagNamesByPostIDs は投稿IDごとのタグ名を名前順で返す。
func (q *Queries) ListTagNamesByPostIDs(ctx context.Context, postIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(postIDs))
	if len(postIDs) == 0 {
		return result, nil
	}

	marks, args := placeholders(postIDs)
	rows, err := q.db.QueryContext(ctx, expandSlice(listTagNamesByPostIDs, "/*POST_IDS*/", marks), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var postID, name string
		if err := rows.Scan(&postID, &name); err != nil {
			return nil, err
		}
		result[postID] = append(result[postID], name)
	}
	return result, rows.Err()
}

// TagWithCount は使用数付きのタグ。
type TagWithCount struct {
	Tag
	PostCount int64
}

const tagWithCountSelect = `SELECT t.id, t.name, t.created_at, COUNT(pt.post_id) AS post_count
FROM tags t
LEFT JOIN post_tags pt ON pt.tag_id = t.id`

const tagWithCountOrder = `
GROUP BY t.id
ORDER BY post_count DESC, t.name ASC`

func (q *Queries) queryTagsWithCount(ctx context.Context, query string, args ...any) ([]TagWithCount, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []TagWithCount
	for rows.Next() {
		var t TagWithCount
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.PostCount); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listTagsWithCount = tagWithCountSelect + tagWithCountOrder + `
LIMIT ? OFFSET ?`

// ListTagsWithCount は使用数の多い順、同数は名前順でタグを返す。
func (q *Queries) ListTagsWithCount(ctx context.Context, limit, offset int) ([]TagWithCount, error) {
	return q.queryTagsWithCount(ctx, listTagsWithCount, limit, offset)
}

const countTags = `SELECT COUNT(*) FROM tags`

// CountTags はタグの総数を返す。
func (q *Queries) CountTags(ctx context.Context) (int64, error) {
	return q.count(ctx, countTags)
}

const searchTags = tagWithCountSelect + `
WHERE t.name LIKE ? || '%' ESCAPE '\'` + tagWithCountOrder + `
LIMIT ?`

// SearchTags はエスケープ済みの前方一致文字列でタグを検索する。
func (q *Queries) SearchTags(ctx context.Context, prefix string, limit int) ([]TagWithCount, error) {
	return q.queryTagsWithCount(ctx, searchTags, prefix, limit)
}

const getTagWithCount = tagWithCountSelect + `
WHERE t.name = ?
GROUP BY t.id`

// GetTagWithCount は名前でタグと使用数を取得する。
func (q *Queries) GetTagWithCount(ctx context.Context, name string) (TagWithCount, error) {
	var t TagWithCount
	err := q.db.QueryRowContext(ctx, getTagWithCount, name).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.PostCount)
	return t, err
}
