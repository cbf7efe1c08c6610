package pagination

import "testing"

// TestParse はskip/limitの解析を検証する。
func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("未指定の場合はデフォルト値になること", func(t *testing.T) {
		t.Parallel()

		page, err := Parse("", "")
		if err != nil {
			t.Fatalf("Parse()でエラーが発生: %v", err)
		}
		if page.Skip != 0 || page.Limit != DefaultLimit {
			t.Errorf("page = %+v, want skip=0 limit=%d", page, DefaultLimit)
		}
	})

	t.Run("指定値が反映されること", func(t *testing.T) {
		t.Parallel()

		page, err := Parse("20", "50")
		if err != nil {
			t.Fatalf("Parse()でエラーが発生: %v", err)
		}
		if page.Skip != 20 || page.Limit != 50 {
			t.Errorf("page = %+v, want skip=20 limit=50", page)
		}
	})

	t.Run("負のskipはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := Parse("-1", ""); err == nil {
			t.Error("負のskipでエラーにならない")
		}
	})

	t.Run("上限を超えるlimitはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := Parse("", "51"); err == nil {
			t.Error("limit=51でエラーにならない")
		}
	})

	t.Run("0のlimitはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := Parse("", "0"); err == nil {
			t.Error("limit=0でエラーにならない")
		}
	})

	t.Run("数値以外はエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := Parse("abc", ""); err == nil {
			t.Error("skip=abcでエラーにならない")
		}
	})
}

// TestNewResult はレスポンス生成を検証する。
func TestNewResult(t *testing.T) {
	t.Parallel()

	r := NewResult[string](Page{Skip: 5, Limit: 10}, nil, 0)
	if r.Items == nil {
		t.Error("Itemsがnilのまま")
	}
	if r.Skip != 5 || r.Limit != 10 {
		t.Errorf("skip/limit = %d/%d, want 5/10", r.Skip, r.Limit)
	}
}
