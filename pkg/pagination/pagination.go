// Package pagination はskip/limit形式のページネーションを扱う。
package pagination

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	// DefaultLimit はlimit未指定時の件数。
	DefaultLimit = 10
	// MaxLimit はlimitの上限。
	MaxLimit = 50
)

// Page はページ指定。
type Page struct {
	// Skip は読み飛ばす件数。
	Skip int
	// Limit は取得する最大件数。
	Limit int
}

// Result はページネーションされたレスポンスの共通構造。
type Result[T any] struct {
	// Items は取得した要素。
	Items []T `json:"items"`
	// Total は条件に一致する総件数。
	Total int64 `json:"total"`
	// Skip は読み飛ばした件数。
	Skip int `json:"skip"`
	// Limit は要求された最大件数。
	Limit int `json:"limit"`
}

// Parse はクエリパラメータ skip と limit を解析する。
func Parse(skipParam, limitParam string) (Page, error) {
	page := Page{Skip: 0, Limit: DefaultLimit}

	if skipParam != "" {
		skip, err := strconv.Atoi(skipParam)
		if err != nil || skip < 0 {
			return Page{}, errors.New("skipは0以上の整数で指定してください")
		}
		page.Skip = skip
	}

	if limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 1 || limit > MaxLimit {
			return Page{}, fmt.Errorf("limitは1から%dの整数で指定してください", MaxLimit)
		}
		page.Limit = limit
	}

	return page, nil
}

// FromQuery はGinコンテキストのクエリからページ指定を取得する。
func FromQuery(c *gin.Context) (Page, error) {
	return Parse(c.Query("skip"), c.Query("limit"))
}

// NewResult はページ指定と取得結果からレスポンスを生成する。
// itemsがnilの場合は空スライスに置き換える。
func NewResult[T any](page Page, items []T, total int64) Result[T] {
	if items == nil {
		items = []T{}
	}
	return Result[T]{
		Items: items,
		Total: total,
		Skip:  page.Skip,
		Limit: page.Limit,
	}
}
