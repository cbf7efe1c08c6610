package post

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nao1215/blog/pkg/apperror"
)

const (
	// maxTags は1投稿に付けられるタグの最大数。
	maxTags = 10
)

// tagPattern はタグに使える文字と長さ。
var tagPattern = regexp.MustCompile(`^[\p{L}\p{N}_-]{1,30}$`)

// NormalizeTags はタグを前後の空白除去、小文字化、重複除去して返す。
// 順序は最初に現れた位置を保つ。
func NormalizeTags(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	tags := make([]string, 0, len(raw))
	for _, r := range raw {
		tag := strings.ToLower(strings.TrimSpace(r))
		if !tagPattern.MatchString(tag) {
			return nil, apperror.Validation(fmt.Sprintf("タグ %q は1〜30文字の文字、数字、-、_ で指定してください", r))
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	if len(tags) > maxTags {
		return nil, apperror.Validation(fmt.Sprintf("タグは%d個以内で指定してください", maxTags))
	}
	return tags, nil
}
