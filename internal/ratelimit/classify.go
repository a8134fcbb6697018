package ratelimit

import "regexp"

// PathRule はパスのパターンとカテゴリの対応。
type PathRule struct {
	Pattern  *regexp.Regexp
	Category Category
}

// Classifier はリクエストパスからカテゴリを判定する。
// ルールは定義順に評価し、最初に一致したものを採用する。
type Classifier struct {
	rules []PathRule
}

// NewClassifier は指定ルールのClassifierを生成する。
func NewClassifier(rules ...PathRule) *Classifier {
	return &Classifier{rules: rules}
}

// DefaultClassifier は "/auth/" を含むパスを認証、"/api/" で始まるパスをAPI全般とする。
// 認証の判定を先に行うため、/api/auth/login は認証カテゴリになる。
func DefaultClassifier() *Classifier {
	return NewClassifier(
		PathRule{Pattern: regexp.MustCompile(`/auth/`), Category: CategoryAuth},
		PathRule{Pattern: regexp.MustCompile(`^/api/`), Category: CategoryAPI},
	)
}

// Classify はパスのカテゴリを返す。どのルールにも一致しない場合はfalseを返す。
func (c *Classifier) Classify(path string) (Category, bool) {
	for _, r := range c.rules {
		if r.Pattern.MatchString(path) {
			return r.Category, true
		}
	}
	return "", false
}
