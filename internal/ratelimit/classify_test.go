package ratelimit

import "testing"

func TestDefaultClassifier(t *testing.T) {
	c := DefaultClassifier()

	tests := []struct {
		path   string
		want   Category
		wantOK bool
	}{
		{"/api/auth/login", CategoryAuth, true},
		{"/api/auth/token/refresh", CategoryAuth, true},
		{"/accounts/auth/google", CategoryAuth, true},
		{"/api/subjects", CategoryAPI, true},
		{"/api/sessions/start", CategoryAPI, true},
		{"/api/authors", CategoryAPI, true},
		{"/health", "", false},
		{"/metrics", "", false},
		{"/apiv2/x", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := c.Classify(tt.path)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Classify(%q) = (%q, %v), want (%q, %v)", tt.path, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
