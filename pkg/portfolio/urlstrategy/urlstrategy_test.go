package urlstrategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		want    string
		wantErr bool
	}{
		{"path", Config{Type: StrategyTypePath, BaseURL: "https://store/"}, "https://store/project-images/a.png", false},
		{"default type is path", Config{BaseURL: "https://store"}, "https://store/project-images/a.png", false},
		{"supabase", Config{Type: StrategyTypeSupabase, BaseURL: "https://xyz.supabase.co"},
			"https://xyz.supabase.co/storage/v1/object/public/project-images/a.png", false},
		{"missing base", Config{Type: StrategyTypePath}, "", true},
		{"unknown", Config{Type: "ftp", BaseURL: "https://store"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.PublicURL("project-images", "a.png"))
		})
	}
}

func TestPathStrategyEscapesSegments(t *testing.T) {
	s := NewPathStrategy("https://store")
	assert.Equal(t, "https://store/resumes/2026/10/15/my%20cv.pdf", s.PublicURL("resumes", "2026/10/15/my cv.pdf"))
}
