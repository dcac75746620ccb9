package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Item
		wantErr bool
	}{
		{"category:eq:drinks", Item{Field: "category", Operator: Equal, Value: "drinks"}, false},
		{"name:contains:su", Item{Field: "name", Operator: Contains, Value: "su"}, false},
		{"category:in:a,b", Item{Field: "category", Operator: InList, Value: []string{"a", "b"}}, false},
		{"manager_id:null", Item{Field: "manager_id", Operator: IsNull}, false},
		{"notes:eq:a:b", Item{Field: "notes", Operator: Equal, Value: "a:b"}, false},
		{"name:eq", Item{}, true},
		{"name:like:x", Item{}, true},
		{":eq:x", Item{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
