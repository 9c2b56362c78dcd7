package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRank(t *testing.T) {
	tests := []struct {
		name       string
		scores     []float64
		wantScores []float64
		wantPlaces []int
	}{
		{name: "empty"},
		{name: "single", scores: []float64{4}, wantScores: []float64{4}, wantPlaces: []int{1}},
		{
			name:       "distinct",
			scores:     []float64{10, 30, 20},
			wantScores: []float64{30, 20, 10},
			wantPlaces: []int{1, 2, 3},
		},
		{
			name:       "tie for second skips third",
			scores:     []float64{70, 90, 80, 80},
			wantScores: []float64{90, 80, 80, 70},
			wantPlaces: []int{1, 2, 2, 4},
		},
		{
			name:       "tie for first",
			scores:     []float64{5, 5, 5, 1},
			wantScores: []float64{5, 5, 5, 1},
			wantPlaces: []int{1, 1, 1, 4},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]Result, 0, len(tt.scores))
			for _, s := range tt.scores {
				results = append(results, Result{Score: s})
			}

			ranked := Rank(results)
			scores := make([]float64, 0, len(ranked))
			places := make([]int, 0, len(ranked))
			for _, res := range ranked {
				scores = append(scores, res.Score)
				places = append(places, res.Place)
			}
			if tt.scores == nil {
				assert.Empty(t, ranked)
				return
			}
			assert.Equal(t, tt.wantScores, scores)
			assert.Equal(t, tt.wantPlaces, places)
		})
	}
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	results := []Result{{UserID: "a", Score: 1}, {UserID: "b", Score: 2}}
	_ = Rank(results)
	assert.Equal(t, "a", results[0].UserID)
	assert.Zero(t, results[0].Place)
}
