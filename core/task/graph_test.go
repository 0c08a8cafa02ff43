package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAvailable(t *testing.T) {
	tests := []struct {
		name string
		deps []DependencyRef
		want bool
	}{
		{name: "no dependencies", want: true},
		{name: "all completed", deps: []DependencyRef{{ID: 1, IsCompleted: true}, {ID: 2, IsCompleted: true}}, want: true},
		{name: "one pending", deps: []DependencyRef{{ID: 1, IsCompleted: true}, {ID: 2}}, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAvailable(tt.deps))
		})
	}
}

func Test_createsCycle(t *testing.T) {
	// 2 -> 1, 3 -> 2, 5 -> 4
	edges := map[int64][]int64{
		2: {1},
		3: {2},
		5: {4},
	}

	tests := []struct {
		name      string
		taskID    int64
		dependsOn []int64
		want      bool
	}{
		{name: "no dependencies", taskID: 1},
		{name: "direct", taskID: 1, dependsOn: []int64{2}, want: true},
		{name: "transitive", taskID: 1, dependsOn: []int64{3}, want: true},
		{name: "among others", taskID: 1, dependsOn: []int64{5, 3}, want: true},
		{name: "unrelated chain", taskID: 1, dependsOn: []int64{5}},
		{name: "downstream", taskID: 3, dependsOn: []int64{1, 4}},
		{name: "replacing own edges", taskID: 2, dependsOn: []int64{5}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, createsCycle(edges, tt.taskID, tt.dependsOn))
		})
	}
}

func Test_uniqueIDs(t *testing.T) {
	assert.Nil(t, uniqueIDs(nil))
	assert.Equal(t, []int64{3, 1, 2}, uniqueIDs([]int64{3, 1, 2}))
	assert.Equal(t, []int64{3, 1, 2}, uniqueIDs([]int64{3, 1, 3, 2, 1}))
}
