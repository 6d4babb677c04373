package allreduce

import "testing"

func TestNaiveAllreducer(t *testing.T) {
	RunAllreducerTests(t, NaiveAllreducer{})
}

func TestTreeAllreducer(t *testing.T) {
	RunAllreducerTests(t, TreeAllreducer{})
}

func TestStreamAllreducer(t *testing.T) {
	RunAllreducerTests(t, StreamAllreducer{})
	t.Run("Granularity", func(t *testing.T) {
		RunAllreducerTests(t, StreamAllreducer{Granularity: 3})
	})
}

func TestPositionInTree(t *testing.T) {
	parent, children := positionInTree(0, 5)
	if parent >= 0 || len(children) != 2 || children[0] != 1 || children[1] != 2 {
		t.Errorf("root: parent=%d children=%v", parent, children)
	}
	parent, children = positionInTree(1, 5)
	if parent != 0 || len(children) != 2 || children[0] != 3 || children[1] != 4 {
		t.Errorf("node 1: parent=%d children=%v", parent, children)
	}
	parent, children = positionInTree(2, 5)
	if parent != 0 || len(children) != 0 {
		t.Errorf("node 2: parent=%d children=%v", parent, children)
	}
}
