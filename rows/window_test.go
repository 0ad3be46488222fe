package rows

import (
	"reflect"
	"testing"
)

func TestWindowOperations(t *testing.T) {
	t.Log("Give a Window with size=3")
	window := NewWindow(3)

	t.Log("Add elements [1, 3]")
	window.Add(1)
	window.Add(3)

	if window.Average() != 2 {
		t.Fatal("Average should be 2")
	}
	t.Log("Average is 2")

	t.Log("Add new element [2] => [1, 3, 2]")
	window.Add(2)
	if window.Average() != 2 {
		t.Fatal("Average should be 2")
	}
	t.Log("Average is still 2")

	t.Log("Add new element [1] => [1, 3, 2, 1] => [3, 2, 1]")
	window.Add(1)
	if window.Average() != 2 {
		t.Fatal("Average should be 2")
	}
	t.Log("Average is still 2")
}

func TestWindowLastElements(t *testing.T) {
	t.Log("Give a Window with size=10")
	window := NewWindow(10)

	t.Log("Set initial elements [1234, 55, 66]")
	window.Add(1234)
	window.Add(55)
	window.Add(66)

	if !reflect.DeepEqual([]float64{55, 66}, window.Last(2)) {
		t.Fatal("Last 2 should be [55, 66]")
	}
	t.Log("Last 2 is [55, 66]")

	if len(window.Last(20)) != 3 {
		t.Fatal("Last 20 should be capped at the 3 added elements")
	}
	t.Log("Last 20 is capped at 3 elements")
}

func TestWindowLastAverage(t *testing.T) {
	t.Log("Give a Window with size=4")
	window := NewWindow(4)
	for _, v := range []float64{3, 2, 3, 4, 1, 90, 5} {
		window.Add(v)
	}

	t.Log("Added [3, 2, 3, 4, 1, 90, 5], window keeps [4, 1, 90, 5]")
	if window.Average() != 25 {
		t.Fatal("Average should be 25")
	}
	if window.LastAverage(2) != 47.5 {
		t.Fatal("Last 2 elements average should be 47.5")
	}
	t.Log("Last 2 elements average is 47.5")

	window.Reset()
	if window.Len() != 0 || window.Average() != 0 {
		t.Fatal("Reset window should be empty")
	}
	t.Log("Reset window is empty")
}
