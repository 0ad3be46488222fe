package rows

// Window is a fixed-size ring of the most recent values.
type Window struct {
	Data      []float64
	NextIndex int64
	Max       int
}

func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	w := new(Window)
	w.Max = size
	w.NextIndex = 0
	w.Data = make([]float64, size)
	return w
}

func (w *Window) Add(value float64) {
	w.Data[w.NextIndex%int64(w.Max)] = value
	w.NextIndex++
}

// Len is the number of values currently held, at most Max.
func (w *Window) Len() int {
	if w.NextIndex < int64(w.Max) {
		return int(w.NextIndex)
	}
	return w.Max
}

func (w *Window) Last(request int) []float64 {
	last := request
	if last > w.Len() {
		last = w.Len()
	}

	p := make([]float64, last)
	fromIndex := w.NextIndex - int64(last)
	for i := fromIndex; i < fromIndex+int64(last); i++ {
		p[i-fromIndex] = w.Data[i%int64(w.Max)]
	}
	return p
}

func (w *Window) LastAverage(request int) float64 {
	last := w.Last(request)
	if len(last) == 0 {
		return 0
	}
	var sum float64
	for _, v := range last {
		sum += v
	}
	return sum / float64(len(last))
}

// Average is the mean of the trailing min(added, Max) values.
func (w *Window) Average() float64 {
	return w.LastAverage(w.Max)
}

func (w *Window) Reset() {
	w.NextIndex = 0
}
