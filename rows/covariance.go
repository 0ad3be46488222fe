package rows

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type CovarianceCell struct {
	X           string `json:"x"`
	Y           string `json:"y"`
	N           int    `json:"n"`
	Covariance  Float  `json:"covariance"`
	Correlation Float  `json:"correlation"`
}

// CovarianceStats computes the population covariance and Pearson correlation
// of two columns over the rows where both are finite. Fewer than two such
// rows gives NaN for both; a zero variance gives a NaN correlation.
func CovarianceStats(rows []Row, xColumn, yColumn string) CovarianceCell {
	xs := make([]float64, 0, len(rows))
	ys := make([]float64, 0, len(rows))
	for _, row := range rows {
		xv, _ := ReadPath(row, xColumn)
		yv, _ := ReadPath(row, yColumn)
		x, okX := ToNumber(xv)
		y, okY := ToNumber(yv)
		if !okX || !okY {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}

	cell := CovarianceCell{
		X:           xColumn,
		Y:           yColumn,
		N:           len(xs),
		Covariance:  Float(math.NaN()),
		Correlation: Float(math.NaN()),
	}
	if len(xs) < 2 {
		return cell
	}

	n := float64(len(xs))
	meanX := stat.Mean(xs, nil)
	meanY := stat.Mean(ys, nil)
	covariance := floats.Dot(xs, ys)/n - meanX*meanY
	varX := floats.Dot(xs, xs)/n - meanX*meanX
	varY := floats.Dot(ys, ys)/n - meanY*meanY

	cell.Covariance = Float(covariance)
	if denom := math.Sqrt(math.Max(varX, 0) * math.Max(varY, 0)); denom > 0 {
		cell.Correlation = Float(covariance / denom)
	}
	return cell
}

// CovarianceMatrix returns every ordered pair of columns, diagonal included,
// in row-major order.
func CovarianceMatrix(rows []Row, columns []string) []CovarianceCell {
	matrix := make([]CovarianceCell, 0, len(columns)*len(columns))
	for _, x := range columns {
		for _, y := range columns {
			matrix = append(matrix, CovarianceStats(rows, x, y))
		}
	}
	return matrix
}

// UpperTriangle keeps the cells with x at or before y in column order.
func UpperTriangle(matrix []CovarianceCell, columns []string) []CovarianceCell {
	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		pos[c] = i
	}
	var out []CovarianceCell
	for _, cell := range matrix {
		if pos[cell.X] <= pos[cell.Y] {
			out = append(out, cell)
		}
	}
	return out
}
