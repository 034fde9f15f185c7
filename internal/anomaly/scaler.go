package anomaly

import "math"

// standardScaler centers and scales feature columns to zero mean and unit
// variance. Fitted once at training, then read-only.
type standardScaler struct {
	mean []float64
	std  []float64
}

func fitScaler(data [][]float64) *standardScaler {
	if len(data) == 0 {
		return &standardScaler{}
	}
	dims := len(data[0])
	s := &standardScaler{
		mean: make([]float64, dims),
		std:  make([]float64, dims),
	}

	for _, row := range data {
		for j, x := range row {
			s.mean[j] += x
		}
	}
	n := float64(len(data))
	for j := range s.mean {
		s.mean[j] /= n
	}

	for _, row := range data {
		for j, x := range row {
			d := x - s.mean[j]
			s.std[j] += d * d
		}
	}
	for j := range s.std {
		s.std[j] = math.Sqrt(s.std[j] / n)
	}
	return s
}

// transform returns a scaled copy of the point. Constant columns pass
// through centered only.
func (s *standardScaler) transform(point []float64) []float64 {
	out := make([]float64, len(point))
	for j, x := range point {
		if j >= len(s.mean) {
			out[j] = x
			continue
		}
		d := x - s.mean[j]
		if s.std[j] > 0 {
			d /= s.std[j]
		}
		out[j] = d
	}
	return out
}

func (s *standardScaler) transformAll(data [][]float64) [][]float64 {
	out := make([][]float64, len(data))
	for i, row := range data {
		out[i] = s.transform(row)
	}
	return out
}
