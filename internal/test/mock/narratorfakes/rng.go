package narratorfakes

// RNG replays scripted die faces. Each Intn(n) call consumes the next face and
// returns face-1, so a face of 20 on a d20 reads back as 20. Once the script is
// exhausted, the last face repeats.
type RNG struct {
	Faces []int
	Calls []int
	next  int
}

// NewRNG returns an RNG that yields faces in order.
func NewRNG(faces ...int) *RNG {
	return &RNG{Faces: faces}
}

// Intn returns the next scripted face minus one, clamped to [0, n).
func (r *RNG) Intn(n int) int {
	r.Calls = append(r.Calls, n)
	face := 1
	if len(r.Faces) > 0 {
		idx := r.next
		if idx >= len(r.Faces) {
			idx = len(r.Faces) - 1
		}
		face = r.Faces[idx]
		r.next++
	}
	value := face - 1
	if value < 0 {
		value = 0
	}
	if value >= n {
		value = n - 1
	}
	return value
}
