// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package stat

import (
	"math"
)

type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func Sum[T Number](samples []T) float64 {
	var total float64
	for _, sample := range samples {
		total += float64(sample)
	}
	return total
}

// Avg returns the rounded arithmetic mean of samples.
func Avg[T Number](samples []T) T {
	if len(samples) == 0 {
		return 0
	}
	return T(math.Round(Sum(samples) / float64(len(samples))))
}

// StdDev returns the rounded sample standard deviation of samples around avg.
func StdDev[T Number](samples []T, avg T) T {
	if len(samples) < 2 {
		return 0
	}

	var total float64
	for _, sample := range samples {
		total += math.Pow(float64(sample)-float64(avg), 2)
	}

	// Bessel's correction, samples are a subset of the signal.
	return T(math.Round(math.Sqrt(total / float64(len(samples)-1))))
}

// Window is a fixed size ring of the most recent samples.
type Window[T Number] struct {
	samples []T
	ptr     int
}

func NewWindow[T Number](size int) *Window[T] {
	return &Window[T]{
		samples: make([]T, 0, max(size, 1)),
	}
}

// Push adds a sample, overwriting the oldest one once the window is full.
func (w *Window[T]) Push(sample T) {
	if len(w.samples) < cap(w.samples) {
		w.samples = append(w.samples, sample)
		return
	}
	w.samples[w.ptr] = sample
	w.ptr = (w.ptr + 1) % len(w.samples)
}

func (w *Window[T]) Full() bool {
	return len(w.samples) == cap(w.samples)
}

func (w *Window[T]) Len() int {
	return len(w.samples)
}

// Values returns the samples in storage order.
func (w *Window[T]) Values() []T {
	return w.samples
}

func (w *Window[T]) Avg() T {
	return Avg(w.samples)
}

func (w *Window[T]) StdDev() T {
	return StdDev(w.samples, Avg(w.samples))
}

func (w *Window[T]) Reset() {
	w.samples = w.samples[:0]
	w.ptr = 0
}
