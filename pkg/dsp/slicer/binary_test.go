package slicer

import (
	"reflect"
	"testing"
)

func TestBinarySlicer(t *testing.T) {
	tests := []struct {
		name   string
		invert bool
		input  []uint16
		want   []byte
	}{
		{"two level", false, []uint16{0, 4095, 4095, 0}, []byte{0, 1, 1, 0}},
		{"inverted", true, []uint16{0, 4095, 4095, 0}, []byte{1, 0, 0, 1}},
		{"offset", false, []uint16{1000, 1100, 1000, 1100}, []byte{0, 1, 0, 1}},
		{"flat is low", false, []uint16{7, 7, 7}, []byte{0, 0, 0}},
		{"empty", false, []uint16{}, []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewBinarySlicer(tt.invert).Work(tt.input); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Work() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestThreshold(t *testing.T) {
	if got := NewBinarySlicer(false).Threshold([]uint16{0, 10, 20}); got != 10 {
		t.Fatalf("Threshold() = %v, want 10", got)
	}
}

func TestString(t *testing.T) {
	if got := String([]byte{1, 0, 0, 1}); got != "1001" {
		t.Fatalf("String() = %q", got)
	}
}
